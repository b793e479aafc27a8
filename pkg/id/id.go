package id

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/cespare/xxhash"
)

type Unique = int64

var generator = new(idGenerator)

type idGenerator struct {
	node *snowflake.Node
	once sync.Once
}

func (g *idGenerator) nextID() int64 {
	g.once.Do(func() {
		node, err := snowflake.NewNode(nodeID())
		if err != nil {
			panic(fmt.Sprintf("failed to initialize snowflake node: %s", err))
		}
		g.node = node
	})
	return g.node.Generate().Int64()
}

// New returns a time-ordered id unique to this host.
func New() Unique {
	return generator.nextID()
}

// nodeID folds the machine identity into the 10 bits snowflake reserves
// for the node.
func nodeID() int64 {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		raw, err := os.ReadFile(path)
		if err == nil && len(strings.TrimSpace(string(raw))) > 0 {
			return int64(xxhash.Sum64(raw) % 1024)
		}
	}

	if host, err := os.Hostname(); err == nil {
		return int64(xxhash.Sum64([]byte(host)) % 1024)
	}

	return 1
}
