package notification

import (
	"fmt"

	"github.com/gen2brain/beeep"
)

const title = "clipseat"

type Notifier interface {
	Notify(message string, v ...any)
}

// New returns a desktop notifier, or a silent one when disabled.
func New(enabled bool) Notifier {
	if !enabled {
		return NullNotifier{}
	}
	return BeepDecorator{Title: title}
}

type BeepDecorator struct {
	Title string
}

func (b BeepDecorator) Notify(message string, v ...any) {
	_ = beeep.Notify(b.Title, fmt.Sprintf(message, v...), "")
}

type NullNotifier struct{}

func (n NullNotifier) Notify(string, ...any) {}
