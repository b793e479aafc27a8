package metadata

import "github.com/rs/zerolog"

// Set at link time with -ldflags "-X".
var (
	Version    = "freshest"
	CommitHash = "n/a"
	BuildTime  = "n/a"
)

type Build struct{}

func (Build) MarshalZerologObject(e *zerolog.Event) {
	e.Str("v", Version).
		Str("commit_hash", CommitHash).
		Str("build_time", BuildTime)
}
