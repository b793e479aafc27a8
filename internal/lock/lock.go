package lock

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/nightlyone/lockfile"
	"github.com/rs/zerolog"
)

const file = "clipseat.lck"

var (
	ErrCannotLock     = errors.New("cannot get locked process: %s")
	ErrCannotUnlock   = errors.New("cannot unlock process: %s")
	ErrAlreadyRunning = errors.New("clipseat is already watching. pid %d")
)

// Path is where the watch daemon keeps its lock. XDG_RUNTIME_DIR is per
// user and per session, the temp dir is the fallback.
func Path() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, file)
}

// Must takes the single-instance lock or terminates the process.
func Must(logger zerolog.Logger) func() {
	lock, err := lockfile.New(Path())
	if err != nil {
		logger.Fatal().Msgf(ErrCannotLock.Error(), err)
	}

	if lockErr := lock.TryLock(); lockErr != nil {
		owner, err := lock.GetOwner()
		if err != nil {
			logger.Fatal().Msgf(ErrCannotLock.Error(), err)
		}
		logger.Fatal().Msgf(ErrAlreadyRunning.Error(), owner.Pid)
	}

	return func() {
		Unlock(lock, logger)
	}
}

func Unlock(lock lockfile.Lockfile, l zerolog.Logger) {
	if err := lock.Unlock(); err != nil {
		l.Error().Msgf(ErrCannotUnlock.Error(), err)
	}
}
