//go:build linux || freebsd

package wayland

import (
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/labi-le/clipseat/internal/wayland/datacontrol"
	"github.com/labi-le/clipseat/pkg/mime"
	"github.com/rs/zerolog"
)

const writeTimeout = 5 * time.Second

type sourceListener struct {
	data     []byte
	password bool
	source   *datacontrol.Source
	logger   zerolog.Logger
	onCancel func()
}

// payload picks what a transfer of mimeType carries.
func (s *sourceListener) payload(mimeType string) []byte {
	if mimeType != mime.PasswordHint {
		return s.data
	}
	if s.password {
		return []byte(mime.SecretValue)
	}
	return nil
}

func (s *sourceListener) Send(mimeType string, f *os.File) {
	if f == nil {
		return
	}

	data := s.payload(mimeType)
	go func() {
		defer f.Close()

		log := s.logger.With().Str("op", "source.Send").Logger()

		timer := time.AfterFunc(writeTimeout, func() { _ = f.Close() })
		defer timer.Stop()

		var total int
		for total < len(data) {
			n, err := f.Write(data[total:])
			total += n
			if err != nil {
				if !isExpectedSocketError(err) {
					log.Trace().
						Err(err).
						Int("written", total).
						Str("mime", mimeType).
						Msg("write failed")
				}
				return
			}
		}
	}()
}

func (s *sourceListener) Cancelled() {
	s.source.Destroy()
	if s.onCancel != nil {
		s.onCancel()
	}
}

// isExpectedSocketError matches a reader that went away before the
// transfer completed.
func isExpectedSocketError(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EDESTADDRREQ) ||
		errors.Is(err, syscall.EBADF) ||
		errors.Is(err, os.ErrClosed)
}
