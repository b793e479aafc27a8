//go:build linux || freebsd

package wayland

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/labi-le/clipseat/pkg/mime"
	"github.com/rs/zerolog"
)

func TestSourceListener_Send(t *testing.T) {
	testCases := []struct {
		name     string
		data     string
		password bool
		mimeType string
		want     string
	}{
		{name: "text", data: "hello", mimeType: mime.TextUTF8, want: "hello"},
		{name: "legacy atom", data: "hello", mimeType: mime.UTF8String, want: "hello"},
		{name: "password hint", data: "hunter2", password: true, mimeType: mime.PasswordHint, want: mime.SecretValue},
		{name: "hint without password", data: "hello", mimeType: mime.PasswordHint, want: ""},
		{name: "password content", data: "hunter2", password: true, mimeType: mime.TextPlain, want: "hunter2"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, w, err := os.Pipe()
			if err != nil {
				t.Fatalf("failed to create pipe: %v", err)
			}
			defer r.Close()

			s := &sourceListener{
				data:     []byte(tc.data),
				password: tc.password,
				logger:   zerolog.Nop(),
			}
			s.Send(tc.mimeType, w)

			done := make(chan []byte, 1)
			go func() {
				got, _ := io.ReadAll(r)
				done <- got
			}()

			select {
			case got := <-done:
				if string(got) != tc.want {
					t.Fatalf("expected %q, got %q", tc.want, got)
				}
			case <-time.After(3 * time.Second):
				t.Fatal("source never closed the transfer")
			}
		})
	}
}

func TestSourceListener_ReaderGone(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	_ = r.Close()

	s := &sourceListener{data: make([]byte, 1<<20), logger: zerolog.Nop()}
	s.Send(mime.TextPlain, w)

	// the write fails with EPIPE and the goroutine closes its end
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := w.Stat(); err != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("write end was not closed after the reader went away")
}

func TestIsExpectedSocketError(t *testing.T) {
	testCases := []struct {
		err  error
		want bool
	}{
		{err: syscall.EPIPE, want: true},
		{err: fmt.Errorf("write: %w", syscall.ECONNRESET), want: true},
		{err: os.ErrClosed, want: true},
		{err: syscall.EBADF, want: true},
		{err: syscall.ENOSPC, want: false},
		{err: errors.New("boom"), want: false},
	}

	for _, tc := range testCases {
		if got := isExpectedSocketError(tc.err); got != tc.want {
			t.Errorf("isExpectedSocketError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
