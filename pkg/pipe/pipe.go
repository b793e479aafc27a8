//go:build linux || freebsd

package pipe

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

var (
	ErrFailedCreate = errors.New("pipe: failed to create pipe")
	ErrClosed       = errors.New("pipe: file descriptor already closed")
)

// FD owns a raw file descriptor. The owner must Close it on every exit
// path; Close is idempotent.
type FD struct {
	fd int
}

func NewFD(fd int) *FD {
	return &FD{fd: fd}
}

func (f *FD) Int() int {
	if f == nil {
		return -1
	}
	return f.fd
}

func (f *FD) Valid() bool {
	return f != nil && f.fd >= 0
}

func (f *FD) Read(p []byte) (int, error) {
	if !f.Valid() {
		return 0, ErrClosed
	}
	return unix.Read(f.fd, p)
}

func (f *FD) Write(p []byte) (int, error) {
	if !f.Valid() {
		return 0, ErrClosed
	}
	return unix.Write(f.fd, p)
}

func (f *FD) Close() error {
	if !f.Valid() {
		return nil
	}
	fd := f.fd
	f.fd = -1
	return unix.Close(fd)
}

// Pipe is a transfer pipe: the write end goes to the peer that provides the
// data, the read end is non-blocking and stays with us.
type Pipe struct {
	read  *FD
	write *os.File
}

func New() (*Pipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, errors.Join(ErrFailedCreate, err)
	}

	if err := unix.SetNonblock(fds[0], true); err != nil {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		return nil, errors.Join(ErrFailedCreate, fmt.Errorf("set nonblock: %w", err))
	}

	return &Pipe{
		read:  NewFD(fds[0]),
		write: os.NewFile(uintptr(fds[1]), "pipe"),
	}, nil
}

// Fd returns the write end to be passed to the data provider.
func (p *Pipe) Fd() *os.File {
	return p.write
}

func (p *Pipe) CloseWrite() error {
	if p.write == nil {
		return nil
	}
	err := p.write.Close()
	p.write = nil
	return err
}

// TakeReader moves ownership of the read end to the caller.
func (p *Pipe) TakeReader() *FD {
	r := p.read
	p.read = nil
	return r
}

// Close closes whatever ends the pipe still owns.
func (p *Pipe) Close() error {
	return errors.Join(p.CloseWrite(), p.read.Close())
}

// NewNonblocking returns both ends of a non-blocking pipe as raw fds, for
// wakeups inside poll loops.
func NewNonblocking() (r, w *FD, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, nil, errors.Join(ErrFailedCreate, err)
	}
	return NewFD(fds[0]), NewFD(fds[1]), nil
}
