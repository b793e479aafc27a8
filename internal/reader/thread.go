//go:build linux || freebsd

// Package reader moves blocking transfer reads off the main context. Each
// Thread owns one worker goroutine, locked to its own OS thread, which polls
// every outstanding transfer and hands finished reads back through the main
// scheduler.
package reader

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labi-le/clipseat/pkg/ctxlog"
	"github.com/labi-le/clipseat/pkg/dispatch"
	"github.com/labi-le/clipseat/pkg/pipe"
	"github.com/labi-le/clipseat/pkg/trackable"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// maxReadsPerWakeup keeps one busy peer from starving the other tasks.
const maxReadsPerWakeup = 16

var ErrWakePipe = errors.New("reader: wake pipe broken")

type Callback func(data []byte)

// descriptor is the only thing that crosses from the main context to the
// worker. It is never modified after it is built.
type descriptor struct {
	id    uint64
	owner trackable.Watcher
	fd    *pipe.FD
	cb    Callback
}

type task struct {
	descriptor
	buf      []byte
	deadline time.Time
}

type Thread struct {
	main   dispatch.Scheduler
	opts   Options
	logger zerolog.Logger

	inbox *dispatch.Dispatcher
	done  chan struct{}

	// main context only
	live    map[uint64]struct{}
	nextID  uint64
	started bool
	stopped bool
	// set once the worker has died on its own
	failed bool
	wakeR   *pipe.FD
	wakeW   *pipe.FD

	// worker only
	tasks   map[uint64]*task
	chunk   []byte
	exiting bool
}

func New(main dispatch.Scheduler, opts ...Option) *Thread {
	options := NewOptions(opts...)

	t := &Thread{
		main:   main,
		opts:   options,
		logger: options.Logger.With().Str("component", "reader").Logger(),
		done:   make(chan struct{}),
		nextID: 1,
		live:   make(map[uint64]struct{}),
		tasks:  make(map[uint64]*task),
	}
	t.inbox = dispatch.New(dispatch.WithWakeup(t.wakeup))

	return t
}

// Start spawns the worker. It must be called once, from the main context.
func (t *Thread) Start() error {
	if t.started || t.stopped {
		return nil
	}

	r, w, err := pipe.NewNonblocking()
	if err != nil {
		t.stopped = true
		t.inbox.Dispatch()
		t.inbox.Close()
		t.abandonAll()
		return fmt.Errorf("reader wake pipe: %w", err)
	}

	t.wakeR, t.wakeW = r, w
	t.started = true
	t.chunk = make([]byte, readChunkSize)

	go t.run()

	// tasks added before Start are already queued
	t.wakeup()

	return nil
}

// AddTask hands fd over to the worker and returns the task id. cb runs on
// the main context at most once, and only while owner is valid. After Stop
// the fd is closed and 0 is returned, and so it is once the worker has failed.
func (t *Thread) AddTask(owner trackable.Watcher, fd *pipe.FD, cb Callback) uint64 {
	if t.stopped || t.failed {
		t.logger.Trace().
			Int("fd", fd.Int()).
			Bool("failed", t.failed).
			Msg("thread not running, dropping task")
		_ = fd.Close()
		return 0
	}

	id := t.nextID
	t.nextID++
	t.live[id] = struct{}{}

	desc := descriptor{id: id, owner: owner, fd: fd, cb: cb}
	t.inbox.Schedule(func() {
		t.addTaskOnWorker(desc)
	})

	return id
}

// RemoveTask cancels a task. Unknown or finished ids are ignored.
func (t *Thread) RemoveTask(id uint64) {
	if _, ok := t.live[id]; !ok || t.stopped || t.failed {
		return
	}
	delete(t.live, id)

	t.inbox.Schedule(func() {
		t.removeTaskOnWorker(id)
	})
}

// Stop terminates the worker and waits for it. No callback of this thread
// runs once Stop has been called.
func (t *Thread) Stop() {
	if t.stopped {
		return
	}
	t.stopped = true

	if t.started {
		t.inbox.Schedule(func() {
			t.exiting = true
		})
		<-t.done
	}

	// the worker is gone, whatever it left behind is ours now
	t.exiting = true
	t.inbox.Dispatch()
	t.inbox.Close()
	t.abandonAll()
	clear(t.live)

	_ = t.wakeR.Close()
	_ = t.wakeW.Close()

	t.logger.Trace().Msg("reader stopped")
}

func (t *Thread) wakeup() {
	if !t.wakeW.Valid() {
		return
	}
	// EAGAIN means a wakeup is already pending
	_, _ = t.wakeW.Write([]byte{1})
}

func (t *Thread) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer close(t.done)
	defer t.abandonAll()

	log := ctxlog.Op(t.logger, "reader.run")
	log.Trace().Msg("worker started")

	for !t.exiting {
		if err := t.iterate(); err != nil {
			log.Error().Err(err).Msg("worker failed, abandoning tasks")
			t.main.Schedule(t.markFailed)
			return
		}
	}

	t.inbox.Dispatch()
	log.Trace().Msg("worker exited")
}

// markFailed runs on the main context. Tasks still in flight were abandoned
// by the worker and their callbacks never come.
func (t *Thread) markFailed() {
	if t.stopped {
		return
	}
	t.failed = true
	clear(t.live)
}

func (t *Thread) iterate() error {
	fds := make([]unix.PollFd, 1, len(t.tasks)+1)
	fds[0] = unix.PollFd{Fd: int32(t.wakeR.Int()), Events: unix.POLLIN}

	order := make([]uint64, 0, len(t.tasks))
	for id, tk := range t.tasks {
		fds = append(fds, unix.PollFd{Fd: int32(tk.fd.Int()), Events: unix.POLLIN})
		order = append(order, id)
	}

	if _, err := unix.Poll(fds, t.pollTimeout(time.Now())); err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("poll: %w", err)
	}

	if fds[0].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
		return ErrWakePipe
	}
	if fds[0].Revents != 0 {
		t.drainWake()
	}

	t.inbox.Dispatch()
	if t.exiting {
		return nil
	}

	for i, id := range order {
		if fds[i+1].Revents == 0 {
			continue
		}
		// may have been cancelled by the inbox
		if tk, ok := t.tasks[id]; ok {
			t.handleIO(tk)
		}
	}

	now := time.Now()
	for _, tk := range t.tasks {
		if !now.Before(tk.deadline) {
			t.handleTimeout(tk)
		}
	}

	return nil
}

func (t *Thread) pollTimeout(now time.Time) int {
	if len(t.tasks) == 0 {
		return -1
	}

	var earliest time.Time
	for _, tk := range t.tasks {
		if earliest.IsZero() || tk.deadline.Before(earliest) {
			earliest = tk.deadline
		}
	}

	wait := earliest.Sub(now)
	if wait <= 0 {
		return 0
	}

	return int((wait + time.Millisecond - 1) / time.Millisecond)
}

func (t *Thread) drainWake() {
	var buf [64]byte
	for {
		n, err := t.wakeR.Read(buf[:])
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil || n == 0 {
			return
		}
	}
}

func (t *Thread) addTaskOnWorker(desc descriptor) {
	if t.exiting {
		_ = desc.fd.Close()
		return
	}

	t.tasks[desc.id] = &task{
		descriptor: desc,
		deadline:   time.Now().Add(t.opts.Timeout),
	}

	t.logger.Trace().
		Uint64("task_id", desc.id).
		Int("fd", desc.fd.Int()).
		Msg("task added")
}

func (t *Thread) removeTaskOnWorker(id uint64) {
	tk, ok := t.tasks[id]
	if !ok {
		return
	}

	delete(t.tasks, id)
	_ = tk.fd.Close()

	t.logger.Trace().
		Uint64("task_id", id).
		Int("bytes_read", len(tk.buf)).
		Msg("task cancelled")
}

func (t *Thread) handleIO(tk *task) {
	for range maxReadsPerWakeup {
		n, err := tk.fd.Read(t.chunk)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return
		case err != nil:
			t.logger.Debug().
				Uint64("task_id", tk.id).
				Err(err).
				Msg("read failed, keeping partial data")
			t.finalize(tk, tk.buf)
			return
		case n == 0:
			t.finalize(tk, tk.buf)
			return
		}

		tk.buf = append(tk.buf, t.chunk[:n]...)
		tk.deadline = time.Now().Add(t.opts.Timeout)

		if t.opts.MaxSize > 0 && uint64(len(tk.buf)) > t.opts.MaxSize {
			t.logger.Warn().
				Uint64("task_id", tk.id).
				Str("limit", humanize.Bytes(t.opts.MaxSize)).
				Msg("transfer too large, dropping")
			t.finalize(tk, nil)
			return
		}
	}
}

func (t *Thread) handleTimeout(tk *task) {
	t.logger.Debug().
		Uint64("task_id", tk.id).
		Dur("timeout", t.opts.Timeout).
		Int("bytes_read", len(tk.buf)).
		Msg("peer went silent")

	t.finalize(tk, tk.buf)
}

// finalize runs on the worker. The callback is only ever reached through
// the main scheduler.
func (t *Thread) finalize(tk *task, data []byte) {
	delete(t.tasks, tk.id)
	_ = tk.fd.Close()

	t.logger.Trace().
		Uint64("task_id", tk.id).
		Str("size", humanize.Bytes(uint64(len(data)))).
		Msg("task finished")

	id, owner, cb := tk.id, tk.owner, tk.cb
	t.main.Schedule(func() {
		if _, ok := t.live[id]; !ok || t.stopped {
			return
		}
		delete(t.live, id)

		if owner != nil && !owner.Valid() {
			return
		}
		cb(data)
	})
}

func (t *Thread) abandonAll() {
	for id, tk := range t.tasks {
		_ = tk.fd.Close()
		delete(t.tasks, id)
	}
}
