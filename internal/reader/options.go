package reader

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout bounds how long a task waits for the peer between chunks.
	DefaultTimeout = 300 * time.Millisecond
	// DefaultMaxSize caps a single transfer.
	DefaultMaxSize = 64 << 20

	readChunkSize = 64 * 1024
)

type Options struct {
	Timeout time.Duration
	MaxSize uint64
	Logger  zerolog.Logger
}

type Option func(*Options)

//nolint:gochecknoglobals
var DefaultOptions = Options{
	Timeout: DefaultTimeout,
	MaxSize: DefaultMaxSize,
	Logger:  zerolog.Nop(),
}

func NewOptions(opts ...Option) Options {
	options := DefaultOptions

	for _, opt := range opts {
		opt(&options)
	}

	if options.Timeout <= 0 {
		options.Timeout = DefaultTimeout
	}

	return options
}

func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.Timeout = timeout
	}
}

// WithMaxSize sets the transfer cap; zero disables it.
func WithMaxSize(size uint64) Option {
	return func(o *Options) {
		o.MaxSize = size
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}
