package clipboard

import (
	"time"

	"github.com/labi-le/clipseat/internal/reader"
	"github.com/rs/zerolog"
)

type Options struct {
	Logger zerolog.Logger
	// IgnorePassword drops selections flagged as passwords instead of
	// delivering them with the password flag set.
	IgnorePassword bool
	ReadTimeout    time.Duration
	MaxSize        uint64
	// OnSelection turns on automatic retrieval of every new selection.
	OnSelection func(Update)
}

type Option func(*Options)

//nolint:gochecknoglobals
var DefaultOptions = Options{
	Logger:      zerolog.Nop(),
	ReadTimeout: reader.DefaultTimeout,
	MaxSize:     reader.DefaultMaxSize,
}

func NewOptions(opts ...Option) Options {
	options := DefaultOptions

	for _, opt := range opts {
		opt(&options)
	}

	return options
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

func WithIgnorePassword(ignore bool) Option {
	return func(o *Options) {
		o.IgnorePassword = ignore
	}
}

func WithReadTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.ReadTimeout = timeout
	}
}

func WithMaxSize(size uint64) Option {
	return func(o *Options) {
		o.MaxSize = size
	}
}

func WithSelectionHandler(fn func(Update)) Option {
	return func(o *Options) {
		o.OnSelection = fn
	}
}

func (o Options) readerOptions(logger zerolog.Logger) []reader.Option {
	return []reader.Option{
		reader.WithTimeout(o.ReadTimeout),
		reader.WithMaxSize(o.MaxSize),
		reader.WithLogger(logger),
	}
}
