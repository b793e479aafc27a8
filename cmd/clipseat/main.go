//go:build linux || freebsd

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labi-le/clipseat/internal/clipboard"
	"github.com/labi-le/clipseat/internal/lock"
	"github.com/labi-le/clipseat/internal/metadata"
	"github.com/labi-le/clipseat/internal/notification"
	"github.com/labi-le/clipseat/internal/reader"
	"github.com/labi-le/clipseat/internal/service"
	"github.com/labi-le/clipseat/internal/wayland"
	"github.com/labi-le/clipseat/pkg/dispatch"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
)

// pasteDeadline bounds a paste whose offer never yields text.
const pasteDeadline = 10 * time.Second

var ErrNoContent = errors.New("selection holds no text")

type action struct {
	paste    bool
	primary  bool
	copyText string
	copy     bool
	password bool

	verbose        bool
	showVersion    bool
	showHelp       bool
	notify         bool
	installService bool
	ignorePassword bool
}

func (a action) channel() clipboard.Channel {
	if a.primary {
		return clipboard.Primary
	}
	return clipboard.Clipboard
}

func parseFlags() (clipboard.Options, action) {
	var (
		opts = clipboard.DefaultOptions
		act  action
	)

	flag.BoolVarP(&act.paste, "paste", "o", false, "Print the current selection and exit")
	flag.BoolVarP(&act.primary, "primary", "p", false, "Use the primary selection instead of the clipboard")
	flag.StringVarP(&act.copyText, "copy", "i", "", "Publish TEXT (\"-\" reads stdin) and serve it until another client takes the selection")
	flag.BoolVar(&act.password, "password", false, "Mark copied content as a password")
	flag.DurationVar(&opts.ReadTimeout, "timeout", reader.DefaultTimeout, "Give up on a silent source after this long")
	flag.BoolVar(&act.ignorePassword, "ignore_password", false, "Drop selections marked as passwords")

	flag.BoolVar(&act.verbose, "verbose", false, "Verbose logs")
	flag.BoolVar(&act.notify, "notify", false, "Desktop notification on every new selection (watch mode)")
	flag.BoolVarP(&act.showVersion, "version", "v", false, "Show version")
	flag.BoolVarP(&act.showHelp, "help", "h", false, "Show help")
	flag.BoolVar(&act.installService, "install-service", false, "Install systemd user unit for watch mode and start it")

	var maxSizeRaw string
	flag.StringVar(&maxSizeRaw, "max_size", humanize.IBytes(reader.DefaultMaxSize), "Largest selection to retrieve")

	flag.Parse()

	if act.showHelp {
		return opts, act
	}

	size, err := humanize.ParseBytes(maxSizeRaw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid max_size format: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}
	opts.MaxSize = size
	opts.IgnorePassword = act.ignorePassword
	act.copy = flag.CommandLine.Changed("copy")

	if act.paste && act.copy {
		_, _ = fmt.Fprintln(os.Stderr, "--paste and --copy are mutually exclusive")
		flag.Usage()
		os.Exit(1)
	}

	return opts, act
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts, cfg := parseFlags()

	if cfg.showHelp {
		flag.Usage()
		return
	}

	applyTagsOverrides(&cfg)
	logger := initLogger(cfg.verbose)

	if cfg.showVersion {
		logger.Info().EmbedObject(metadata.Build{}).Send()
		return
	}
	logger.Debug().EmbedObject(metadata.Build{}).Send()

	if cfg.installService {
		if err := service.InstallService(logger, serviceArgs(cfg)...); err != nil {
			logger.Fatal().Err(err).Msg("failed install service")
		}
		return
	}

	if !wayland.Supported {
		logger.Fatal().Msg("no wayland session: WAYLAND_DISPLAY is not set")
	}

	opts.Logger = logger

	var err error
	switch {
	case cfg.paste:
		err = paste(ctx, opts, cfg, logger)
	case cfg.copy:
		err = serveCopy(ctx, opts, cfg, logger)
	default:
		err = watch(ctx, opts, cfg, logger)
	}

	if err != nil {
		logger.Error().Err(err).Send()
		cancel()
		os.Exit(1)
	}
}

// session wires a registry to a fresh compositor connection and runs start
// on the main context once the seats are known. Hooks see the connection
// before any global is bound.
func session(
	ctx context.Context,
	opts clipboard.Options,
	logger zerolog.Logger,
	start func(reg *clipboard.Registry),
	hooks ...func(conn *wayland.Conn),
) error {
	conn, err := wayland.Dial(logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warn().Err(err).Msg("close wayland connection")
		}
	}()

	loop := dispatch.NewLoop(logger)
	reg := clipboard.NewRegistry(conn, loop, optionList(opts)...)

	conn.OnSeatsChanged(func() { loop.Schedule(reg.RefreshSeat) })
	for _, hook := range hooks {
		hook(conn)
	}
	if err := conn.Setup(); err != nil {
		return err
	}

	loop.Schedule(func() { start(reg) })

	runErr := conn.Run(ctx, loop)

	// the loop has returned, this goroutine is still the main context
	reg.Close()

	return runErr
}

func optionList(opts clipboard.Options) []clipboard.Option {
	return []clipboard.Option{
		clipboard.WithLogger(opts.Logger),
		clipboard.WithIgnorePassword(opts.IgnorePassword),
		clipboard.WithReadTimeout(opts.ReadTimeout),
		clipboard.WithMaxSize(opts.MaxSize),
		clipboard.WithSelectionHandler(opts.OnSelection),
	}
}

func paste(ctx context.Context, opts clipboard.Options, cfg action, logger zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, pasteDeadline)
	defer cancel()

	var (
		content []byte
		got     bool
	)
	err := session(ctx, opts, logger, func(reg *clipboard.Registry) {
		reg.Get(cfg.channel(), func(data []byte, password bool) {
			content, got = data, true
			logger.Debug().
				Stringer("channel", cfg.channel()).
				Bool("password", password).
				Str("size", humanize.Bytes(uint64(len(data)))).
				Msg("selection retrieved")
			cancel()
		})
	})
	if err != nil {
		return err
	}

	if !got || len(content) == 0 {
		return fmt.Errorf("%s: %w", cfg.channel(), ErrNoContent)
	}

	_, err = os.Stdout.Write(content)
	return err
}

func serveCopy(ctx context.Context, opts clipboard.Options, cfg action, logger zerolog.Logger) error {
	content := []byte(cfg.copyText)
	if cfg.copyText == "-" {
		raw, err := io.ReadAll(io.LimitReader(os.Stdin, int64(opts.MaxSize)+1))
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		if uint64(len(raw)) > opts.MaxSize {
			return fmt.Errorf("stdin exceeds %s", humanize.IBytes(opts.MaxSize))
		}
		content = raw
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var conn *wayland.Conn
	watchSource := func(c *wayland.Conn) {
		conn = c
		c.OnSourceCancelled(func(ch clipboard.Channel) {
			if ch != cfg.channel() || ctx.Err() != nil {
				return
			}
			logger.Info().Stringer("channel", ch).Msg("selection taken by another client")
			cancel()
		})
	}

	return session(ctx, opts, logger, func(reg *clipboard.Registry) {
		if len(reg.Devices()) == 0 {
			logger.Error().Msg("no seat to publish on")
			cancel()
			return
		}

		if cfg.primary {
			reg.SetPrimary(content, cfg.password)
		} else {
			reg.SetClipboard(content, cfg.password)
		}

		if !conn.Serving(cfg.channel()) {
			logger.Error().Stringer("channel", cfg.channel()).Msg("selection was not published")
			cancel()
			return
		}

		logger.Info().
			Stringer("channel", cfg.channel()).
			Str("size", humanize.Bytes(uint64(len(content)))).
			Msg("serving selection until replaced or interrupted")
	}, watchSource)
}

func watch(ctx context.Context, opts clipboard.Options, cfg action, logger zerolog.Logger) error {
	unlock := lock.Must(logger)
	defer unlock()

	notifier := notification.New(cfg.notify)
	opts.OnSelection = func(u clipboard.Update) {
		logger.Info().EmbedObject(u).Msg("selection changed")

		if !u.Password {
			notifier.Notify("new %s selection, %s", u.Channel, humanize.Bytes(uint64(len(u.Data))))
		}
	}

	return session(ctx, opts, logger, func(reg *clipboard.Registry) {
		logger.Info().
			Uints32("seats", seatNames(reg.Devices())).
			Msg("watching selections")
	})
}

func seatNames(seats []clipboard.SeatID) []uint32 {
	out := make([]uint32, len(seats))
	for i, s := range seats {
		out[i] = uint32(s)
	}
	return out
}

func serviceArgs(cfg action) []string {
	var args []string
	if cfg.notify {
		args = append(args, "--notify")
	}
	if cfg.ignorePassword {
		args = append(args, "--ignore_password")
	}
	return args
}

func initLogger(verbose bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	if verbose {
		zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
			short := file
			for i := len(file) - 1; i > 0; i-- {
				if file[i] == '/' {
					short = file[i+1:]
					break
				}
			}
			file = short
			return fmt.Sprintf("%s:%d", file, line)
		}
		return zerolog.New(output).
			Level(zerolog.TraceLevel).
			With().
			Timestamp().
			Caller().
			Logger()
	}

	return zerolog.New(output).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Logger()
}
