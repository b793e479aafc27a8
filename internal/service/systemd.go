package service

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

const unitName = "clipseat.service"

const serviceTemplate = `
[Unit]
Description=clipseat Wayland selection watcher
Documentation=https://github.com/labi-le/clipseat

PartOf=graphical-session.target
After=graphical-session.target

ConditionEnvironment=WAYLAND_DISPLAY

[Service]
Type=simple
ExecStart=%s%s
Environment="PATH=%s"
Environment="DBUS_SESSION_BUS_ADDRESS=%s"
Restart=on-failure
RestartSec=10

StandardOutput=journal
StandardError=journal

[Install]
WantedBy=graphical-session.target
`

var ErrMissingEnv = errors.New("critical env missing")

// Unit renders the user unit that runs exe in watch mode with args.
func Unit(exe string, args []string, envPath, envDbus string) string {
	if strings.Contains(exe, " ") {
		exe = fmt.Sprintf(`"%s"`, exe)
	}

	var extra string
	if len(args) > 0 {
		extra = " " + strings.Join(args, " ")
	}

	return fmt.Sprintf(serviceTemplate, exe, extra, envPath, envDbus)
}

// InstallService writes the user unit for the running executable and
// (re)starts it.
func InstallService(logger zerolog.Logger, args ...string) error {
	envPath := os.Getenv("PATH")
	if envPath == "" {
		return fmt.Errorf("%w: PATH is empty, cannot install service", ErrMissingEnv)
	}

	envDbus := os.Getenv("DBUS_SESSION_BUS_ADDRESS")
	if envDbus == "" {
		return fmt.Errorf("%w: DBUS_SESSION_BUS_ADDRESS is empty, cannot install service", ErrMissingEnv)
	}

	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to detect executable path: %w", err)
	}

	exePath, err = filepath.EvalSymlinks(exePath)
	if err != nil {
		return fmt.Errorf("failed to resolve symlinks: %w", err)
	}

	absPath, err := filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get config dir: %w", err)
	}

	systemdDir := filepath.Join(configDir, "systemd", "user")
	serviceFile := filepath.Join(systemdDir, unitName)

	logger.Info().Msg("try to delete the old service instance")
	_ = runSystemctl(logger, "disable", "--now", unitName)

	if err := os.MkdirAll(systemdDir, 0o755); err != nil {
		return fmt.Errorf("failed to create systemd directory: %w", err)
	}

	content := Unit(absPath, args, envPath, envDbus)
	if err := os.WriteFile(serviceFile, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write service file: %w", err)
	}

	logger.Info().Str("path", serviceFile).Msg("service file created")

	for _, step := range [][]string{
		{"daemon-reload"},
		{"enable", unitName},
		{"restart", unitName},
	} {
		if err := runSystemctl(logger, step...); err != nil {
			return err
		}
	}

	logger.Info().Msg("service installed and started successfully")
	return nil
}

func runSystemctl(logger zerolog.Logger, args ...string) error {
	logger.Debug().Strs("args", args).Msg("executing systemctl")

	cmd := exec.Command("systemctl", append([]string{"--user"}, args...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("systemctl %s failed: %w", strings.Join(args, " "), err)
	}
	return nil
}
