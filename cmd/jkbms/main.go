// Command jkbms connects to a JK BMS over BLE GATT, streams decoded
// telemetry to stdout, and exits cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jkbms/goclient/internal/ble"
	"github.com/jkbms/goclient/internal/config"
	"github.com/jkbms/goclient/internal/protocol"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/jkbms/config.yaml)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	printBanner(cfg)

	adapter, err := ble.NewTinygoAdapter()
	if err != nil {
		logger.Error("failed to initialize BLE adapter", "error", err)
		os.Exit(1)
	}

	decoder, err := protocol.NewDecoder(protocol.JKProtocol())
	if err != nil {
		logger.Error("invalid protocol description", "error", err)
		os.Exit(1)
	}
	applyTimeoutOverrides(decoder.Spec(), cfg)

	observer := &consoleObserver{cfg: cfg, configPath: resolvedConfigPath(*configPath)}
	session := ble.NewSession(adapter, decoder, observer, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := session.Connect(ctx, cfg.Previous()); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	if err := session.Disconnect(protocol.ReasonUser); err != nil {
		logger.Error("disconnect failed", "error", err)
	}
}

// applyTimeoutOverrides substitutes the protocol's built-in timeouts
// with any non-zero overrides from cfg.
func applyTimeoutOverrides(spec *protocol.Spec, cfg *config.Config) {
	if cfg.Timeouts.Inactivity > 0 {
		spec.InactivityTimeout = cfg.Timeouts.Inactivity
	}
	if cfg.Timeouts.ConnectPrevious > 0 {
		spec.ConnectPreviousTimeout = cfg.Timeouts.ConnectPrevious
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		fmt.Printf("Config loaded from %s\n", defaultPath)
		return cfg, nil
	}

	fmt.Println("No config file found, using defaults")
	return config.Default(), nil
}

func resolvedConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	return config.DefaultConfigPath()
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== jkbms ===")
	if previous := cfg.Previous(); previous != nil {
		fmt.Printf("  Previous device: %s (%s)\n", previous.Name, previous.ID)
	} else {
		fmt.Println("  Previous device: none, will prompt")
	}
	fmt.Printf("  Inactivity timeout:       %s\n", cfg.Timeouts.Inactivity)
	fmt.Printf("  Connect-previous timeout: %s\n", cfg.Timeouts.ConnectPrevious)
	fmt.Printf("  Log level:                %s\n", cfg.LogLevel)
	fmt.Println("==============")
}

// consoleObserver renders Session callbacks to stdout/stderr and
// persists the connected device's identity back to the config file so
// the next run can reconnect without prompting.
type consoleObserver struct {
	ble.NoopObserver
	cfg        *config.Config
	configPath string
}

func (o *consoleObserver) OnStatusChange(status protocol.SessionStatus) {
	slog.Info("status changed", "status", status.String())
}

func (o *consoleObserver) OnConnected(identity protocol.DeviceIdentity) {
	slog.Info("connected", "device", identity.Name, "id", identity.ID)

	o.cfg.RecordPrevious(identity)
	if err := config.Save(o.cfg, o.configPath); err != nil {
		slog.Warn("failed to persist device identity", "error", err)
	}
}

func (o *consoleObserver) OnDisconnected(reason protocol.DisconnectReason) {
	slog.Info("disconnected", "reason", reason)
}

func (o *consoleObserver) OnRequestDeviceError(err error) {
	slog.Error("device request failed", "error", err)
}

func (o *consoleObserver) OnPreviousUnavailable(device ble.Device) {
	if device == nil {
		slog.Warn("previous device not found among known devices")
		return
	}
	slog.Warn("previous device not advertising", "device", device.Name())
}

func (o *consoleObserver) OnDataReceived(kind protocol.ResponseKind, record protocol.Record) {
	payload, err := json.Marshal(record)
	if err != nil {
		slog.Error("failed to marshal record", "kind", kind, "error", err)
		return
	}
	fmt.Printf("%s %s\n", kind, payload)
}

func (o *consoleObserver) OnError(err error) {
	slog.Error("session error", "error", err)
}

var _ ble.Observer = (*consoleObserver)(nil)
