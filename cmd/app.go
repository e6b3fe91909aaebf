package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/teemow/inboxcopilot/internal/config"
	"github.com/teemow/inboxcopilot/internal/instrumentation"
	"github.com/teemow/inboxcopilot/internal/logging"
	"github.com/teemow/inboxcopilot/internal/server"
)

// loadConfig reads the .env file, the environment and the settings file,
// applies the persistent flags and validates the result.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if settingsPath != "" {
		settings, err := config.LoadSettings(settingsPath)
		if err != nil {
			return nil, err
		}
		cfg.SettingsPath = settingsPath
		cfg.Settings = settings
	}
	if debugMode {
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newCLILogger returns the text logger the one-shot commands write to
// stderr.
func newCLILogger(cfg *config.Config) *slog.Logger {
	return logging.NewLogger(os.Stderr, logging.Options{Debug: cfg.Debug})
}

// newCLIContext builds the server context for a one-shot command. Actions
// are audit logged like in server mode.
func newCLIContext(ctx context.Context) (*server.ServerContext, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newCLILogger(cfg)
	slog.SetDefault(logger)

	sc, err := server.NewServerContext(ctx, server.Options{
		Config: cfg,
		Audit:  instrumentation.NewAuditLogger(logger),
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create server context: %w", err)
	}
	return sc, nil
}
