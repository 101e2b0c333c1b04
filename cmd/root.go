package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dhcgn/mail-campaign/config"
)

var rootCmd = &cobra.Command{
	Use:           "mail-campaign",
	Short:         "Send personalized mail campaigns and recover addresses that bounced",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	config.RegisterCommonFlags(rootCmd)
}

// Execute runs the command line until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// startRun configures logging for one command invocation. Every record carries
// the run id, which is also returned.
func startRun(common config.Common, command string) (*slog.Logger, string, func() error, error) {
	logger, cleanup, err := setupLogger(common, os.Stdout)
	if err != nil {
		return nil, "", nil, err
	}

	runID := uuid.NewString()
	logger = logger.With("run", runID, "command", command)
	slog.SetDefault(logger)
	if common.ConfigFile != "" {
		logger.Debug("using config file", "path", common.ConfigFile)
	}
	return logger, runID, cleanup, nil
}

func setupLogger(common config.Common, stdout io.Writer) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch common.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if common.LogDir != "" {
		if err := os.MkdirAll(common.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(common.LogDir, fmt.Sprintf("mail-campaign-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(stdout, opts)
	return slog.New(handler), cleanup, nil
}
