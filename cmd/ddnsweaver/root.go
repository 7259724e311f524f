package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ddnsweaver",
		Short: "Dynamic DNS update service",
		Long: `ddnsweaver keeps DNS address records pointed at clients whose public
address changes.

A client runs "ddnsweaver trigger" on a schedule. The server ("ddnsweaver
serve") checks the client's key and secret, reads the client's address from
the connection, and rewrites the record when the address changed.

Quick start:
  ddnsweaver digest --secret 's3cret'          # Hash a secret for the store
  ddnsweaver provision --key home --domain home.example.com --zone Z123
  ddnsweaver serve                             # Run the update service
  KEY=home SECRET=s3cret URL=https://ddns.example.com/update ddnsweaver trigger`,
		Version:       Version + " (built " + BuildDate + ")",
		SilenceUsage:  true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newTriggerCommand())
	cmd.AddCommand(newDigestCommand())
	cmd.AddCommand(newProvisionCommand())

	return cmd
}

func setupLogger(w io.Writer, level, format string) *slog.Logger {
	logLevel := parseLogLevel(level)

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel})
	}

	return slog.New(handler)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// clientLogger is used by the short-lived commands. It writes text to
// stderr so stdout stays clean for command output.
func clientLogger(level string) *slog.Logger {
	return setupLogger(os.Stderr, level, "text")
}
