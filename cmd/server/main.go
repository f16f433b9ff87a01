package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/andy6609/roomchat/internal/app"
	"github.com/andy6609/roomchat/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type flags struct {
	configPath  string
	addr        string
	metricsAddr string
	logDir      string
	logLevel    string
	noConsole   bool
}

func newRootCmd() *cobra.Command {
	var f flags

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, f)
		},
	}
	serve.Flags().StringVar(&f.addr, "addr", "", "chat listen address (default :5100)")
	serve.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "metrics listen address, empty string disables")
	serve.Flags().StringVar(&f.logDir, "log-dir", "", "directory for chatlog_<date>.log files")
	serve.Flags().StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	serve.Flags().BoolVar(&f.noConsole, "no-console", false, "do not read operator commands from stdin")

	show := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := config.Load(nil, f.configPath)
			if err != nil {
				return err
			}
			return config.WriteYAML(cmd.OutOrStdout(), cfg)
		},
	}

	root := &cobra.Command{
		Use:           "roomchat",
		Short:         "Multi-room TCP chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", "", "path to a YAML config file")
	root.Flags().AddFlagSet(serve.Flags())
	root.AddCommand(serve, show)
	return root
}

func runServe(cmd *cobra.Command, f flags) error {
	boot := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, path, err := config.Load(boot, f.configPath)
	if err != nil {
		boot.Error("failed to load config", "error", err)
		return err
	}
	applyFlags(cmd, f, &cfg)

	// stdout belongs to the operator console
	logger := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if path != "" {
		logger.Info("config loaded", "path", path)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, os.Stdin, os.Stdout, logger)
	if err != nil {
		logger.Error("failed to build server", "error", err)
		return err
	}
	if err := application.Run(ctx); err != nil {
		logger.Error("server exited with error", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}

func applyFlags(cmd *cobra.Command, f flags, cfg *config.Config) {
	fs := cmd.Flags()
	if fs.Changed("addr") {
		cfg.Addr = f.addr
	}
	if fs.Changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	if fs.Changed("log-dir") {
		cfg.LogDir = f.logDir
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if f.noConsole {
		cfg.AdminConsole = false
	}
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(level string) slog.Level {
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
