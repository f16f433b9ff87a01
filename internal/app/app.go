package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/andy6609/roomchat/internal/chat"
	"github.com/andy6609/roomchat/internal/chatlog"
	"github.com/andy6609/roomchat/internal/config"
)

// App wires the chat server, the operator console and the metrics endpoint.
type App struct {
	cfg     config.Config
	log     *slog.Logger
	chat    *chat.Server
	console *chat.Console
	metrics *http.Server
}

// New constructs the application. stdin/stdout feed the operator console;
// pass nil stdin to run without one.
func New(cfg config.Config, stdin io.Reader, stdout io.Writer, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	srv := chat.NewServer(cfg, chatlog.New(cfg.LogDir), logger.With("component", "chat"))

	a := &App{
		cfg:  cfg,
		log:  logger,
		chat: srv,
	}
	if cfg.AdminConsole && stdin != nil {
		a.console = chat.NewConsole(srv, stdin, stdout, logger.With("component", "console"))
	}
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/health", healthHandler)
		a.metrics = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return a, nil
}

// Chat returns the chat server.
func (a *App) Chat() *chat.Server { return a.chat }

// Run starts every component and blocks until ctx is cancelled, the
// operator exits, or a component fails. Bind failures are returned before
// anything is served.
func (a *App) Run(ctx context.Context) error {
	if err := a.chat.Start(); err != nil {
		return err
	}

	var metricsLn net.Listener
	if a.metrics != nil {
		ln, err := net.Listen("tcp", a.metrics.Addr)
		if err != nil {
			a.chat.Stop()
			return fmt.Errorf("listen metrics on %s: %w", a.metrics.Addr, err)
		}
		metricsLn = ln
		a.log.Info("metrics endpoint listening", "addr", ln.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.chat.Serve(gctx)
	})

	if a.console != nil {
		g.Go(func() error {
			return a.console.Run(gctx)
		})
	}

	if metricsLn != nil {
		g.Go(func() error {
			if err := a.metrics.Serve(metricsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			if a.cfg.ShutdownTimeout <= 0 {
				return a.metrics.Close()
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
			defer cancel()
			return a.metrics.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	if errors.Is(err, chat.ErrExit) {
		return nil
	}
	return err
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, "ok\n")
}
