package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy6609/roomchat/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.LogDir = t.TempDir()
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runWithTimeout(t *testing.T, a *App) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
		return nil
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxClients = 0

	_, err := New(cfg, nil, io.Discard, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_clients")
}

func TestRun_ExitCommandStopsCleanly(t *testing.T) {
	for _, metricsAddr := range []string{"", "127.0.0.1:0"} {
		t.Run("metrics="+metricsAddr, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.MetricsAddr = metricsAddr

			var out bytes.Buffer
			a, err := New(cfg, strings.NewReader("list\nexit\n"), &out, discardLogger())
			require.NoError(t, err)

			require.NoError(t, runWithTimeout(t, a))
			assert.Contains(t, out.String(), "Active users:\n")
			assert.True(t, strings.HasSuffix(out.String(), "Shutting down chat server.\n"))
		})
	}
}

func TestRun_CancelStopsWithoutConsole(t *testing.T) {
	cfg := testConfig(t)
	cfg.AdminConsole = false

	a, err := New(cfg, strings.NewReader("exit\n"), io.Discard, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return a.Chat().Addr() != nil }, 2*time.Second, 5*time.Millisecond)
	conn, err := net.Dial("tcp", a.Chat().Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return a.Chat().Registry().Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestRun_ChatBindFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig(t)
	cfg.Addr = busy.Addr().String()
	a, err := New(cfg, nil, io.Discard, discardLogger())
	require.NoError(t, err)

	err = runWithTimeout(t, a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen on")
}

func TestRun_MetricsBindFailureReleasesChatPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig(t)
	cfg.MetricsAddr = busy.Addr().String()
	a, err := New(cfg, nil, io.Discard, discardLogger())
	require.NoError(t, err)

	err = runWithTimeout(t, a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen metrics")

	_, err = net.Dial("tcp", a.Chat().Addr().String())
	assert.Error(t, err, "chat listener left open")
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}
