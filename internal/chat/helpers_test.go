package chat

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy6609/roomchat/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.MetricsAddr = ""
	cfg.LogDir = t.TempDir()
	cfg.MaxClients = 8
	cfg.WriteTimeout = time.Second
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

// startServer runs a server on a loopback port until the test ends.
func startServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	srv := NewServer(cfg, nil, discardLogger())
	require.NoError(t, srv.Start())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv
}

type testConn struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, srv *Server) *testConn {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testConn{t: t, conn: conn, r: bufio.NewReader(conn)}
}

// join dials, completes the handshake and waits until the server has the
// client in room.
func join(t *testing.T, srv *Server, name string, room int) *testConn {
	t.Helper()
	tc := dial(t, srv)
	tc.send(name)
	tc.send(strconv.Itoa(room))
	waitForClient(t, srv, name, room)
	return tc
}

func (tc *testConn) send(line string) {
	tc.t.Helper()
	_, err := io.WriteString(tc.conn, line+"\n")
	require.NoError(tc.t, err)
}

func (tc *testConn) expectLine(want string) {
	tc.t.Helper()
	require.NoError(tc.t, tc.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := tc.r.ReadString('\n')
	require.NoError(tc.t, err, "waiting for %q", want)
	assert.Equal(tc.t, want, strings.TrimRight(line, "\n"))
}

func (tc *testConn) expectSilence(d time.Duration) {
	tc.t.Helper()
	require.NoError(tc.t, tc.conn.SetReadDeadline(time.Now().Add(d)))
	line, err := tc.r.ReadString('\n')
	var ne net.Error
	require.True(tc.t, errors.As(err, &ne) && ne.Timeout(), "unexpected line %q (err %v)", line, err)
}

// expectClosed reads until the server hangs up.
func (tc *testConn) expectClosed() {
	tc.t.Helper()
	require.NoError(tc.t, tc.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, err := tc.r.ReadString('\n')
		if err == nil {
			continue
		}
		var ne net.Error
		require.False(tc.t, errors.As(err, &ne) && ne.Timeout(), "connection still open")
		return
	}
}

func waitForClient(t *testing.T, srv *Server, name string, room int) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, info := range srv.Clients() {
			if info.Name == name && info.Room == room {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "client %s never joined room %d", name, room)
}

func waitForCount(t *testing.T, srv *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return srv.Registry().Len() == n
	}, 2*time.Second, 5*time.Millisecond, "registry never reached %d clients", n)
}
