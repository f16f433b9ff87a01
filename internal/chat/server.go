package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andy6609/roomchat/internal/chatlog"
	"github.com/andy6609/roomchat/internal/config"
)

const (
	kickUserNotice = "You have been kicked from the chat."
	kickRoomNotice = "The room has been closed. You have been kicked out."

	acceptRetryMin = 5 * time.Millisecond
	acceptRetryMax = time.Second
)

// Server owns the listener, the client registry and every session goroutine.
type Server struct {
	cfg         config.Config
	logger      *slog.Logger
	reg         *Registry
	broadcaster *Broadcaster
	chatLog     *chatlog.Logger

	mu       sync.Mutex
	listener net.Listener

	nextID   atomic.Int64
	sessions sync.WaitGroup
}

func NewServer(cfg config.Config, chatLog *chatlog.Logger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if chatLog == nil {
		chatLog = chatlog.New(cfg.LogDir)
	}
	reg := NewRegistry(cfg.MaxClients, logger)
	return &Server{
		cfg:         cfg,
		logger:      logger,
		reg:         reg,
		broadcaster: NewBroadcaster(reg, chatLog, cfg.WriteTimeout, logger),
		chatLog:     chatLog,
	}
}

// Registry exposes the client table.
func (s *Server) Registry() *Registry { return s.reg }

// Broadcaster exposes the fan-out engine.
func (s *Server) Broadcaster() *Broadcaster { return s.broadcaster }

// ChatLog exposes the chat log.
func (s *Server) ChatLog() *chatlog.Logger { return s.chatLog }

// Start binds the listen address. Bind failures are returned as is; the
// caller treats them as fatal.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("server started", "addr", ln.Addr().String(), "max_clients", s.reg.Cap())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled or Stop is called, then
// closes every session and waits for them, bounded by the shutdown timeout.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("serve called before start")
	}

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.acceptLoop(ln)
	s.shutdown()
	return nil
}

// Stop closes the listener, which makes Serve return.
func (s *Server) Stop() {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
}

// acceptLoop runs until the listener is closed. Other accept errors, such as
// running out of descriptors, are retried with a capped backoff.
func (s *Server) acceptLoop(ln net.Listener) {
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if delay == 0 {
				delay = acceptRetryMin
			} else if delay *= 2; delay > acceptRetryMax {
				delay = acceptRetryMax
			}
			AcceptErrors.Inc()
			s.logger.Warn("accept failed, retrying", "error", err, "backoff", delay)
			time.Sleep(delay)
			continue
		}
		delay = 0
		s.admit(conn)
	}
}

func (s *Server) admit(conn net.Conn) {
	c := newClient(s.nextID.Add(1), conn)
	_, h, err := s.reg.Admit(c)
	if err != nil {
		RejectedConnections.Inc()
		s.logger.Warn("rejecting connection", "remote", c.Remote, "error", err)
		_ = conn.Close()
		return
	}
	s.logger.Info("client connected", "client_id", c.ID, "slot", c.Slot, "remote", c.Remote)

	h.Acquire()
	s.sessions.Add(1)
	go func() {
		defer s.sessions.Done()
		s.handleSession(h)
	}()
}

// Clients lists every active client in slot order.
func (s *Server) Clients() []ClientInfo {
	return s.reg.Clients()
}

// RoomCounts returns the occupancy of rooms 1..n; index i holds room i+1.
func (s *Server) RoomCounts(n int) []int {
	counts := make([]int, n)
	for _, info := range s.reg.Clients() {
		if info.Room >= 1 && info.Room <= n {
			counts[info.Room-1]++
		}
	}
	return counts
}

// KickUser disconnects the first client, in slot order, named name.
func (s *Server) KickUser(name string) error {
	var target *ClientHandle
	for _, h := range s.reg.Snapshot() {
		c, ok := h.Get()
		if target == nil && ok && !c.Closed() && c.Name() == name {
			target = h
			continue
		}
		_ = h.Release()
	}
	if target == nil {
		return ErrClientNotFound
	}
	s.forceClose(target, kickUserNotice)
	return nil
}

// KickRoom disconnects every client in room and returns how many were kicked.
// Matching handles are collected before any of them is torn down.
func (s *Server) KickRoom(room int) int {
	var targets []*ClientHandle
	for _, h := range s.reg.Snapshot() {
		c, ok := h.Get()
		if ok && !c.Closed() && c.Room() == room {
			targets = append(targets, h)
			continue
		}
		_ = h.Release()
	}
	for _, h := range targets {
		s.forceClose(h, kickRoomNotice)
	}
	return len(targets)
}

// forceClose detaches the record, sends notice and closes the connection.
// The slot is taken first: closing wakes the session, whose teardown would
// otherwise detach it. It consumes the caller's reference on h.
func (s *Server) forceClose(h *ClientHandle, notice string) {
	defer func() { _ = h.Release() }()

	c, ok := h.Get()
	if !ok {
		return
	}
	detached := s.reg.Detach(c.Slot, h)
	if detached && notice != "" {
		if err := c.Send(notice, s.cfg.WriteTimeout); err != nil && !isExpectedCloseError(err) {
			s.logger.Debug("kick notice not delivered", "client_id", c.ID, "error", err)
		}
	}
	if err := c.Close(); err != nil && !isExpectedCloseError(err) {
		s.logger.Warn("close connection", "client_id", c.ID, "error", err)
	}
	if detached && notice != "" {
		KickedClients.Inc()
		s.logger.Info("client kicked", "client_id", c.ID, "name", c.Name(), "room", c.Room())
	}
}

func (s *Server) shutdown() {
	s.logger.Info("shutting down")

	handles := s.reg.Snapshot()
	for _, h := range handles {
		s.forceClose(h, "")
	}

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		<-done
	} else {
		select {
		case <-done:
		case <-time.After(timeout):
			s.logger.Warn("shutdown timeout reached, some sessions may still be running")
			return
		}
	}
	s.logger.Info("shutdown complete", "closed_sessions", len(handles))
}
