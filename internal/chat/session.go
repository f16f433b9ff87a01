package chat

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// sessionState tracks where a connection is in the handshake.
type sessionState int

const (
	stateAwaitingName sessionState = iota
	stateAwaitingRoom
	stateActive
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateAwaitingName:
		return "awaiting_name"
	case stateAwaitingRoom:
		return "awaiting_room"
	case stateActive:
		return "active"
	default:
		return "closed"
	}
}

// handleSession runs one connection: name, room, then chat lines until the
// peer hangs up or an operator kicks it. h is the session's own reference.
func (s *Server) handleSession(h *ClientHandle) {
	c, ok := h.Get()
	if !ok {
		return
	}
	log := s.logger.With(
		"client_id", c.ID,
		"slot", c.Slot,
		"remote", c.Remote,
		"session", uuid.NewString(),
	)

	state := stateAwaitingName
	defer func() {
		s.teardown(h, c, state, log)
	}()

	reader := bufio.NewReaderSize(c.Conn, s.readBufferSize())

	line, err := readLine(reader)
	name := truncate(strings.TrimSpace(line), s.cfg.MaxNameLength)
	if err != nil || name == "" {
		logReadEnd(log, state, err)
		return
	}
	c.setName(name)
	log = log.With("name", name)
	state = stateAwaitingRoom

	line, err = readLine(reader)
	if err != nil {
		logReadEnd(log, state, err)
		return
	}
	room, err := parseRoom(line)
	if err != nil {
		log.Info("rejecting room selection", "input", truncate(line, 32), "error", err)
		return
	}
	c.setRoom(room)
	log.Info("client joined room", "room", room)
	state = stateActive

	for {
		line, err := readLine(reader)
		if err != nil {
			logReadEnd(log, state, err)
			return
		}
		text := truncate(line, s.cfg.MaxMessageSize)
		if strings.TrimSpace(text) == "" {
			continue
		}
		if c.Closed() {
			return
		}
		log.Debug("client message", "room", room, "bytes", len(text))
		s.broadcaster.DeliverFrom(c, text)
	}
}

// teardown is the single exit path for a session. Close and Detach are both
// idempotent, so it is safe when an operator kick already did the same.
func (s *Server) teardown(h *ClientHandle, c *Client, state sessionState, log *slog.Logger) {
	if err := c.Close(); err != nil && !isExpectedCloseError(err) {
		log.Warn("close connection", "error", err)
	}
	if s.reg.Detach(c.Slot, h) {
		log.Info("client disconnected", "state", state.String(), "room", c.Room())
	}
	if err := h.Release(); err != nil {
		log.Warn("session reference already released", "error", err)
	}
}

func (s *Server) readBufferSize() int {
	size := s.cfg.MaxMessageSize
	if s.cfg.MaxNameLength > size {
		size = s.cfg.MaxNameLength
	}
	return size + 2
}

func logReadEnd(log *slog.Logger, state sessionState, err error) {
	if err == nil || isExpectedCloseError(err) {
		log.Debug("connection closed", "state", state.String())
		return
	}
	log.Warn("read failed", "state", state.String(), "error", err)
}

// readLine returns the next newline-terminated line without its line ending.
// Lines longer than the reader's buffer are cut at the buffer size and the
// rest is discarded.
func readLine(r *bufio.Reader) (string, error) {
	chunk, err := r.ReadSlice('\n')
	line := string(chunk)
	for errors.Is(err, bufio.ErrBufferFull) {
		_, err = r.ReadSlice('\n')
	}
	if err == nil {
		return strings.TrimRight(line, "\r\n"), nil
	}
	if err == io.EOF && line != "" {
		// last line without newline
		return strings.TrimRight(line, "\r\n"), nil
	}
	if err == io.EOF {
		return "", io.EOF
	}
	return "", fmt.Errorf("read: %w", err)
}

func parseRoom(line string) (int, error) {
	room, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || room <= 0 {
		return 0, ErrInvalidRoom
	}
	return room, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
