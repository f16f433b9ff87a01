package chat

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/andy6609/roomchat/internal/refcount"
)

// Client is the per-connection record. Conn, ID and Slot are fixed once the
// record is published in the registry; name and room are written by the
// owning session during the handshake and read by everyone else.
type Client struct {
	ID     int64
	Slot   int
	Conn   net.Conn
	Remote string

	mu     sync.Mutex
	name   string
	room   int
	closed bool

	wmu sync.Mutex // serializes writes to Conn
}

// ClientHandle is the reference-counted handle the registry stores per slot.
type ClientHandle = refcount.Handle[*Client]

// ClientInfo is a point-in-time copy of a client's visible state.
type ClientInfo struct {
	ID   int64
	Slot int
	Name string
	Room int
}

func newClient(id int64, conn net.Conn) *Client {
	c := &Client{ID: id, Slot: -1, Conn: conn}
	if conn != nil && conn.RemoteAddr() != nil {
		c.Remote = conn.RemoteAddr().String()
	}
	return c
}

// Name returns the display name, empty until the client has sent one.
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Room returns the room id; 0 means the handshake has not finished.
func (c *Client) Room() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Info returns a snapshot of the client.
func (c *Client) Info() ClientInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ClientInfo{ID: c.ID, Slot: c.Slot, Name: c.name, Room: c.room}
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) setName(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

// setRoom moves the client out of the lobby. The room is fixed afterwards.
func (c *Client) setRoom(room int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room != 0 {
		return false
	}
	c.room = room
	return true
}

// Close marks the record closed and closes the connection, unblocking any
// pending read. Only the first call has an effect.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.Conn == nil {
		return nil
	}
	return c.Conn.Close()
}

var (
	ErrRegistryFull   = errorString("registry_full")
	ErrSlotOccupied   = errorString("slot_occupied")
	ErrSlotOutOfRange = errorString("slot_out_of_range")
	ErrClientNotFound = errorString("client_not_found")
	ErrInvalidRoom    = errorString("invalid_room")
	ErrExit           = errorString("exit_requested")
)

type errorString string

func (e errorString) Error() string { return string(e) }

// isExpectedCloseError checks if an error is the normal result of a peer
// hanging up or of us closing the connection.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	var opErr *net.OpError
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		(errors.As(err, &opErr) && !opErr.Timeout())
}
