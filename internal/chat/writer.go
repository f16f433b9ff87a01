package chat

import (
	"net"
	"time"
)

// Send writes line plus a trailing newline as a single write. Concurrent
// senders are serialized per client so lines never interleave on the wire.
func (c *Client) Send(line string, timeout time.Duration) error {
	if c.Closed() {
		return net.ErrClosed
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return writeLine(c.Conn, line, timeout)
}

func writeLine(conn net.Conn, line string, timeout time.Duration) error {
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')

	if timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
		defer func() { _ = conn.SetWriteDeadline(time.Time{}) }()
	}
	_, err := conn.Write(buf)
	return err
}
