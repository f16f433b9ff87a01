package chat

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/andy6609/roomchat/internal/chatlog"
)

const serverLabel = "server"

// Broadcaster formats chat lines, appends them to the chat log and writes
// them to every matching recipient.
type Broadcaster struct {
	reg          *Registry
	chatLog      *chatlog.Logger
	writeTimeout time.Duration
	logger       *slog.Logger
}

func NewBroadcaster(reg *Registry, chatLog *chatlog.Logger, writeTimeout time.Duration, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		reg:          reg,
		chatLog:      chatLog,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// Deliver sends "[name]: message" from the client in senderSlot to every
// other client in room. It returns the number of recipients written to.
func (b *Broadcaster) Deliver(senderSlot int, message string, room int) (int, error) {
	h, ok := b.reg.Lookup(senderSlot)
	if !ok || !h.Acquire() {
		return 0, ErrClientNotFound
	}
	defer func() { _ = h.Release() }()

	sender, ok := h.Get()
	if !ok {
		return 0, ErrClientNotFound
	}
	return b.deliverFrom(sender, message, room), nil
}

// DeliverFrom is Deliver for a caller that already holds the sender's record.
func (b *Broadcaster) DeliverFrom(sender *Client, message string) int {
	return b.deliverFrom(sender, message, sender.Room())
}

func (b *Broadcaster) deliverFrom(sender *Client, message string, room int) int {
	start := time.Now()
	line := formatLine(sender.Name(), message)
	b.appendLog(line)

	sent := b.fanOut(line, func(c *Client) bool {
		return c != sender && c.Slot != sender.Slot && c.Room() == room
	})

	MessagesTotal.WithLabelValues("room").Inc()
	BroadcastDuration.WithLabelValues("room").Observe(time.Since(start).Seconds())
	return sent
}

// ServerBroadcast sends "[server]: message" to every connected client,
// whatever its room.
func (b *Broadcaster) ServerBroadcast(message string) int {
	start := time.Now()
	line := formatLine(serverLabel, message)
	b.appendLog(line)

	sent := b.fanOut(line, nil)

	MessagesTotal.WithLabelValues("server").Inc()
	BroadcastDuration.WithLabelValues("server").Observe(time.Since(start).Seconds())
	return sent
}

func (b *Broadcaster) fanOut(line string, match func(*Client) bool) int {
	sent := 0
	b.reg.ForEach(match, func(c *Client) {
		if err := c.Send(line, b.writeTimeout); err != nil {
			// A recipient going away mid-broadcast is routine.
			if errors.Is(err, net.ErrClosed) {
				return
			}
			WriteFailures.Inc()
			b.logger.Debug("broadcast write failed", "client_id", c.ID, "slot", c.Slot, "error", err)
			return
		}
		sent++
	})
	return sent
}

func (b *Broadcaster) appendLog(line string) {
	if b.chatLog == nil {
		return
	}
	if err := b.chatLog.Append(line); err != nil {
		ChatLogFailures.Inc()
		b.logger.Warn("chat log append failed", "error", err)
	}
}

func formatLine(name, message string) string {
	return "[" + name + "]: " + message
}
