package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// CommandKind identifies an operator console command.
type CommandKind int

const (
	// CommandNone is a blank line.
	CommandNone CommandKind = iota
	// CommandBroadcast sends the text to every client as the server.
	CommandBroadcast
	// CommandExit stops the server.
	CommandExit
	// CommandList prints active clients and per-room occupancy.
	CommandList
	// CommandKillUser kicks the first client with the given name.
	CommandKillUser
	// CommandKillRoom kicks every client in a room.
	CommandKillRoom
	// CommandGrep searches today's chat log.
	CommandGrep
)

func (k CommandKind) String() string {
	switch k {
	case CommandNone:
		return "none"
	case CommandBroadcast:
		return "broadcast"
	case CommandExit:
		return "exit"
	case CommandList:
		return "list"
	case CommandKillUser:
		return "kill_user"
	case CommandKillRoom:
		return "kill_room"
	case CommandGrep:
		return "grep"
	default:
		return "unknown"
	}
}

// Command is one parsed console line.
type Command struct {
	Kind CommandKind
	Name string   // CommandKillUser
	Room int      // CommandKillRoom
	Args []string // CommandGrep
	Text string   // CommandBroadcast
}

// ParseCommand turns an operator line into a Command. Anything that is not a
// well-formed command is a server broadcast of the line as typed.
func ParseCommand(line string) Command {
	line = strings.TrimRight(line, "\r\n")
	trimmed := strings.TrimSpace(line)
	broadcast := Command{Kind: CommandBroadcast, Text: line}

	switch {
	case trimmed == "":
		return Command{Kind: CommandNone}
	case trimmed == "exit" || trimmed == "...":
		return Command{Kind: CommandExit}
	case trimmed == "list":
		return Command{Kind: CommandList}
	}

	fields := strings.Fields(trimmed)
	switch fields[0] {
	case "kill":
		if len(fields) == 3 && fields[1] == "room" {
			room, err := strconv.Atoi(fields[2])
			if err != nil || room <= 0 {
				return broadcast
			}
			return Command{Kind: CommandKillRoom, Room: room}
		}
		name := strings.TrimSpace(strings.TrimPrefix(trimmed, "kill"))
		if name == "" || !strings.HasPrefix(trimmed, "kill ") {
			return broadcast
		}
		return Command{Kind: CommandKillUser, Name: name}
	case "grep":
		if len(fields) < 2 {
			return broadcast
		}
		return Command{Kind: CommandGrep, Args: fields[1:]}
	}
	return broadcast
}

// Console reads operator commands line by line and applies them to a Server.
type Console struct {
	srv       *Server
	in        io.Reader
	listRooms int
	lineSize  int
	logger    *slog.Logger

	outMu sync.Mutex
	out   io.Writer
}

func NewConsole(srv *Server, in io.Reader, out io.Writer, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{
		srv:       srv,
		in:        in,
		out:       out,
		listRooms: srv.cfg.ListRooms,
		lineSize:  srv.readBufferSize(),
		logger:    logger,
	}
}

// Run executes commands until the input ends (nil), ctx is cancelled (nil)
// or the operator asks to exit (ErrExit).
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		// Overlong lines are cut like client messages; the rest is dropped.
		r := bufio.NewReaderSize(c.in, c.lineSize)
		for {
			line, err := readLine(r)
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = nil
				}
				readErr <- err
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				c.logger.Warn("admin console input failed", "error", err)
			} else {
				c.logger.Info("admin console input closed")
			}
			return nil
		case line := <-lines:
			if err := c.Execute(ctx, ParseCommand(line)); err != nil {
				return err
			}
		}
	}
}

// Execute applies one command. Only CommandExit returns an error (ErrExit).
func (c *Console) Execute(ctx context.Context, cmd Command) error {
	if cmd.Kind == CommandNone {
		return nil
	}
	AdminCommands.WithLabelValues(cmd.Kind.String()).Inc()

	switch cmd.Kind {
	case CommandExit:
		c.printf("Shutting down chat server.\n")
		return ErrExit
	case CommandList:
		c.list()
	case CommandKillUser:
		if err := c.srv.KickUser(cmd.Name); errors.Is(err, ErrClientNotFound) {
			c.printf("User %s not found.\n", cmd.Name)
		} else {
			c.printf("User %s has been kicked.\n", cmd.Name)
		}
	case CommandKillRoom:
		c.srv.KickRoom(cmd.Room)
		c.printf("Room %d has been closed, and all users have been kicked.\n", cmd.Room)
	case CommandGrep:
		c.outMu.Lock()
		err := c.srv.ChatLog().Grep(ctx, cmd.Args, c.out)
		c.outMu.Unlock()
		if err != nil {
			c.printf("grep failed: %v\n", err)
		}
	case CommandBroadcast:
		c.srv.Broadcaster().ServerBroadcast(cmd.Text)
	}
	return nil
}

func (c *Console) list() {
	var b strings.Builder
	b.WriteString("Active users:\n")
	for _, info := range c.srv.Clients() {
		fmt.Fprintf(&b, "User: %s, Room: %d\n", info.Name, info.Room)
	}
	for i, n := range c.srv.RoomCounts(c.listRooms) {
		fmt.Fprintf(&b, "Room %d: %d users\n", i+1, n)
	}
	c.printf("%s", b.String())
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}
