// Package chatlog appends chat lines to a per-day log file and lets the
// operator search the current day's file.
package chatlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

// Logger writes one line per chat message to <dir>/chatlog_<YYYYMMDD>.log.
// All appends go through a single lock, so concurrent writers never
// interleave partial lines.
type Logger struct {
	dir string
	now func() time.Time

	mu sync.Mutex
}

// New returns a Logger rooted at dir. The directory is created lazily.
func New(dir string) *Logger {
	return &Logger{dir: dir, now: time.Now}
}

// Dir returns the directory log files are written to.
func (l *Logger) Dir() string {
	return l.dir
}

// PathFor returns the log file used for messages written at t.
func (l *Logger) PathFor(t time.Time) string {
	return filepath.Join(l.dir, "chatlog_"+t.Format("20060102")+".log")
}

// CurrentPath returns today's log file.
func (l *Logger) CurrentPath() string {
	return l.PathFor(l.now())
}

// Append opens today's file, writes line followed by a newline, and closes it.
func (l *Logger) Append(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	path := l.PathFor(l.now())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open chat log: %w", err)
	}

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	_, werr := f.Write(buf)
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("write chat log: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("close chat log: %w", cerr)
	}
	return nil
}

// Grep runs the grep binary with args against today's log file, copying its
// output to out. A search without matches is not an error.
func (l *Logger) Grep(ctx context.Context, args []string, out io.Writer) error {
	argv := make([]string, 0, len(args)+1)
	argv = append(argv, args...)
	argv = append(argv, l.CurrentPath())

	cmd := exec.CommandContext(ctx, "grep", argv...)
	cmd.Stdout = out
	cmd.Stderr = out
	err := cmd.Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return nil
	}
	if err != nil {
		return fmt.Errorf("grep chat log: %w", err)
	}
	return nil
}
