package publisher

import (
	"fmt"
	"io"
	"log/slog"
)

// Level is the severity of a user-facing notice.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notice is one message shown to the user.
type Notice struct {
	Level   Level
	Message string
}

// Notifier surfaces notices to the user.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// WriterNotifier prints info notices to Out and everything else to Err.
type WriterNotifier struct {
	Out io.Writer
	Err io.Writer
}

func (w WriterNotifier) Notify(n Notice) {
	slog.Debug("publish: notice", "level", n.Level.String(), "message", n.Message)
	dst := w.Out
	if n.Level != LevelInfo && w.Err != nil {
		dst = w.Err
	}
	if dst == nil {
		return
	}
	switch n.Level {
	case LevelInfo:
		fmt.Fprintln(dst, n.Message)
	default:
		fmt.Fprintf(dst, "%s: %s\n", n.Level, n.Message)
	}
}
