package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultHistory = 500

// Entry is a log record kept in the in-memory history.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Options configures a Logger.
type Options struct {
	Level   string
	Format  string
	Output  io.Writer
	History int
}

// Logger writes structured log lines and remembers the most recent ones.
type Logger struct {
	*slog.Logger
	history *ring
}

// NewLogger creates a Logger that writes text lines to stdout at info level.
func NewLogger() *Logger {
	return New(Options{})
}

// New creates a Logger from options.
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	size := opts.History
	if size <= 0 {
		size = defaultHistory
	}
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	history := newRing(size)
	return &Logger{
		Logger:  slog.New(&recordingHandler{Handler: handler, history: history}),
		history: history,
	}
}

// ParseLevel maps a level name to a slog level; unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Recent returns up to n of the newest entries, oldest first.
func (l *Logger) Recent(n int) []Entry {
	return l.history.last(n)
}

// Discard returns a Logger that only keeps history. Useful in tests.
func Discard() *Logger {
	return New(Options{Output: io.Discard, Level: "debug"})
}

type recordingHandler struct {
	slog.Handler
	history *ring
	attrs   []slog.Attr
}

func (h *recordingHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := Entry{Time: r.Time, Level: r.Level.String(), Message: r.Message}
	if len(h.attrs) > 0 || r.NumAttrs() > 0 {
		entry.Attrs = make(map[string]any, len(h.attrs)+r.NumAttrs())
		for _, a := range h.attrs {
			entry.Attrs[a.Key] = attrValue(a.Value)
		}
		r.Attrs(func(a slog.Attr) bool {
			entry.Attrs[a.Key] = attrValue(a.Value)
			return true
		})
	}
	h.history.add(entry)
	return h.Handler.Handle(ctx, r)
}

// attrValue converts a value into something that survives JSON encoding.
// Errors keep their message and other non-basic values their text form.
func attrValue(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString, slog.KindInt64, slog.KindUint64, slog.KindFloat64, slog.KindBool, slog.KindTime:
		return v.Any()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindGroup:
		group := make(map[string]any, len(v.Group()))
		for _, a := range v.Group() {
			group[a.Key] = attrValue(a.Value)
		}
		return group
	}
	if err, ok := v.Any().(error); ok {
		return err.Error()
	}
	return v.String()
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &recordingHandler{Handler: h.Handler.WithAttrs(attrs), history: h.history, attrs: merged}
}

func (h *recordingHandler) WithGroup(name string) slog.Handler {
	return &recordingHandler{Handler: h.Handler.WithGroup(name), history: h.history, attrs: h.attrs}
}

type ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

func newRing(size int) *ring {
	return &ring{entries: make([]Entry, size)}
}

func (r *ring) add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) last(n int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := r.next
	if r.full {
		count = len(r.entries)
	}
	if n <= 0 || n > count {
		n = count
	}
	out := make([]Entry, 0, n)
	start := (r.next - n + len(r.entries)) % len(r.entries)
	for i := 0; i < n; i++ {
		out = append(out, r.entries[(start+i)%len(r.entries)])
	}
	return out
}
