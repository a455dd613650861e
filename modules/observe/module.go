// Package observe keeps a ring of the service's most recent log lines and
// serves them over HTTP, so operators can tail a node without shell access.
package observe

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
)

const maxLines = 250

// Ring holds the last maxLines formatted log lines.
type Ring struct {
	mu    sync.RWMutex
	lines []string
	next  int
	full  bool
}

func NewRing() *Ring {
	return &Ring{lines: make([]string, maxLines)}
}

func (r *Ring) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines[r.next] = line
	r.next = (r.next + 1) % maxLines
	if r.next == 0 {
		r.full = true
	}
}

// Lines returns the buffered lines, oldest first.
func (r *Ring) Lines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.full {
		out := make([]string, r.next)
		copy(out, r.lines[:r.next])
		return out
	}
	out := make([]string, 0, maxLines)
	out = append(out, r.lines[r.next:]...)
	out = append(out, r.lines[:r.next]...)
	return out
}

// Module owns the log ring.
type Module struct {
	ring   *Ring
	logger types.Logger
}

var _ mono.Module = (*Module)(nil)

func NewModule(logger types.Logger) *Module {
	return &Module{ring: NewRing(), logger: logger}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "observe"
}

func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Observe module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Observe module stopped")
	return nil
}

// Ring returns the log ring; wrap the application logger with WrapLogger to
// feed it.
func (m *Module) Ring() *Ring {
	return m.ring
}

// LogsHandler serves the ring as a minimal HTML page, newest lines last.
func (m *Module) LogsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(strings.Join(m.ring.Lines(), "<br />\n"))
	}
}

// WrapLogger returns a logger that records every line in the ring while
// delegating to the inner logger.
func (m *Module) WrapLogger(inner types.Logger) types.Logger {
	return &teeLogger{inner: inner, ring: m.ring}
}

type teeLogger struct {
	inner types.Logger
	ring  *Ring
}

func (l *teeLogger) record(level, msg string, args []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s", time.Now().UTC().Format("2006-01-02T15:04:05Z"), level, msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	l.ring.Append(b.String())
}

func (l *teeLogger) Debug(msg string, args ...any) {
	l.record("DEBUG", msg, args)
	l.inner.Debug(msg, args...)
}

func (l *teeLogger) Info(msg string, args ...any) {
	l.record("INFO", msg, args)
	l.inner.Info(msg, args...)
}

func (l *teeLogger) Warn(msg string, args ...any) {
	l.record("WARN", msg, args)
	l.inner.Warn(msg, args...)
}

func (l *teeLogger) Error(msg string, args ...any) {
	l.record("ERROR", msg, args)
	l.inner.Error(msg, args...)
}

func (l *teeLogger) With(args ...any) types.Logger {
	return &teeLogger{inner: l.inner.With(args...), ring: l.ring}
}

func (l *teeLogger) WithError(err error) types.Logger {
	return &teeLogger{inner: l.inner.WithError(err), ring: l.ring}
}

func (l *teeLogger) WithModule(module string) types.Logger {
	return &teeLogger{inner: l.inner.WithModule(module), ring: l.ring}
}

var _ types.Logger = (*teeLogger)(nil)
