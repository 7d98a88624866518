// Package notify delivers user-facing success and failure messages.
package notify

import (
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/rs/zerolog"
)

// Level classifies a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a single user-facing message.
type Notification struct {
	Level   Level
	Message string
}

// Notifier receives user-facing notifications.
type Notifier interface {
	Success(message string)
	Error(message string)
}

// Console writes notifications to a terminal. Successes go to out, errors to errOut.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
}

// NewConsole creates a console notifier.
func NewConsole(out, errOut io.Writer) *Console {
	return &Console{out: out, errOut: errOut}
}

func (c *Console) Success(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "✓ %s\n", message)
}

func (c *Console) Error(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.errOut, "✗ %s\n", message)
}

// Log writes notifications as structured log events.
type Log struct {
	logger zerolog.Logger
}

// NewLog creates a notifier backed by logger.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Success(message string) {
	l.logger.Info().Str("level_hint", string(LevelSuccess)).Msg(message)
}

func (l *Log) Error(message string) {
	l.logger.Error().Msg(message)
}

// Recorder keeps every notification in memory. It is safe for concurrent use.
type Recorder struct {
	mu            sync.Mutex
	notifications []Notification
}

func (r *Recorder) Success(message string) {
	r.record(LevelSuccess, message)
}

func (r *Recorder) Error(message string) {
	r.record(LevelError, message)
}

func (r *Recorder) record(level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, Notification{Level: level, Message: message})
}

// All returns a copy of the recorded notifications in order.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.notifications)
}

// Count returns how many notifications of level were recorded.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, note := range r.notifications {
		if note.Level == level {
			n++
		}
	}
	return n
}

// Reset discards everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = nil
}

// Discard drops every notification.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Success(string) {}
func (discard) Error(string)   {}
