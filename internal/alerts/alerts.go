// Package alerts carries transient user-facing messages (toasts) from the
// sync clients to whatever renders them.
package alerts

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Level int

const (
	Info Level = iota
	Success
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

type Alert struct {
	Level   Level
	Title   string
	Message string
	At      time.Time
}

// Sink receives alerts. Implementations must be safe for concurrent use.
type Sink interface {
	Notify(a Alert)
}

type SinkFunc func(Alert)

func (f SinkFunc) Notify(a Alert) { f(a) }

// Discard drops every alert.
var Discard Sink = SinkFunc(func(Alert) {})

// LogSink writes alerts to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(a Alert) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch a.Level {
	case Warning:
		level = slog.LevelWarn
	case Error:
		level = slog.LevelError
	}
	logger.Log(context.Background(), level, a.Message, "alert", a.Level.String(), "title", a.Title)
}

// Recorder keeps every alert in memory.
type Recorder struct {
	mu     sync.Mutex
	alerts []Alert
}

func (r *Recorder) Notify(a Alert) {
	r.mu.Lock()
	r.alerts = append(r.alerts, a)
	r.mu.Unlock()
}

func (r *Recorder) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Alert, len(r.alerts))
	copy(out, r.alerts)
	return out
}

// Last returns the most recent alert, if any.
func (r *Recorder) Last() (Alert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.alerts) == 0 {
		return Alert{}, false
	}
	return r.alerts[len(r.alerts)-1], true
}

// Fanout delivers each alert to every sink.
type Fanout []Sink

func (f Fanout) Notify(a Alert) {
	for _, s := range f {
		if s != nil {
			s.Notify(a)
		}
	}
}

func Emit(s Sink, level Level, title, message string) {
	if s == nil {
		return
	}
	s.Notify(Alert{Level: level, Title: title, Message: message, At: time.Now()})
}
