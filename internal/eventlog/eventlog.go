// Package eventlog writes user-visible, per-event progress lines.
//
// Every line carries the event id, a step and an optional status. Lines are journaled in the
// event store and fanned out on NATS subject <prefix>.<event_id> when a publisher is configured.
package eventlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/text/message"

	"git.home.luguber.info/inful/buildworker/internal/eventstore"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
)

// Level of an event-log line.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Status values written on terminal or transitional lines.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusPushing = "pushing"
	StatusWarning = "warning"
)

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Sink owns the shared outputs. Bind derives per-event loggers from it.
type Sink struct {
	store   eventstore.Store
	pub     Publisher
	prefix  string
	printer *message.Printer
	logger  *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

func WithStore(s eventstore.Store) Option { return func(k *Sink) { k.store = s } }

func WithPublisher(p Publisher, subjectPrefix string) Option {
	return func(k *Sink) {
		k.pub = p
		k.prefix = subjectPrefix
	}
}

func WithLocale(locale string) Option {
	return func(k *Sink) { k.printer = NewPrinter(locale) }
}

func WithLogger(l *slog.Logger) Option { return func(k *Sink) { k.logger = l } }

func NewSink(opts ...Option) *Sink {
	s := &Sink{printer: NewPrinter("en"), logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Discard returns a sink that only writes to the process log.
func Discard() *Sink { return NewSink() }

// Bind returns a logger for eventID starting at step.
func (s *Sink) Bind(eventID, step string) *Logger {
	return &Logger{sink: s, eventID: eventID, step: step}
}

// Logger is bound to one event id. It is cheap to copy with WithStep.
type Logger struct {
	sink    *Sink
	eventID string
	step    string
}

func (l *Logger) EventID() string { return l.eventID }

// WithStep returns a logger writing under step.
func (l *Logger) WithStep(step string) *Logger {
	cp := *l
	cp.step = step
	return &cp
}

func (l *Logger) Debug(msg Message, args ...any) { l.write(LevelDebug, "", msg, args...) }
func (l *Logger) Info(msg Message, args ...any)  { l.write(LevelInfo, "", msg, args...) }
func (l *Logger) Warn(msg Message, args ...any)  { l.write(LevelWarn, StatusWarning, msg, args...) }
func (l *Logger) Error(msg Message, args ...any) { l.write(LevelError, "", msg, args...) }

// Success writes a terminal success line.
func (l *Logger) Success(msg Message, args ...any) { l.write(LevelInfo, StatusSuccess, msg, args...) }

// Failure writes a terminal failure line.
func (l *Logger) Failure(msg Message, args ...any) { l.write(LevelError, StatusFailure, msg, args...) }

// Status writes an info line with an explicit status.
func (l *Logger) Status(status string, msg Message, args ...any) {
	l.write(LevelInfo, status, msg, args...)
}

// Output forwards one line of subprocess output verbatim.
func (l *Logger) Output(line string) {
	l.emit(eventstore.Entry{
		EventID:   l.eventID,
		Step:      l.step,
		Level:     string(LevelInfo),
		Message:   line,
		Timestamp: time.Now(),
	}, false)
}

func (l *Logger) write(level Level, status string, msg Message, args ...any) {
	text := l.sink.printer.Sprintf(string(msg), args...)
	l.emit(eventstore.Entry{
		EventID:   l.eventID,
		Step:      l.step,
		Status:    status,
		Level:     string(level),
		Message:   text,
		Timestamp: time.Now(),
	}, true)
}

func (l *Logger) emit(e eventstore.Entry, echo bool) {
	s := l.sink
	if echo {
		s.logger.Log(context.Background(), slogLevel(Level(e.Level)), e.Message,
			logfields.EventID(e.EventID), logfields.Stage(e.Step), slog.String("status", e.Status))
	}
	if s.store != nil {
		if err := s.store.Append(context.Background(), e); err != nil {
			s.logger.Warn("Failed to journal event line", logfields.EventID(e.EventID), logfields.Error(err))
		}
	}
	if s.pub != nil && e.EventID != "" {
		data, err := json.Marshal(e)
		if err != nil {
			return
		}
		if err := s.pub.Publish(s.prefix+"."+e.EventID, data); err != nil {
			s.logger.Warn("Failed to publish event line", logfields.EventID(e.EventID), logfields.Error(err))
		}
	}
}

func slogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
