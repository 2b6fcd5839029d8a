package log

import (
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Level is the severity of a record.
type Level slog.Level

const (
	LevelTrace = Level(-8)
	LevelDebug = Level(slog.LevelDebug)
	LevelInfo  = Level(slog.LevelInfo)
	LevelWarn  = Level(slog.LevelWarn)
	LevelError = Level(slog.LevelError)
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = LevelInfo

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return "level(" + strconv.Itoa(int(l)) + ")"
}

// ParseLevel parses "trace", "debug", "info", "warn" or "error" (any case),
// with the offset syntax of [slog.Level.UnmarshalText]. Unknown input yields
// [DefaultLevel].
func ParseLevel(s string) Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "trace") {
		return LevelTrace
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return DefaultLevel
	}
	return Level(l)
}

// Format selects the record encoding.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// DefaultFormat is used when no format is configured.
const DefaultFormat = FormatText

func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "text"
}

// ParseFormat parses "text" or "json". Unknown input yields [DefaultFormat].
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON
	case "text":
		return FormatText
	}
	return DefaultFormat
}

// Option configures a Logger.
type Option func(*settings)

type settings struct {
	output     io.Writer
	level      Level
	format     Format
	timeLayout string
	caller     bool
}

func makeSettings(w io.Writer, opts ...Option) settings {
	if w == nil {
		w = io.Discard
	}
	s := settings{
		output:     w,
		level:      DefaultLevel,
		format:     DefaultFormat,
		timeLayout: time.RFC3339,
	}
	return s.apply(opts...)
}

func (s settings) apply(opts ...Option) settings {
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// WithLevel sets the minimum level.
func WithLevel(level Level) Option {
	return func(s *settings) { s.level = level }
}

// WithFormat sets the encoding.
func WithFormat(format Format) Option {
	return func(s *settings) { s.format = format }
}

// WithTimeLayout sets the timestamp layout. An empty layout omits timestamps.
func WithTimeLayout(layout string) Option {
	return func(s *settings) { s.timeLayout = strings.TrimSpace(layout) }
}

// WithCaller adds source locations to records.
func WithCaller(enable bool) Option {
	return func(s *settings) { s.caller = enable }
}

func (s settings) handler() slog.Handler {
	opts := &slog.HandlerOptions{
		AddSource: s.caller,
		Level:     slog.Level(s.level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				if s.timeLayout == "" {
					return slog.Attr{}
				}
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(s.timeLayout))
				}
			case slog.LevelKey:
				// "TRACE" rather than slog's "DEBUG-4"
				if l, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(strings.ToUpper(Level(l).String()))
				}
			}
			return a
		},
	}
	if s.format == FormatJSON {
		return slog.NewJSONHandler(s.output, opts)
	}
	return slog.NewTextHandler(s.output, opts)
}
