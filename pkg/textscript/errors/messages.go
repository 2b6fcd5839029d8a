package errors

import (
	"log/slog"
	"strconv"
	"strings"
)

// Messages accumulates lexer and parser diagnostics.
type Messages []*ScriptError

// Add appends a diagnostic.
func (m *Messages) Add(err *ScriptError) {
	if err != nil {
		*m = append(*m, err)
	}
}

// HasErrors reports whether any message has error severity.
func (m Messages) HasErrors() bool {
	for _, e := range m {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns the messages with error severity.
func (m Messages) Errors() Messages {
	var out Messages
	for _, e := range m {
		if e.Severity == SeverityError {
			out = append(out, e)
		}
	}
	return out
}

// WithFile returns a copy with every message attributed to file.
func (m Messages) WithFile(file string) Messages {
	if file == "" {
		return m
	}
	out := make(Messages, len(m))
	for i, e := range m {
		out[i] = e.WithFile(file)
	}
	return out
}

// String joins the messages one per line.
func (m Messages) String() string {
	var sb strings.Builder
	for i, e := range m {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(e.String())
	}
	return sb.String()
}

// Err returns the messages as a single error, or nil when there are no
// errors. The first error is available through errors.As.
func (m Messages) Err() error {
	errs := m.Errors()
	if len(errs) == 0 {
		return nil
	}
	return &ParseErrors{Messages: errs}
}

// LogValue implements slog.LogValuer.
func (m Messages) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(m))
	for i, e := range m {
		attrs = append(attrs, slog.Any(strconv.Itoa(i), e))
	}
	return slog.GroupValue(attrs...)
}

// ParseErrors reports the errors of a template that failed to parse.
type ParseErrors struct {
	Messages Messages
}

func (p *ParseErrors) Error() string { return p.Messages.String() }

// Unwrap exposes each message to errors.Is and errors.As.
func (p *ParseErrors) Unwrap() []error {
	out := make([]error, len(p.Messages))
	for i, e := range p.Messages {
		out[i] = e
	}
	return out
}
