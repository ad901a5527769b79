package core

import (
	"fmt"
	"strings"
)

// ValidationError rejects a whole dataset before any row is processed.
type ValidationError struct {
	Operation string
	Missing   []string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "validation error"
	}
	quoted := make([]string, 0, len(e.Missing))
	for _, m := range e.Missing {
		quoted = append(quoted, fmt.Sprintf("%q", m))
	}
	msg := "missing required column"
	if len(quoted) > 1 {
		msg += "s"
	}
	msg += " " + strings.Join(quoted, ", ")
	if strings.TrimSpace(e.Operation) != "" {
		return e.Operation + ": " + msg
	}
	return msg
}

// ServiceError is a failed call to the completion service.
//
// StatusCode is zero when the failure happened before an HTTP response was received.
type ServiceError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	if e == nil {
		return "completion service error"
	}
	parts := []string{"completion service error"}
	if strings.TrimSpace(e.Provider) != "" {
		parts = append(parts, "provider="+strings.TrimSpace(e.Provider))
	}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg != "" {
		parts = append(parts, "message="+msg)
	}
	return strings.Join(parts, " ")
}

func (e *ServiceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ParseError reports model output that does not have the expected shape.
type ParseError struct {
	// Stage names the parsing step that rejected the output (e.g. "tokens", "json").
	Stage string
	// Raw is a truncated excerpt of the offending completion text.
	Raw string
	Err error
}

const maxRawExcerpt = 120

// NewParseError builds a ParseError, truncating raw to a short excerpt.
func NewParseError(stage, raw string, err error) *ParseError {
	raw = strings.TrimSpace(raw)
	if len(raw) > maxRawExcerpt {
		raw = raw[:maxRawExcerpt] + "..."
	}
	return &ParseError{Stage: stage, Raw: raw, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return "parse error"
	}
	msg := "parse error"
	if e.Stage != "" {
		msg += ": stage=" + e.Stage
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Raw != "" {
		msg += fmt.Sprintf(" raw=%q", e.Raw)
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
