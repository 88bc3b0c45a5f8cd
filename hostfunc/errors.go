package hostfunc

import (
	"context"
	"errors"
	"fmt"

	"github.com/caffeineduck/runjs/value"
)

// ErrorKind is the stable tag of a capability failure.
type ErrorKind string

const (
	NotFound     ErrorKind = "NotFound"
	Denied       ErrorKind = "Denied"
	NetworkError ErrorKind = "NetworkError"
	HttpError    ErrorKind = "HttpError"
	Timeout      ErrorKind = "Timeout"
)

// Error lets an ErrorKind be used as an errors.Is target.
func (k ErrorKind) Error() string { return string(k) }

// CapabilityError is a failure of a host capability. Scripts see it as a
// rejected promise whose reason is an Error named after Kind.
type CapabilityError struct {
	Kind       ErrorKind
	Capability string
	Message    string
	Status     int // HTTP status for HttpError
	Err        error
}

func (e *CapabilityError) Error() string {
	msg := string(e.Kind)
	if e.Capability != "" {
		msg += ": " + e.Capability
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// Is matches a bare ErrorKind.
func (e *CapabilityError) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}

// Describe implements value.Describer. The wrapped host error never reaches
// the script.
func (e *CapabilityError) Describe() value.ErrorInfo {
	msg := e.Message
	if e.Capability != "" {
		msg = e.Capability + ": " + msg
	}
	return value.ErrorInfo{
		Kind:       string(e.Kind),
		Message:    msg,
		Capability: e.Capability,
		Status:     e.Status,
	}
}

func newError(kind ErrorKind, capability, format string, args ...any) *CapabilityError {
	return &CapabilityError{Kind: kind, Capability: capability, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a capability failure, or "" when err is not one.
func KindOf(err error) ErrorKind {
	var ce *CapabilityError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// cancelled converts a context failure into Timeout, or returns nil when ctx
// is still live.
func cancelled(ctx context.Context, capability string) *CapabilityError {
	if ctx.Err() == nil {
		return nil
	}
	ce := newError(Timeout, capability, "operation cancelled")
	ce.Err = context.Cause(ctx)
	return ce
}
