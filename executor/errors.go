package executor

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrAlreadyLoaded  = errors.New("script already loaded")
	ErrNotLoaded      = errors.New("no script loaded")
	ErrAlreadyRun     = errors.New("session already ran")
	ErrExecutorClosed = errors.New("executor closed")
	// ErrUnsettled is reported when the top-level promise is still pending but
	// nothing is left that could settle it.
	ErrUnsettled = errors.New("top-level await never settled")
)

// EngineErrorKind classifies failures raised by the script engine itself.
type EngineErrorKind string

const (
	ParseFailure      EngineErrorKind = "ParseFailure"
	UncaughtException EngineErrorKind = "UncaughtException"
	Interrupted       EngineErrorKind = "Interrupted"
)

// EngineError is a script-level failure that ended a session.
type EngineError struct {
	Kind    EngineErrorKind
	Script  string
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Script == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Script, e.Message)
}

func (e *EngineError) Unwrap() error { return e.Err }

// IsEngineError reports whether err is an EngineError of the given kind.
func IsEngineError(err error, kind EngineErrorKind) bool {
	var ee *EngineError
	return errors.As(err, &ee) && ee.Kind == kind
}

// fromEngine classifies an error returned by goja while running script code.
func (s *Session) fromEngine(err error) *EngineError {
	var (
		interrupted *goja.InterruptedError
		exception   *goja.Exception
	)
	switch {
	case errors.As(err, &interrupted):
		msg := "execution interrupted"
		if cause, ok := interrupted.Value().(error); ok {
			msg = cause.Error()
		}
		return &EngineError{Kind: Interrupted, Script: s.script.Name, Message: msg, Err: err}
	case errors.As(err, &exception):
		return &EngineError{
			Kind:    UncaughtException,
			Script:  s.script.Name,
			Message: s.describe(exception.Value()),
			Err:     err,
		}
	}
	return &EngineError{Kind: UncaughtException, Script: s.script.Name, Message: err.Error(), Err: err}
}
