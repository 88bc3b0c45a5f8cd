package value

import (
	"errors"
	"fmt"
)

// KindTypeMismatch is the error kind of a MarshalError.
const KindTypeMismatch = "TypeMismatch"

// ErrorInfo is the script-visible description of an error: a stable kind tag,
// a human-readable message and, when known, the capability it came from.
type ErrorInfo struct {
	Kind       string
	Message    string
	Capability string
	Status     int // HTTP status, only for HttpError
}

func (e ErrorInfo) String() string {
	if e.Message == "" {
		return e.Kind
	}
	return e.Kind + ": " + e.Message
}

// Describer is implemented by host errors that may be shown to scripts.
// Errors that do not implement it are presented as an opaque internal error.
type Describer interface {
	Describe() ErrorInfo
}

// Describe returns the script-visible form of err.
func Describe(err error) ErrorInfo {
	var d Describer
	if errors.As(err, &d) {
		return d.Describe()
	}
	return ErrorInfo{Kind: "Error", Message: "internal error"}
}

// MarshalError reports a script value whose tag does not match the shape a
// capability expects.
type MarshalError struct {
	Capability string
	Param      string
	Expected   Shape
	Got        Kind
	Reason     string
}

func (e *MarshalError) Error() string {
	return e.Describe().String()
}

// Describe implements Describer.
func (e *MarshalError) Describe() ErrorInfo {
	var msg string
	switch {
	case e.Reason != "":
		msg = fmt.Sprintf("argument %q: %s", e.Param, e.Reason)
	default:
		msg = fmt.Sprintf("argument %q must be %s, got %s", e.Param, e.Expected, e.Got)
	}
	if e.Capability != "" {
		msg = e.Capability + ": " + msg
	}
	return ErrorInfo{Kind: KindTypeMismatch, Message: msg, Capability: e.Capability}
}

// IsTypeMismatch reports whether err is or wraps a MarshalError.
func IsTypeMismatch(err error) bool {
	var me *MarshalError
	return errors.As(err, &me)
}
