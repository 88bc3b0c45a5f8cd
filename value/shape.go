package value

import (
	"net/url"
)

// Shape is the host-side expectation for one capability argument.
type Shape uint8

const (
	ShapeAny Shape = iota
	ShapeString
	ShapeNonEmptyString
	// ShapeURL is an absolute http or https URL string.
	ShapeURL
	ShapeNumber
	ShapeBoolean
)

func (s Shape) String() string {
	switch s {
	case ShapeAny:
		return "any"
	case ShapeString:
		return "a string"
	case ShapeNonEmptyString:
		return "a non-empty string"
	case ShapeURL:
		return "an http(s) URL"
	case ShapeNumber:
		return "a number"
	case ShapeBoolean:
		return "a boolean"
	}
	return "unknown"
}

// Check validates v against s. The returned MarshalError carries no
// capability or parameter name; callers fill those in.
func Check(v Value, s Shape) *MarshalError {
	mismatch := func() *MarshalError {
		return &MarshalError{Expected: s, Got: v.kind}
	}

	switch s {
	case ShapeAny:
		return nil
	case ShapeString:
		if v.kind != KindString {
			return mismatch()
		}
	case ShapeNonEmptyString:
		if v.kind != KindString {
			return mismatch()
		}
		if v.s == "" {
			me := mismatch()
			me.Reason = "must not be empty"
			return me
		}
	case ShapeURL:
		if v.kind != KindString {
			return mismatch()
		}
		u, err := url.Parse(v.s)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			me := mismatch()
			me.Reason = "not a well-formed http(s) URL"
			return me
		}
	case ShapeNumber:
		if v.kind != KindNumber {
			return mismatch()
		}
	case ShapeBoolean:
		if v.kind != KindBoolean {
			return mismatch()
		}
	}
	return nil
}
