// Package apperr defines the error taxonomy shared by every extractor, the
// batch driver and the assistant API client.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can branch without string matching.
type Kind string

const (
	KindDocumentUnreadable Kind = "DocumentUnreadable"
	KindMediaUnreadable    Kind = "MediaUnreadable"
	KindNoAudioTrack       Kind = "NoAudioTrack"
	KindInvalidParameter   Kind = "InvalidParameter"
	KindIOError            Kind = "IOError"
	KindAPIRequestFailed   Kind = "ApiRequestFailed"
	KindAPIError           Kind = "ApiError"
	KindAPIUnreachable     Kind = "ApiUnreachable"
)

// Sentinels usable with errors.Is. Any *Error of the same kind matches.
var (
	ErrDocumentUnreadable = &Error{Kind: KindDocumentUnreadable}
	ErrMediaUnreadable    = &Error{Kind: KindMediaUnreadable}
	ErrNoAudioTrack       = &Error{Kind: KindNoAudioTrack}
	ErrInvalidParameter   = &Error{Kind: KindInvalidParameter}
	ErrIO                 = &Error{Kind: KindIOError}
	ErrAPIRequestFailed   = &Error{Kind: KindAPIRequestFailed}
	ErrAPIError           = &Error{Kind: KindAPIError}
	ErrAPIUnreachable     = &Error{Kind: KindAPIUnreachable}
)

// Error carries a kind, the offending path (if any) and a readable detail.
type Error struct {
	Kind   Kind
	Path   string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind, which makes the package sentinels
// work with errors.Is regardless of path or detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an error of the given kind.
func New(kind Kind, path, detail string, err error) *Error {
	return &Error{Kind: kind, Path: path, Detail: detail, Err: err}
}

// Newf creates an error of the given kind with a formatted detail.
func Newf(kind Kind, path string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Path: path, Detail: fmt.Sprintf(format, args...)}
}

// DocumentUnreadable wraps err as a DocumentUnreadable failure for path.
func DocumentUnreadable(path string, err error) *Error {
	return New(KindDocumentUnreadable, path, "", err)
}

// MediaUnreadable wraps err as a MediaUnreadable failure for path.
func MediaUnreadable(path string, err error) *Error {
	return New(KindMediaUnreadable, path, "", err)
}

// InvalidParameter reports a rejected caller-supplied value.
func InvalidParameter(format string, args ...interface{}) *Error {
	return Newf(KindInvalidParameter, "", format, args...)
}

// IO wraps a filesystem failure for path.
func IO(path string, err error) *Error {
	return New(KindIOError, path, "", err)
}

// KindOf returns the kind carried by err, or "" when err is not classified.
// Errors from other packages participate by implementing Kind() Kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k interface{ Kind() Kind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ""
}
