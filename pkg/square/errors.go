package square

import (
	"errors"
	"fmt"
)

// Kind classifies where a request failed.
type Kind int

const (
	// KindInvalidArgument marks malformed call arguments, detected before any I/O.
	KindInvalidArgument Kind = iota + 1
	// KindTransport marks requests that never produced an HTTP response.
	KindTransport
	// KindApplication marks responses with a status code in [400, 599].
	KindApplication
)

var kindNames = map[Kind]string{
	KindInvalidArgument: "invalid_argument",
	KindTransport:       "transport",
	KindApplication:     "application",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Sentinels for errors.Is matching against *Error.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrTransport       = errors.New("transport failure")
	ErrApplication     = errors.New("application error")
)

const (
	defaultErrorMessage = "unknown message"
	defaultErrorType    = "unknown type"
)

// Error is returned (or delivered to a Callback) for every failed call.
// For KindApplication, Message and Type come from the response body and
// StatusCode holds the HTTP status.
type Error struct {
	Kind       Kind
	Message    string
	Type       string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindApplication:
		return fmt.Sprintf("square: %s (type=%s status=%d)", e.Message, e.Type, e.StatusCode)
	case KindTransport:
		return "square: transport: " + e.Message
	default:
		return "square: " + e.Message
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidArgument:
		return e.Kind == KindInvalidArgument
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrApplication:
		return e.Kind == KindApplication
	}
	return false
}

func invalidArgument(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func transportError(err error) *Error {
	return &Error{Kind: KindTransport, Message: err.Error(), Err: err}
}

// applicationError builds the error for a 4xx/5xx envelope, falling back to the
// documented defaults when the body carries no message or type.
func applicationError(resp *Response) *Error {
	body, _ := resp.Data.(map[string]any)
	return &Error{
		Kind:       KindApplication,
		Message:    stringField(body, "message", defaultErrorMessage),
		Type:       stringField(body, "type", defaultErrorType),
		StatusCode: resp.StatusCode,
	}
}
