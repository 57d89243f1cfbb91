package models

import (
	"errors"
	"fmt"
)

// ErrEmptyMessage is returned when a submission is empty or whitespace only. Nothing is sent upstream.
var ErrEmptyMessage = errors.New("message is required")

// StreamErrorKind classifies a failure that ends a stream session.
type StreamErrorKind string

const (
	// KindParse marks a payload that could not be decoded.
	KindParse StreamErrorKind = "parse"
	// KindProtocol marks a payload that carried an explicit error field.
	KindProtocol StreamErrorKind = "protocol"
	// KindTransport marks a dropped connection or a non-success status.
	KindTransport StreamErrorKind = "transport"
)

// StreamError is the error yielded by stream ingestion strategies.
type StreamError struct {
	Kind StreamErrorKind
	Err  error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// ParseError wraps err as a KindParse StreamError.
func ParseError(err error) error {
	return &StreamError{Kind: KindParse, Err: err}
}

// ProtocolError returns a KindProtocol StreamError carrying the upstream's error message.
func ProtocolError(message string) error {
	return &StreamError{Kind: KindProtocol, Err: errors.New(message)}
}

// TransportError wraps err as a KindTransport StreamError.
func TransportError(err error) error {
	return &StreamError{Kind: KindTransport, Err: err}
}

// ErrorKind returns the StreamErrorKind of err. Errors that are not a StreamError count as transport errors.
func ErrorKind(err error) StreamErrorKind {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransport
}
