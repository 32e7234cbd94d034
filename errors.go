package main

import (
	"errors"
	"fmt"
)

// ErrMalformedPayload matches every MalformedPayloadError via errors.Is.
var ErrMalformedPayload = errors.New("malformed payload")

// MalformedPayloadError reports a message that is not a JSON object or
// carries no usable group identifier. It is scoped to one message.
type MalformedPayloadError struct {
	Reason string
	Err    error
}

func (e *MalformedPayloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed payload: %s: %v", e.Reason, e.Err)
	}
	return "malformed payload: " + e.Reason
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

func (e *MalformedPayloadError) Is(target error) bool { return target == ErrMalformedPayload }

// TransportError is a send or receive failure on a single connection.
type TransportError struct {
	ConnID string
	Op     string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.ConnID, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
