// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package apiscommon holds the small set of types shared by every
// component: the error kind taxonomy used to map failures to HTTP codes
// and LED escalation, and a wrap-safe millisecond clock helper.
package apiscommon

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of retry policy, HTTP status
// mapping, and LED escalation. It is not a type hierarchy, just a tag.
type Kind int

// Valid Kind values.
const (
	// KindUnknown is the zero value; treat like an internal bug.
	KindUnknown Kind = iota
	// KindInvalidInput is a caller bug or malformed client request.
	KindInvalidInput
	// KindNotReady is a call made before init, or an internal assertion.
	KindNotReady
	// KindResourceExhausted is a full queue, low disk, or out of memory.
	KindResourceExhausted
	// KindIOTransient is a retryable network, DNS, socket, or filesystem error.
	KindIOTransient
	// KindIOPermanent is a non-retryable 4xx from a server, or a corrupt file.
	KindIOPermanent
	// KindTruncation is a formatted request that exceeded its buffer.
	KindTruncation
	// KindCorruption is a malformed persisted JSON file or a storage integrity failure.
	KindCorruption
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "INVALID_INPUT"
	case KindNotReady:
		return "NOT_READY"
	case KindResourceExhausted:
		return "RESOURCE_EXHAUSTED"
	case KindIOTransient:
		return "IO_TRANSIENT"
	case KindIOPermanent:
		return "IO_PERMANENT"
	case KindTruncation:
		return "TRUNCATION"
	case KindCorruption:
		return "CORRUPTION"
	default:
		return "UNKNOWN"
	}
}

// Error wraps an underlying error with a Kind and the operation that
// produced it, following the same "op: err" shape the teacher's lepton
// package uses for its plain fmt.Errorf wrapping, but tagged for dispatch.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap constructs an *Error with the given kind and operation name.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind of err, or KindUnknown if err is not (or does
// not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
