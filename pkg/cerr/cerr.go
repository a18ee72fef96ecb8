/*
NAME
  cerr.go - the error taxonomy shared by every CRI format package.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package cerr defines the five kinds of error a CRI format parser or
// builder can raise, and a single *Error type that carries one of them plus
// an optional byte offset and wrapped cause.
package cerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies which of the five error categories an *Error belongs to.
type Kind int

const (
	// InvalidMagic means a chunk's leading bytes didn't match what was
	// expected; fatal for that parse.
	InvalidMagic Kind = iota
	// UnsupportedFormat means the input is structurally valid but this
	// build doesn't implement it.
	UnsupportedFormat
	// InvalidData means a length/offset/index is inconsistent with the
	// container.
	InvalidData
	// CipherRefused means an encrypt was attempted on already-encrypted
	// data, or a decrypt on plain data.
	CipherRefused
	// IoError wraps an underlying read/write failure.
	IoError
)

func (k Kind) String() string {
	switch k {
	case InvalidMagic:
		return "invalid magic"
	case UnsupportedFormat:
		return "unsupported format"
	case InvalidData:
		return "invalid data"
	case CipherRefused:
		return "cipher refused"
	case IoError:
		return "io error"
	default:
		return "unknown error"
	}
}

// Error is the concrete error type raised by every package in this module.
type Error struct {
	Kind   Kind
	Offset int64 // absolute byte offset, or -1 if not applicable.
	Msg    string
	Cause  error
}

func (e *Error) Error() string {
	if e.Offset >= 0 {
		if e.Cause != nil {
			return fmt.Sprintf("%s at offset %d: %s: %v", e.Kind, e.Offset, e.Msg, e.Cause)
		}
		return fmt.Sprintf("%s at offset %d: %s", e.Kind, e.Offset, e.Msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error of the same Kind, so callers can
// do errors.Is(err, cerr.New(cerr.InvalidMagic, "", nil)) without caring
// about offset or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New returns an *Error of the given kind with no offset attached.
func New(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Offset: -1, Msg: msg, Cause: cause}
}

// At returns an *Error of the given kind at the given absolute byte offset.
func At(k Kind, offset int64, msg string, cause error) *Error {
	return &Error{Kind: k, Offset: offset, Msg: msg, Cause: cause}
}

// Magic returns an InvalidMagic error reporting the expected and actual
// leading bytes.
func Magic(offset int64, expected, actual []byte) *Error {
	return At(InvalidMagic, offset, fmt.Sprintf("expected magic %q, got %q", expected, actual), nil)
}

// Unsupported returns an UnsupportedFormat error naming what isn't
// implemented.
func Unsupported(what string) *Error {
	return New(UnsupportedFormat, what, nil)
}

// Wrap attaches additional context to err using pkg/errors, preserving the
// *Error kind if err is one.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}
