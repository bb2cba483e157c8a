package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure a processing run can end in
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"       // bad content type, fps out of range, oversized body
	KindBusy            ErrorKind = "busy"             // admission gate refused or abandoned while queued
	KindIO              ErrorKind = "io"               // upload write, workspace reset
	KindConfiguration   ErrorKind = "configuration"    // pipeline executable missing
	KindPipelineTimeout ErrorKind = "pipeline_timeout" // process killed after exceeding the timeout
	KindPipelineFailure ErrorKind = "pipeline_failure" // nonzero exit, carries stderr
	KindEmptyOutput     ErrorKind = "empty_output"     // exit 0 but nothing usable in the workspace
	KindArchive         ErrorKind = "archive"          // packaging the workspace failed
)

// ProcessError is the typed failure returned by every component of a run.
type ProcessError struct {
	Kind     ErrorKind
	Op       string // component operation, e.g. "workspace.reset"
	Message  string // human readable, safe to show to the caller
	Stderr   string // captured (possibly truncated) pipeline stderr
	ExitCode int
	Err      error
}

func (e *ProcessError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Is matches another *ProcessError by kind, so errors.Is(err, ErrEmptyOutput) works
// regardless of message or wrapped cause.
func (e *ProcessError) Is(target error) bool {
	t, ok := target.(*ProcessError)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrValidation      = &ProcessError{Kind: KindValidation}
	ErrBusy            = &ProcessError{Kind: KindBusy}
	ErrIO              = &ProcessError{Kind: KindIO}
	ErrConfiguration   = &ProcessError{Kind: KindConfiguration}
	ErrPipelineTimeout = &ProcessError{Kind: KindPipelineTimeout}
	ErrPipelineFailure = &ProcessError{Kind: KindPipelineFailure}
	ErrEmptyOutput     = &ProcessError{Kind: KindEmptyOutput}
	ErrArchive         = &ProcessError{Kind: KindArchive}
)

// NewError builds a ProcessError with a formatted message.
func NewError(kind ErrorKind, op string, err error, format string, args ...interface{}) *ProcessError {
	return &ProcessError{
		Kind:    kind,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// KindOf extracts the kind from err. Errors outside the taxonomy are reported as KindIO.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *ProcessError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindIO
}

// AsProcessError returns err as a *ProcessError, wrapping foreign errors as KindIO.
func AsProcessError(err error) *ProcessError {
	if err == nil {
		return nil
	}
	var pe *ProcessError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProcessError{Kind: KindIO, Message: err.Error(), Err: err}
}
