package metacache

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a sync matches exactly one of these
// through errors.Is.
var (
	ErrStorage     = errors.New("storage error")
	ErrIO          = errors.New("io error")
	ErrParse       = errors.New("parse error")
	ErrConsistency = errors.New("consistency error")
)

// SyncError describes the operation that aborted a sync and what it was
// working on. It unwraps to both its kind and its cause.
type SyncError struct {
	Kind    error
	Op      string
	Subject string
	Err     error
}

func (e *SyncError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("metacache: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("metacache: %s %s: %v", e.Op, e.Subject, e.Err)
}

func (e *SyncError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func storageErr(op, subject string, err error) error {
	return &SyncError{Kind: ErrStorage, Op: op, Subject: subject, Err: err}
}

func ioErr(op, subject string, err error) error {
	return &SyncError{Kind: ErrIO, Op: op, Subject: subject, Err: err}
}

func parseErr(op, subject string, err error) error {
	return &SyncError{Kind: ErrParse, Op: op, Subject: subject, Err: err}
}

func consistencyErr(op, subject string, err error) error {
	return &SyncError{Kind: ErrConsistency, Op: op, Subject: subject, Err: err}
}
