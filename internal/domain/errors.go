package domain

import "errors"

var (
	// ErrNotFound is returned when a user or record cannot be located.
	ErrNotFound = errors.New("record not found")
	// ErrConstraintViolation indicates a rejected write: duplicate daily log or out-of-range value.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrTransientStore indicates a connectivity or timeout failure; the caller may retry.
	ErrTransientStore = errors.New("transient store failure")
	// ErrAuditWrite indicates the audit entry could not be written; the enclosing mutation is aborted.
	ErrAuditWrite = errors.New("audit write failure")
)
