package database

import "errors"

var (
	// ErrObjectNotFound is returned when no document exists for an object identity
	ErrObjectNotFound = errors.New("object not found")
	// ErrDuplicateObject is returned when saving an identity that is already stored
	ErrDuplicateObject = errors.New("object already stored")
	// ErrInconsistentObject is returned when a template set's sequences disagree in length
	ErrInconsistentObject = errors.New("object attachments have different lengths")
	// ErrCorruptAttachment is returned when a stored array cannot be decoded
	ErrCorruptAttachment = errors.New("corrupt attachment")
)
