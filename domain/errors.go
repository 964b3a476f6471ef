package domain

import "errors"

var (
	// ErrValidation indicates the caller supplied a malformed or incomplete value.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates an insert violated a uniqueness constraint,
	// most commonly a second registration with the same email.
	ErrDuplicate = errors.New("already exists")
)
