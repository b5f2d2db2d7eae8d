package repository

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a record violates a uniqueness constraint.
var ErrDuplicate = errors.New("record already exists")
