package todo

import "errors"

// ErrUnauthorized wraps every token verification failure.
var ErrUnauthorized = errors.New("unauthorized")

// ErrNotFound is returned when the caller has no item with the given id.
var ErrNotFound = errors.New("todo not found")

// ErrInvalidInput is returned when a request payload is invalid.
var ErrInvalidInput = errors.New("invalid input")
