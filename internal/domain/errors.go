package domain

import "errors"

var (
	// ErrNotFound signals a missing entity. Most store operations treat a
	// missing id as a no-op instead of returning this; it is reserved for the
	// lookups that must distinguish absence.
	ErrNotFound = errors.New("not found")
	// ErrUnknownCollection signals a collection key outside the fixed set.
	ErrUnknownCollection = errors.New("unknown collection")
)
