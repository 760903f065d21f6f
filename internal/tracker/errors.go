package tracker

import "errors"

var (
	// ErrAlreadyTracked is returned by Register when the id is already present.
	ErrAlreadyTracked = errors.New("connection already tracked")
	// ErrUnknownConnection is returned when an operation names an id that is not tracked.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrInvalidID is returned by Register for an empty id.
	ErrInvalidID = errors.New("invalid connection id")
	// ErrConnectionLimit is returned by Register when the tracker is full.
	ErrConnectionLimit = errors.New("connection limit reached")
)
