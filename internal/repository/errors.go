package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrNoData indicates a required table is empty in live mode.
	ErrNoData = errors.New("repository: no data")
)
