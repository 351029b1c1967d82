package service

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrSearchUnavailable = errors.New("alert search is not configured")
	ErrUnsupportedSort   = errors.New("unsupported sort field")
	ErrEmptyLogFile      = errors.New("log file is empty")
	ErrLogFileTooLarge   = errors.New("log file too large")
)
