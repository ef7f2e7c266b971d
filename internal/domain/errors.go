package domain

import "errors"

// Sentinel errors. Callers wrap them with context (file name, row, period id)
// and match with errors.Is.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrEmptyStatement    = errors.New("empty statement")
	ErrPeriodClosed      = errors.New("period closed")
	ErrAlreadyClosed     = errors.New("period already closed")
	ErrPartialImport     = errors.New("partial import failure")
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
)
