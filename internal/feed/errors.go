package feed

import "errors"

var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrAlreadyPending       = errors.New("mutation already pending")
	ErrPersistenceFailed    = errors.New("persistence failed")
	ErrLoadFailed           = errors.New("load failed")
	ErrItemNotFound         = errors.New("feed item not found")
)
