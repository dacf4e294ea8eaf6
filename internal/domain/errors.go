package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrLockHeld          = errors.New("lock already held")
	ErrStaleVersion      = errors.New("candidate set superseded by a newer criteria version")
	ErrRunAlreadyApplied = errors.New("crawl run already applied")
	ErrInvalidHunt       = errors.New("invalid hunt definition")
	ErrInvalidBatch      = errors.New("invalid crawl batch")
)
