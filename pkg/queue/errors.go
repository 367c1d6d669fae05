package queue

import "errors"

var (
	ErrPoolFull       = errors.New("worker pool queue is full")
	ErrPoolStopped    = errors.New("worker pool is stopped")
	ErrAlreadyStarted = errors.New("already started")
	ErrNotStarted     = errors.New("not started")
	ErrNilJob         = errors.New("job cannot be nil")
)
