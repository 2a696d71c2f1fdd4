package queue

import "errors"

// ErrClosed is returned by Put once the queue no longer accepts jobs.
var ErrClosed = errors.New("queue closed")
