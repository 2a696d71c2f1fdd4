package repository

import "errors"

// Sentinel kinds for result sink errors.
var (
	ErrNotFound      = errors.New("assessment not found")
	ErrInvalidLimit  = errors.New("invalid page limit")
	ErrInvalidRecord = errors.New("invalid assessment record")
	ErrClosed        = errors.New("result sink closed")
)
