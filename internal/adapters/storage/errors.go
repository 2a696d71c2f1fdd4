package storage

import (
	"errors"
	"io/fs"
)

// Sentinel kinds for storage errors.
var (
	ErrNotFound    = fs.ErrNotExist
	ErrInvalidKey  = errors.New("invalid storage key")
	ErrUnknownType = errors.New("unknown storage type")
)
