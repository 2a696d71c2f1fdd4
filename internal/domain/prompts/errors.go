package prompts

import "errors"

// Sentinel kinds for prompt store errors.
var (
	ErrInvalidModule  = errors.New("invalid prompt module")
	ErrUnknownVersion = errors.New("unknown prompt version")
	ErrContentMissing = errors.New("prompt content missing")
	ErrNotFound       = errors.New("no active prompt version")
	ErrInvalidName    = errors.New("invalid prompt version name")
	ErrTemplate       = errors.New("prompt template error")
)
