package pricing

import "errors"

var (
	// ErrUnknownModel is returned when no price entry matches a model name.
	ErrUnknownModel = errors.New("pricing: unknown model")
	// ErrInvalidTokens is returned for negative counts or cached > input.
	ErrInvalidTokens = errors.New("pricing: invalid token counts")
	// ErrInvalidEstimate is returned for a count below 1 or a ratio outside [0, 1].
	ErrInvalidEstimate = errors.New("pricing: invalid estimate parameters")
)
