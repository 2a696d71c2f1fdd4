package llm

import "errors"

var (
	// ErrTransport wraps every network, HTTP status and provider API failure.
	ErrTransport = errors.New("llm: transport failure")
	// ErrUnknownProvider is returned for a provider name other than openai, anthropic or gemini.
	ErrUnknownProvider = errors.New("llm: unknown provider")
	// ErrEmptyResponse is returned when the provider answers without any choice or candidate.
	ErrEmptyResponse = errors.New("llm: empty response")
	// ErrInvalidSettings is returned when a provider cannot be built from the given settings.
	ErrInvalidSettings = errors.New("llm: invalid settings")
)
