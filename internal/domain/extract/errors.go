package extract

import (
	"errors"
	"fmt"
)

// ErrMalformedOutput is the sentinel kind for text that holds no JSON object.
var ErrMalformedOutput = errors.New("malformed model output")

const snippetRunes = 200

// MalformedOutputError carries the start of the offending text.
type MalformedOutputError struct {
	Snippet string
}

func (e *MalformedOutputError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("%s: empty response", ErrMalformedOutput)
	}
	return fmt.Sprintf("%s: could not recover a JSON object, response starts with: %q", ErrMalformedOutput, e.Snippet)
}

// Is matches ErrMalformedOutput.
func (e *MalformedOutputError) Is(target error) bool {
	return target == ErrMalformedOutput
}

func malformed(text string) error {
	r := []rune(text)
	if len(r) > snippetRunes {
		r = r[:snippetRunes]
	}
	return &MalformedOutputError{Snippet: string(r)}
}
