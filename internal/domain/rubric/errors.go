package rubric

import (
	"errors"
	"fmt"
	"strings"

	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
)

// Sentinel kinds for rubric errors.
var (
	ErrValidation        = errors.New("rubric validation failed")
	ErrUnknownCompetency = types.ErrUnknownCompetency
)

// ValidationError lists every problem found in a rubric definition.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(e.Problems, "; "))
}

// Is matches ErrValidation and types.ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation || target == types.ErrValidation
}
