package calibration

import "errors"

var (
	// ErrInvalidConfig reports a calibration run that cannot start.
	ErrInvalidConfig = errors.New("calibration: invalid config")
	// ErrNoNarratives is returned when the input directory holds no *.txt files.
	ErrNoNarratives = errors.New("calibration: no narratives found")
	// ErrInvalidCSV reports a malformed assessor score file.
	ErrInvalidCSV = errors.New("calibration: invalid assessor csv")
	// ErrNoOverlap is returned when no assessor score matches a scored narrative.
	ErrNoOverlap = errors.New("calibration: no scored narratives with assessor scores")
	// ErrNotify wraps notification delivery failures.
	ErrNotify = errors.New("calibration: notification failed")
)
