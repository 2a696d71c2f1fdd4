package calibration

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	dedupe "github.com/katarzynaochnikdu/LEM-V1/internal/domain/dedupe"
)

// Narrative is one response read from the input directory. ID is the file
// name without its extension.
type Narrative struct {
	ID          string
	Path        string
	Text        string
	Fingerprint string
}

// LoadNarratives reads every *.txt file in dir, sorted by name.
func LoadNarratives(dir string) ([]Narrative, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input dir: %w", err)
	}

	var out []Narrative
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator's input directory
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		text := string(data)
		out = append(out, Narrative{
			ID:          strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			Path:        path,
			Text:        text,
			Fingerprint: dedupe.Fingerprint(text),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoNarratives, dir)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
