// Package types contains the shared vocabulary of the assessment domain:
// competency identifiers, pipeline modules and stages, and qualitative levels.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// Competency identifies one of the supported managerial competencies.
type Competency string

// Supported competencies.
const (
	Delegowanie           Competency = "delegowanie"
	PodejmowanieDecyzji   Competency = "podejmowanie_decyzji"
	OkreslaniePriorytetow Competency = "okreslanie_priorytetow"
	UdzielanieFeedbacku   Competency = "udzielanie_feedbacku"

	// DefaultCompetency is used when a request names none and as the
	// fallback scope when resolving prompt versions.
	DefaultCompetency = Delegowanie
)

// ErrUnknownCompetency is returned for identifiers outside the supported set.
var ErrUnknownCompetency = errors.New("unknown competency")

// ErrValidation is the shared kind for input that fails a domain check,
// such as an invalid rubric or a narrative with missing sections.
var ErrValidation = errors.New("validation failed")

var competencies = []Competency{Delegowanie, PodejmowanieDecyzji, OkreslaniePriorytetow, UdzielanieFeedbacku}

var aliases = map[string]Competency{
	"decyzje":    PodejmowanieDecyzji,
	"priorytety": OkreslaniePriorytetow,
	"feedback":   UdzielanieFeedbacku,
}

var shortNames = map[Competency]string{
	Delegowanie:           "delegowanie",
	PodejmowanieDecyzji:   "decyzje",
	OkreslaniePriorytetow: "priorytety",
	UdzielanieFeedbacku:   "feedback",
}

// Competencies returns the supported competencies in canonical order.
func Competencies() []Competency {
	out := make([]Competency, len(competencies))
	copy(out, competencies)
	return out
}

// ResolveCompetency normalises s and resolves short aliases.
// An empty string resolves to DefaultCompetency.
func ResolveCompetency(s string) (Competency, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return DefaultCompetency, nil
	}
	if c, ok := aliases[key]; ok {
		return c, nil
	}
	for _, c := range competencies {
		if string(c) == key {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCompetency, s)
}

// ShortName returns the short alias of c ("decyzje" for podejmowanie_decyzji).
func (c Competency) ShortName() string {
	if s, ok := shortNames[c]; ok {
		return s
	}
	return string(c)
}

// Valid reports whether c is a supported competency.
func (c Competency) Valid() bool {
	_, ok := shortNames[c]
	return ok
}

func (c Competency) String() string { return string(c) }

// Module names a pipeline module that owns prompt templates.
type Module string

// Pipeline modules.
const (
	ModuleParse    Module = "parse"
	ModuleMap      Module = "map"
	ModuleScore    Module = "score"
	ModuleFeedback Module = "feedback"
)

// Modules returns all prompt-owning modules in pipeline order.
func Modules() []Module {
	return []Module{ModuleParse, ModuleMap, ModuleScore, ModuleFeedback}
}

// Valid reports whether m is a known module.
func (m Module) Valid() bool {
	switch m {
	case ModuleParse, ModuleMap, ModuleScore, ModuleFeedback:
		return true
	}
	return false
}

// Stage names a step of the assessment state machine.
type Stage string

// Pipeline states. Done, Rejected and Failed are terminal.
const (
	StageStructuring Stage = "structuring"
	StageMapping     Stage = "mapping"
	StageScoring     Stage = "scoring"
	StageFeedback    Stage = "feedback"
	StageDone        Stage = "done"
	StageRejected    Stage = "rejected"
	StageFailed      Stage = "failed"
)

// Module returns the prompt module driving the stage, or "" for terminal states.
func (s Stage) Module() Module {
	switch s {
	case StageStructuring:
		return ModuleParse
	case StageMapping:
		return ModuleMap
	case StageScoring:
		return ModuleScore
	case StageFeedback:
		return ModuleFeedback
	}
	return ""
}

// Level is a qualitative band of the final 0-4 score.
type Level struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// Qualitative levels. Break points are fixed at 1.0, 2.0 and 3.0.
var (
	LevelA = Level{Code: "A", Label: "Nieefektywny (Nieświadoma niekompetencja)"}
	LevelB = Level{Code: "B", Label: "Bazowy (Świadoma niekompetencja)"}
	LevelC = Level{Code: "C", Label: "Efektywny (Świadoma kompetencja)"}
	LevelD = Level{Code: "D", Label: "Biegły (Nieświadoma kompetencja)"}
)

// LevelFor maps a final score to its qualitative level.
func LevelFor(score float64) Level {
	switch {
	case score < 1.0:
		return LevelA
	case score < 2.0:
		return LevelB
	case score < 3.0:
		return LevelC
	default:
		return LevelD
	}
}
