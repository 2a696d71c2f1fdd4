package prompts

import (
	"embed"

	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
)

//go:embed templates/*/*.txt
var templatesFS embed.FS

const seedVersion = "v1"

var systemPrompts = map[types.Module]string{
	types.ModuleParse:    "Jesteś ekspertem w analizie strukturalnej tekstów. Zwracasz wyłącznie poprawny JSON.",
	types.ModuleMap:      "Jesteś ekspertem w ocenie kompetencji menedżerskich. Zwracasz wyłącznie poprawny JSON z ekstrakcją cytatów.",
	types.ModuleScore:    "Jesteś ekspertem w ocenie kompetencji menedżerskich. Odpowiadasz wyłącznie jedną liczbą z przedziału 0.0-1.0.",
	types.ModuleFeedback: "Jesteś doświadczonym coachem menedżerskim. Piszesz konkretny, konstruktywny feedback rozwojowy po polsku. Zwracasz wyłącznie poprawny JSON.",
}

var moduleDescriptions = map[types.Module]string{
	types.ModuleParse:    "Strukturyzacja odpowiedzi na sekcje",
	types.ModuleMap:      "Ekstrakcja cytatów-dowodów dla wymiarów",
	types.ModuleScore:    "Ocena pojedynczego wymiaru w skali 0-1",
	types.ModuleFeedback: "Generowanie feedbacku rozwojowego",
}

// Placeholder names each module's templates may use.
var modulePlaceholders = map[types.Module][]string{
	types.ModuleParse:    {"response_text", "sekcje"},
	types.ModuleMap:      {"parsed_response", "wymiary"},
	types.ModuleScore:    {"wymiar_nazwa", "wymiar_opis", "poziomy", "dowody"},
	types.ModuleFeedback: {"score", "level", "dimension_scores", "evidence"},
}

// SystemPrompt returns the fixed system message for module.
func SystemPrompt(module types.Module) string {
	return systemPrompts[module]
}

// AllowedPlaceholders returns the placeholder names module templates may use.
func AllowedPlaceholders(module types.Module) []string {
	return append([]string(nil), modulePlaceholders[module]...)
}

func defaultTemplate(module types.Module) (string, error) {
	data, err := templatesFS.ReadFile("templates/" + string(module) + "/" + seedVersion + ".txt")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
