package scoring

import "fmt"

type band struct {
	below   float64
	label   string
	noNotes string
}

var bands = []band{
	{below: 0.4, label: "Minimalna realizacja", noNotes: "ogólnikowe podejście"},
	{below: 0.7, label: "Podstawowa realizacja", noNotes: "obecne elementy kluczowe"},
	{below: 0.9, label: "Dobra realizacja", noNotes: "konkretne dowody"},
}

var topBand = band{label: "Doskonała realizacja", noNotes: "pełna realizacja wymiaru"}

// Justification renders the fixed-band explanation of a dimension score.
func Justification(name string, score float64, notes string) string {
	if score == 0 {
		return "Brak dowodów realizacji: " + name
	}
	b := topBand
	for _, candidate := range bands {
		if score < candidate.below {
			b = candidate
			break
		}
	}
	if notes == "" {
		notes = b.noNotes
	}
	return fmt.Sprintf("%s: %s - %s", b.label, name, notes)
}
