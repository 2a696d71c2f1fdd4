// Package extract recovers a JSON object from free-form model output.
//
// Attempts run in order and the first success wins:
//  1. the trimmed text parsed directly;
//  2. the interior of a fenced code block (optionally tagged json);
//  3. the first balanced {...} span;
//  4. the text with trailing commas before } and ] removed, retried with
//     steps 1 and 3 and finally as the span from the first { to the last }.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Step names the attempt that produced an object.
type Step string

// Extraction steps.
const (
	StepDirect   Step = "direct"
	StepFenced   Step = "fenced"
	StepBraces   Step = "braces"
	StepRepaired Step = "repaired"
)

var (
	fencedBlock      = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?\\s*```")
	trailingObjComma = regexp.MustCompile(`,\s*}`)
	trailingArrComma = regexp.MustCompile(`,\s*]`)
)

// Object returns the JSON object embedded in text.
func Object(text string) (map[string]any, error) {
	obj, _, err := ObjectWithStep(text)
	return obj, err
}

// ObjectWithStep is Object that also reports which attempt succeeded.
func ObjectWithStep(text string) (map[string]any, Step, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, "", malformed("")
	}

	if obj, ok := parse(trimmed); ok {
		return obj, StepDirect, nil
	}

	if m := fencedBlock.FindStringSubmatch(trimmed); m != nil {
		if obj, ok := parse(strings.TrimSpace(m[1])); ok {
			return obj, StepFenced, nil
		}
	}

	if span, ok := balancedSpan(trimmed); ok {
		if obj, ok := parse(span); ok {
			return obj, StepBraces, nil
		}
	}

	repaired := Repair(trimmed)
	if obj, ok := parse(repaired); ok {
		return obj, StepRepaired, nil
	}
	if span, ok := balancedSpan(repaired); ok {
		if obj, ok := parse(span); ok {
			return obj, StepRepaired, nil
		}
	}
	if start, end := strings.IndexByte(repaired, '{'), strings.LastIndexByte(repaired, '}'); start >= 0 && end > start {
		if obj, ok := parse(repaired[start : end+1]); ok {
			return obj, StepRepaired, nil
		}
	}

	return nil, "", malformed(trimmed)
}

// Repair removes trailing commas before closing braces and brackets.
func Repair(text string) string {
	text = trailingObjComma.ReplaceAllString(text, "}")
	return trailingArrComma.ReplaceAllString(text, "]")
}

// parse accepts only a JSON object; arrays and scalars are rejected.
func parse(s string) (map[string]any, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// balancedSpan returns the substring from the first '{' to its matching '}'.
// Braces inside JSON string literals are not counted.
func balancedSpan(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
