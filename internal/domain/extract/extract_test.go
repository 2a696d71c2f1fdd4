package extract_test

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	extract "github.com/katarzynaochnikdu/LEM-V1/internal/domain/extract"
	. "github.com/smartystreets/goconvey/convey"
)

func TestObjectRecoversTheSameObject(t *testing.T) {
	want := map[string]any{
		"intencja": map[string]any{
			"czy_obecny":           true,
			"znalezione_fragmenty": []any{"cel", "termin"},
		},
		"liczba": float64(2),
	}
	payload := `{"intencja": {"czy_obecny": true, "znalezione_fragmenty": ["cel", "termin"]}, "liczba": 2}`

	Convey("Given the same object wrapped in different ways", t, func() {
		Convey("Plain JSON parses directly", func() {
			obj, step, err := extract.ObjectWithStep("  " + payload + "\n")
			So(err, ShouldBeNil)
			So(step, ShouldEqual, extract.StepDirect)
			So(obj, ShouldResemble, want)
		})

		Convey("Prose around the object falls back to brace matching", func() {
			obj, step, err := extract.ObjectWithStep("Oto analiza:\n" + payload + "\nMam nadzieję, że pomogłem.")
			So(err, ShouldBeNil)
			So(step, ShouldEqual, extract.StepBraces)
			So(obj, ShouldResemble, want)
		})

		Convey("A fenced json block is unwrapped", func() {
			obj, step, err := extract.ObjectWithStep("Wynik:\n```json\n" + payload + "\n```\n")
			So(err, ShouldBeNil)
			So(step, ShouldEqual, extract.StepFenced)
			So(obj, ShouldResemble, want)
		})

		Convey("An untagged fence works too", func() {
			obj, err := extract.Object("```\n" + payload + "\n```")
			So(err, ShouldBeNil)
			So(obj, ShouldResemble, want)
		})

		Convey("Trailing commas inside prose are repaired", func() {
			broken := `Proszę: {"intencja": {"czy_obecny": true, "znalezione_fragmenty": ["cel", "termin",],}, "liczba": 2,} koniec`
			obj, step, err := extract.ObjectWithStep(broken)
			So(err, ShouldBeNil)
			So(step, ShouldEqual, extract.StepRepaired)
			So(obj, ShouldResemble, want)
		})
	})
}

func TestObjectBraceScanning(t *testing.T) {
	Convey("Braces inside string literals do not end the span", t, func() {
		obj, err := extract.Object(`notatka {"a": "x}y", "b": {"c": 1}} dalej {"d": 2}`)
		So(err, ShouldBeNil)
		So(obj["a"], ShouldEqual, "x}y")
		So(obj["d"], ShouldBeNil)
	})

	Convey("Trailing text after a repaired object is ignored", t, func() {
		obj, err := extract.Object(`{"a": 1,} }`)
		So(err, ShouldBeNil)
		So(obj["a"], ShouldEqual, float64(1))
	})
}

func TestObjectFailures(t *testing.T) {
	Convey("Given input with no object", t, func() {
		Convey("Empty and whitespace input is malformed", func() {
			for _, in := range []string{"", "   \n\t "} {
				obj, err := extract.Object(in)
				So(obj, ShouldBeNil)
				So(errors.Is(err, extract.ErrMalformedOutput), ShouldBeTrue)
			}
		})

		Convey("A top-level array is not an object", func() {
			_, err := extract.Object(`[1, 2, 3]`)
			So(errors.Is(err, extract.ErrMalformedOutput), ShouldBeTrue)
		})

		Convey("The error carries the first 200 characters", func() {
			long := strings.Repeat("ż", 500)
			_, err := extract.Object(long)
			var mErr *extract.MalformedOutputError
			So(errors.As(err, &mErr), ShouldBeTrue)
			So(utf8.RuneCountInString(mErr.Snippet), ShouldEqual, 200)
		})
	})
}

func TestRepair(t *testing.T) {
	Convey("Repair strips trailing commas only", t, func() {
		So(extract.Repair(`{"a": [1, 2 , ] ,  }`), ShouldEqual, `{"a": [1, 2 ] }`)
		So(extract.Repair(`{"a": "b,c"}`), ShouldEqual, `{"a": "b,c"}`)
	})
}

func TestFieldReaders(t *testing.T) {
	Convey("Given a decoded object", t, func() {
		obj, err := extract.Object(`{"s": "tekst", "n": 0.5, "b": true, "bs": "tak", "list": ["a", " ", 3, "b"], "one": "x", "child": {"k": "v"}}`)
		So(err, ShouldBeNil)

		So(extract.String(obj, "s"), ShouldEqual, "tekst")
		So(extract.String(obj, "n"), ShouldEqual, "0.5")
		So(extract.String(obj, "missing"), ShouldEqual, "")
		So(extract.Bool(obj, "b"), ShouldBeTrue)
		So(extract.Bool(obj, "bs"), ShouldBeTrue)
		So(extract.Bool(obj, "s"), ShouldBeFalse)
		So(extract.Strings(obj, "list"), ShouldResemble, []string{"a", "b"})
		So(extract.Strings(obj, "one"), ShouldResemble, []string{"x"})
		So(extract.Strings(obj, "missing"), ShouldBeEmpty)
		So(extract.String(extract.Child(obj, "child"), "k"), ShouldEqual, "v")
		So(extract.Child(obj, "s"), ShouldBeNil)
	})
}
