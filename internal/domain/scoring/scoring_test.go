package scoring_test

import (
	"math"
	"testing"

	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
	scoring "github.com/katarzynaochnikdu/LEM-V1/internal/domain/scoring"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseScore(t *testing.T) {
	Convey("Given free-text numeric answers", t, func() {
		cases := []struct {
			in    string
			score float64
			ok    bool
		}{
			{"0.8", 0.8, true},
			{"  0.65\n", 0.65, true},
			{"approximately 0.8", 0.8, true},
			{"Ocena: 1", 1, true},
			{"7", 1, true},
			{"-0.4", 0.4, true},
			{"N/A", 0, false},
			{"", 0, false},
			{"brak", 0, false},
		}
		for _, c := range cases {
			score, ok := scoring.ParseScore(c.in)
			So(ok, ShouldEqual, c.ok)
			So(score, ShouldAlmostEqual, c.score)
		}
	})
}

func TestFallback(t *testing.T) {
	Convey("Fallback depends only on quote count", t, func() {
		So(scoring.Fallback(model.Evidence{}), ShouldEqual, 0.0)
		So(scoring.Fallback(model.Evidence{Quotes: []string{"a", "b"}}), ShouldEqual, 0.0)
		So(scoring.Fallback(model.Evidence{Present: true}), ShouldEqual, 0.0)
		So(scoring.Fallback(model.Evidence{Present: true, Quotes: []string{"a"}}), ShouldEqual, 0.5)
		So(scoring.Fallback(model.Evidence{Present: true, Quotes: []string{"a", "b"}}), ShouldEqual, 0.7)
		So(scoring.Fallback(model.Evidence{Present: true, Quotes: []string{"a", "b", "c"}}), ShouldEqual, 0.7)
	})
}

func TestFinalScore(t *testing.T) {
	Convey("Given weighted sums", t, func() {
		Convey("Scores land on quarter points within [0,4]", func() {
			for sum := -0.2; sum <= 1.2; sum += 0.0137 {
				final := scoring.FinalScore(sum)
				So(final, ShouldBeBetweenOrEqual, 0.0, 4.0)
				So(math.Mod(final*4, 1), ShouldEqual, 0.0)
			}
		})

		Convey("Halfway cases round to even quarters", func() {
			So(scoring.FinalScore(0.53125), ShouldEqual, 2.0)
			So(scoring.FinalScore(0.59375), ShouldEqual, 2.5)
		})

		Convey("Representative sums", func() {
			So(scoring.FinalScore(0), ShouldEqual, 0.0)
			So(scoring.FinalScore(1), ShouldEqual, 4.0)
			So(scoring.FinalScore(0.5), ShouldEqual, 2.0)
			So(scoring.FinalScore(0.61), ShouldEqual, 2.5)
			So(scoring.FinalScore(0.66), ShouldEqual, 2.75)
		})
	})
}

func TestJustification(t *testing.T) {
	Convey("Given score bands", t, func() {
		So(scoring.Justification("Intencja", 0, "x"), ShouldEqual, "Brak dowodów realizacji: Intencja")
		So(scoring.Justification("Intencja", 0.2, ""), ShouldEqual, "Minimalna realizacja: Intencja - ogólnikowe podejście")
		So(scoring.Justification("Intencja", 0.5, ""), ShouldEqual, "Podstawowa realizacja: Intencja - obecne elementy kluczowe")
		So(scoring.Justification("Intencja", 0.7, ""), ShouldEqual, "Dobra realizacja: Intencja - konkretne dowody")
		So(scoring.Justification("Intencja", 0.9, ""), ShouldEqual, "Doskonała realizacja: Intencja - pełna realizacja wymiaru")
		So(scoring.Justification("Intencja", 0.75, "jasny cel"), ShouldEqual, "Dobra realizacja: Intencja - jasny cel")
	})
}

func TestAggregate(t *testing.T) {
	Convey("Given perfect scores on every dimension", t, func() {
		weights := []float64{0.15, 0.25, 0.2, 0.2, 0.2}
		dims := make([]scoring.Dimension, 0, len(weights))
		for i, w := range weights {
			dims = append(dims, scoring.Dimension{
				Key:      string(rune('a' + i)),
				Name:     "Wymiar",
				Weight:   w,
				Score:    1,
				Evidence: model.Evidence{Present: true, Quotes: []string{"q1", "q2"}},
			})
		}
		res := scoring.Aggregate(types.Delegowanie, dims)

		Convey("Then the final score is 4 and level D", func() {
			So(res.FinalScore, ShouldEqual, 4.0)
			So(res.Level.Code, ShouldEqual, "D")
			So(res.Dimensions, ShouldResemble, []string{"a", "b", "c", "d", "e"})
			So(res.Scores["b"].Points, ShouldAlmostEqual, 0.25)
			So(res.Evidence["c"].Quotes, ShouldHaveLength, 2)
		})
	})

	Convey("Given no evidence at all", t, func() {
		res := scoring.Aggregate(types.UdzielanieFeedbacku, []scoring.Dimension{
			{Key: "x", Name: "X", Weight: 0.5},
			{Key: "y", Name: "Y", Weight: 0.5},
		})
		So(res.FinalScore, ShouldEqual, 0.0)
		So(res.Level.Code, ShouldEqual, "A")
		So(res.Scores["x"].Justification, ShouldEqual, "Brak dowodów realizacji: X")
	})
}
