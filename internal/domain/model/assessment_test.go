package model_test

import (
	"testing"

	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
	"github.com/smartystreets/goconvey/convey"
)

func TestUsage(t *testing.T) {
	convey.Convey("Given two usage counters", t, func() {
		u := model.Usage{InputTokens: 100, OutputTokens: 20}
		u.Add(model.Usage{InputTokens: 50, CachedInputTokens: 30, OutputTokens: 5})

		convey.Convey("Then Add accumulates every field", func() {
			convey.So(u.InputTokens, convey.ShouldEqual, 150)
			convey.So(u.CachedInputTokens, convey.ShouldEqual, 30)
			convey.So(u.OutputTokens, convey.ShouldEqual, 25)
			convey.So(u.Total(), convey.ShouldEqual, 175)
		})
	})
}

func TestEvidence(t *testing.T) {
	convey.Convey("Given evidence records", t, func() {
		convey.So(model.Evidence{}.HasQuotes(), convey.ShouldBeFalse)
		convey.So(model.Evidence{Present: true}.HasQuotes(), convey.ShouldBeFalse)
		convey.So(model.Evidence{Present: false, Quotes: []string{"a"}}.HasQuotes(), convey.ShouldBeFalse)
		convey.So(model.Evidence{Present: true, Quotes: []string{"a"}}.HasQuotes(), convey.ShouldBeTrue)
	})
}

func TestAssessmentViews(t *testing.T) {
	convey.Convey("Given an assessment without scoring", t, func() {
		a := &model.Assessment{Competency: types.Delegowanie}
		convey.So(a.Quotes(), convey.ShouldBeEmpty)
		convey.So(a.DimensionScores(), convey.ShouldBeEmpty)
	})

	convey.Convey("Given a scored assessment", t, func() {
		a := &model.Assessment{
			Scoring: &model.ScoringResult{
				Dimensions: []string{"intencja", "kontrola"},
				Scores: map[string]model.DimensionScore{
					"intencja": {Dimension: "intencja", Score: 0.8},
					"kontrola": {Dimension: "kontrola", Score: 0},
				},
				Evidence: map[string]model.Evidence{
					"intencja": {Present: true, Quotes: []string{"cel", "termin"}},
				},
			},
		}

		convey.Convey("Then every rubric dimension has a quote list", func() {
			q := a.Quotes()
			convey.So(q, convey.ShouldHaveLength, 2)
			convey.So(q["intencja"], convey.ShouldResemble, []string{"cel", "termin"})
			convey.So(q["kontrola"], convey.ShouldBeEmpty)
		})

		convey.Convey("Then dimension scores are flattened", func() {
			convey.So(a.DimensionScores()["intencja"], convey.ShouldEqual, 0.8)
		})
	})
}

func TestWordCount(t *testing.T) {
	convey.Convey("Word counting splits on any whitespace", t, func() {
		convey.So(model.WordCount(""), convey.ShouldEqual, 0)
		convey.So(model.WordCount("  jeden\tdwa\ntrzy  "), convey.ShouldEqual, 3)
	})
}
