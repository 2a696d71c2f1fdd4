package pipeline_test

import (
	"context"
	"strings"
	"testing"

	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
	pipeline "github.com/katarzynaochnikdu/LEM-V1/internal/domain/pipeline"
	rubric "github.com/katarzynaochnikdu/LEM-V1/internal/domain/rubric"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSectionsText(t *testing.T) {
	Convey("Sections are joined in key order under upper-cased headers", t, func() {
		p := model.ParsedResponse{
			Sections: map[string]string{"stan_docelowy": "B", "intencja": "A", "puste": ""},
			Keys:     []string{"intencja", "puste", "stan_docelowy"},
		}
		So(pipeline.SectionsText(p), ShouldEqual, "INTENCJA:\nA\n\nSTAN DOCELOWY:\nB")

		Convey("Without keys the order is alphabetical", func() {
			p.Keys = nil
			So(pipeline.SectionsText(p), ShouldEqual, "INTENCJA:\nA\n\nSTAN DOCELOWY:\nB")
		})
	})
}

func TestScorerFormatting(t *testing.T) {
	Convey("Given a rubric dimension", t, func() {
		d := rubric.Dimension{
			Key:  "intencja",
			Name: "Intencja",
			Levels: []rubric.Level{
				{Level: 1.0, Description: "Pełna"},
				{Level: 0.25, Description: "Śladowa"},
				{Level: 0.0, Description: " Brak "},
			},
		}

		Convey("Levels are listed ascending with decimal anchors", func() {
			So(pipeline.FormatLevels(d), ShouldEqual, "Poziom 0.0: Brak\nPoziom 0.25: Śladowa\nPoziom 1.0: Pełna")
		})

		Convey("Evidence lists numbered quotes and the note", func() {
			ev := model.Evidence{Present: true, Quotes: []string{"a", "b \"c\""}, Notes: "uwaga"}
			So(pipeline.FormatEvidence(ev), ShouldEqual, "Cytat 1: \"a\"\nCytat 2: \"b \"c\"\"\n\nNotatka: uwaga")
		})

		Convey("No quotes renders the no-evidence marker", func() {
			So(pipeline.FormatEvidence(model.Evidence{}), ShouldEqual, "BRAK DOWODÓW")
		})
	})
}

func TestFeedbackFormatting(t *testing.T) {
	Convey("Given a scoring result", t, func() {
		c, err := rubric.Default(types.Delegowanie)
		So(err, ShouldBeNil)
		keys := c.DimensionKeys()
		res := model.ScoringResult{
			Competency: types.Delegowanie,
			Dimensions: keys[:2],
			Scores: map[string]model.DimensionScore{
				keys[0]: {Dimension: keys[0], Score: 0.5, Weight: 0.25, Points: 0.125},
				keys[1]: {Dimension: keys[1], Score: 0, Weight: 0.15, Points: 0},
			},
			Evidence: map[string]model.Evidence{
				keys[0]: {Present: true, Quotes: []string{"cytat"}, Notes: "dobrze"},
				keys[1]: {},
			},
		}
		d0, _ := c.Dimension(keys[0])
		d1, _ := c.Dimension(keys[1])
		f := pipeline.NewFeedbackGenerator(nil, prompts0(), c)

		So(f.FormatDimensionScores(res), ShouldEqual,
			"- "+d0.Name+": 0.50/1.0 (waga: 25%, punkty: 0.125)\n- "+d1.Name+": 0.00/1.0 (waga: 15%, punkty: 0.000)")
		So(f.FormatEvidence(res), ShouldEqual,
			"\n"+d0.Name+":\n  1. \"cytat\"\n  Notatka: dobrze\n\n"+d1.Name+": BRAK DOWODÓW")
	})
}

func TestQualityCheck(t *testing.T) {
	Convey("Feedback shape is checked against word and list bounds", t, func() {
		good := model.Feedback{
			Summary:          strings.TrimSpace(strings.Repeat("słowo ", 60)),
			Recommendation:   strings.TrimSpace(strings.Repeat("słowo ", 12)),
			Strengths:        []string{"a"},
			DevelopmentAreas: []string{"b"},
		}
		q := pipeline.QualityCheck(good)
		So(q.IsValid, ShouldBeTrue)
		So(q.SummaryLength, ShouldEqual, 60)

		short := good
		short.Summary = "za krótko"
		So(pipeline.QualityCheck(short).IsValid, ShouldBeFalse)

		noAreas := good
		noAreas.DevelopmentAreas = nil
		So(pipeline.QualityCheck(noAreas).IsValid, ShouldBeFalse)
	})
}

func TestValidate(t *testing.T) {
	Convey("Sections shorter than twenty characters after trimming are insufficient", t, func() {
		c, err := rubric.Default(types.Delegowanie)
		So(err, ShouldBeNil)
		s := pipeline.NewStructurer(nil, prompts0(), c)
		p := model.ParsedResponse{Sections: map[string]string{}}
		for _, k := range c.SectionKeys() {
			p.Sections[k] = "Zadanie przekazałem z pełnym kontekstem."
		}
		ok, missing := s.Validate(p)
		So(ok, ShouldBeTrue)
		So(missing, ShouldBeEmpty)

		first := c.SectionKeys()[0]
		p.Sections[first] = "   zażółć gęślą jaź    "
		ok, missing = s.Validate(p)
		So(ok, ShouldBeFalse)
		So(missing, ShouldResemble, []string{first})
	})
}

func TestDiagnostics(t *testing.T) {
	Convey("Given a scripted model", t, func() {
		ctx := context.Background()
		deleg, err := rubric.Default(types.Delegowanie)
		So(err, ShouldBeNil)

		Convey("RunParse reports validation without rejecting", func() {
			client := newScripted().on(types.ModuleParse, reply{text: `{"przygotowanie": "krótko"}`})
			e := newEnv(t, client)
			d, err := e.orch.RunParse(ctx, types.Delegowanie, narrative)
			So(err, ShouldBeNil)
			So(d.Module, ShouldEqual, types.ModuleParse)
			So(d.PromptVersion, ShouldEqual, "v1")
			out := d.Output.(pipeline.ParseDiagnostic)
			So(out.Valid, ShouldBeFalse)
			So(out.Missing, ShouldHaveLength, len(deleg.Sections))
			So(d.Prompt.User, ShouldContainSubstring, narrative)
		})

		Convey("RunMap summarises the evidence", func() {
			client := newScripted().on(types.ModuleMap, reply{text: evidenceReply(deleg, true, 1)})
			e := newEnv(t, client)
			d, err := e.orch.RunMap(ctx, types.Delegowanie, model.ParsedResponse{
				Sections: map[string]string{"przygotowanie": "Ustaliłem cel i termin."},
			})
			So(err, ShouldBeNil)
			out := d.Output.(pipeline.MapDiagnostic)
			So(out.PresentCount, ShouldEqual, len(deleg.Dimensions))
			So(out.Summary[deleg.DimensionKeys()[0]].QuoteCount, ShouldEqual, 1)
			So(client.users[types.ModuleMap][0], ShouldContainSubstring, "PRZYGOTOWANIE:\nUstaliłem cel i termin.")
		})

		Convey("RunScore scores supplied evidence", func() {
			client := newScripted().on(types.ModuleScore, reply{text: "Ocena: 0.75"})
			e := newEnv(t, client)
			ev := map[string]model.Evidence{}
			for _, k := range deleg.DimensionKeys() {
				ev[k] = model.Evidence{Present: true, Quotes: []string{"cytat"}}
			}
			d, err := e.orch.RunScore(ctx, types.Delegowanie, model.MappedResponse{Evidence: ev})
			So(err, ShouldBeNil)
			out := d.Output.(model.ScoringResult)
			So(out.FinalScore, ShouldEqual, 3.0)
			So(out.Level, ShouldResemble, types.LevelD)
		})

		Convey("RunFeedback derives a missing level", func() {
			client := newScripted().on(types.ModuleFeedback, reply{text: feedbackReply()})
			e := newEnv(t, client)
			d, err := e.orch.RunFeedback(ctx, types.Delegowanie, model.ScoringResult{FinalScore: 1.5})
			So(err, ShouldBeNil)
			So(client.users[types.ModuleFeedback][0], ShouldContainSubstring, types.LevelB.Label)
			out := d.Output.(pipeline.FeedbackDiagnostic)
			So(out.Quality.IsValid, ShouldBeTrue)
		})

		Convey("Stage failures come back as StageError", func() {
			e := newEnv(t, newScripted())
			_, err := e.orch.RunParse(ctx, types.Delegowanie, narrative)
			So(err, ShouldHaveSameTypeAs, &pipeline.StageError{})
		})
	})
}
