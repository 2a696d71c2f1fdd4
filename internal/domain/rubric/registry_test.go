package rubric_test

import (
	"context"
	"errors"
	"math"
	"testing"

	storage "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/storage"
	rubric "github.com/katarzynaochnikdu/LEM-V1/internal/domain/rubric"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func newRegistry(t *testing.T) (*rubric.Registry, storage.Storage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	reg, err := rubric.New(context.Background(), store)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg, store
}

func TestEmbeddedDefaults(t *testing.T) {
	Convey("Given the embedded rubric", t, func() {
		reg, err := rubric.New(context.Background(), nil)
		So(err, ShouldBeNil)

		Convey("Every competency is present with weights summing to one", func() {
			all := reg.Snapshot().All()
			So(all, ShouldHaveLength, 4)
			for _, c := range all {
				So(math.Abs(rubric.WeightSum(c)-1), ShouldBeLessThanOrEqualTo, rubric.WeightTolerance)
				So(c.Sections, ShouldHaveLength, 4)
				So(c.Version, ShouldEqual, "1.0")
				So(c.ShortName, ShouldEqual, c.ID.ShortName())
			}
		})

		Convey("Delegation has seven ordered dimensions", func() {
			dims, err := reg.DimensionsFor(types.Delegowanie)
			So(err, ShouldBeNil)
			So(dims, ShouldHaveLength, 7)
			So(dims[0].Key, ShouldEqual, "intencja")
			weights, err := reg.WeightsFor(types.Delegowanie)
			So(err, ShouldBeNil)
			So(weights["harmonogram"], ShouldEqual, 0.10)
		})

		Convey("Levels resolve to the nearest anchor", func() {
			c, err := reg.Competency(types.Delegowanie)
			So(err, ShouldBeNil)
			d, ok := c.Dimension("intencja")
			So(ok, ShouldBeTrue)
			So(d.LevelDescriptionNear(0.0), ShouldEqual, "Nie określa intencji zadania, brak kontekstu biznesowego")
			So(d.LevelDescriptionNear(0.5), ShouldEqual, "Jasno określa intencję biznesową zadania")
			So(d.LevelDescriptionNear(0.6), ShouldEqual, "Jasno określa intencję biznesową zadania")
			So(d.LevelDescriptionNear(0.7), ShouldEqual, "Intencja + powiązanie ze strategią organizacji")
		})

		Convey("Edits are rejected without a store", func() {
			_, err := reg.SetWeights(context.Background(), types.Delegowanie, nil)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestSetWeights(t *testing.T) {
	Convey("Given a registry backed by local storage", t, func() {
		reg, store := newRegistry(t)
		ctx := context.Background()
		before := reg.Snapshot()

		valid := map[string]float64{
			"fakty_zachowania":           0.3,
			"emocje":                     0.1,
			"konsekwencje":               0.2,
			"oczekiwania":                0.2,
			"sprawdzenie_zrozumienia_fb": 0.2,
		}

		Convey("Valid weights create version 1.1 and publish a new snapshot", func() {
			c, err := reg.SetWeights(ctx, types.UdzielanieFeedbacku, valid)
			So(err, ShouldBeNil)
			So(c.Version, ShouldEqual, "1.1")

			w, err := reg.WeightsFor(types.UdzielanieFeedbacku)
			So(err, ShouldBeNil)
			So(w["fakty_zachowania"], ShouldEqual, 0.3)

			Convey("The old snapshot is untouched", func() {
				old, err := before.Competency(types.UdzielanieFeedbacku)
				So(err, ShouldBeNil)
				So(old.Version, ShouldEqual, "1.0")
				So(old.Weights()["fakty_zachowania"], ShouldNotEqual, 0.3)
			})

			Convey("The version record and pointer are persisted", func() {
				ptr, err := store.Get(ctx, "rubric/udzielanie_feedbacku/current")
				So(err, ShouldBeNil)
				So(string(ptr), ShouldEqual, "1.1")
				ok, err := store.Exists(ctx, "rubric/udzielanie_feedbacku/1.1.yaml")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
			})

			Convey("A fresh registry on the same store sees the edit", func() {
				again, err := rubric.New(ctx, store)
				So(err, ShouldBeNil)
				c, err := again.Competency(types.UdzielanieFeedbacku)
				So(err, ShouldBeNil)
				So(c.Version, ShouldEqual, "1.1")
				So(c.Weights()["emocje"], ShouldEqual, 0.1)
			})

			Convey("A second edit bumps to 1.2", func() {
				c, err := reg.SetWeights(ctx, types.UdzielanieFeedbacku, valid)
				So(err, ShouldBeNil)
				So(c.Version, ShouldEqual, "1.2")
			})
		})

		Convey("Weights that do not sum to one are a validation error", func() {
			bad := map[string]float64{}
			for k, v := range valid {
				bad[k] = v
			}
			bad["emocje"] = 0.3
			_, err := reg.SetWeights(ctx, types.UdzielanieFeedbacku, bad)
			So(errors.Is(err, rubric.ErrValidation), ShouldBeTrue)
			So(errors.Is(err, types.ErrValidation), ShouldBeTrue)

			c, _ := reg.Competency(types.UdzielanieFeedbacku)
			So(c.Version, ShouldEqual, "1.0")
		})

		Convey("Unknown and missing dimensions are all listed", func() {
			_, err := reg.SetWeights(ctx, types.UdzielanieFeedbacku, map[string]float64{"emocje": 1, "cisza": 0})
			var vErr *rubric.ValidationError
			So(errors.As(err, &vErr), ShouldBeTrue)
			So(len(vErr.Problems), ShouldEqual, 5)
		})

		Convey("Unknown competencies are rejected", func() {
			_, err := reg.SetWeights(ctx, types.Competency("negocjacje"), valid)
			So(errors.Is(err, rubric.ErrUnknownCompetency), ShouldBeTrue)
		})
	})
}

func TestEdit(t *testing.T) {
	Convey("Given a registry backed by local storage", t, func() {
		reg, _ := newRegistry(t)
		ctx := context.Background()

		Convey("Renaming keeps dimensions and bumps the version", func() {
			c, err := reg.Edit(ctx, types.PodejmowanieDecyzji, rubric.Update{Name: "Decyzje v2"})
			So(err, ShouldBeNil)
			So(c.Name, ShouldEqual, "Decyzje v2")
			So(c.Version, ShouldEqual, "1.1")
			So(c.Dimensions, ShouldHaveLength, 6)
		})

		Convey("Replacing dimensions is validated", func() {
			_, err := reg.Edit(ctx, types.PodejmowanieDecyzji, rubric.Update{
				Dimensions: []rubric.Dimension{
					{Key: "a", Name: "A", Weight: 0.5, Levels: []rubric.Level{{Level: 0, Description: "x"}}},
					{Key: "a", Name: "B", Weight: 0.6},
				},
			})
			var vErr *rubric.ValidationError
			So(errors.As(err, &vErr), ShouldBeTrue)
			So(vErr.Problems, ShouldContain, `dimension "a": duplicate key`)
		})

		Convey("Reload keeps the published edit", func() {
			_, err := reg.Edit(ctx, types.OkreslaniePriorytetow, rubric.Update{Algorithm: []string{"1. Krok"}})
			So(err, ShouldBeNil)
			So(reg.Reload(ctx), ShouldBeNil)
			c, _ := reg.Competency(types.OkreslaniePriorytetow)
			So(c.Algorithm, ShouldResemble, []string{"1. Krok"})
		})
	})
}
