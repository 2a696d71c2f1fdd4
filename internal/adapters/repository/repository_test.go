package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	repository "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/repository"
	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func done(id, participant string, c types.Competency, score, cost float64, minute int) repository.Record {
	return repository.Record{
		State: types.StageDone,
		Assessment: &model.Assessment{
			ID:            id,
			ParticipantID: participant,
			CaseID:        "lem_v1",
			Competency:    c,
			CreatedAt:     base.Add(time.Duration(minute) * time.Minute),
			ResponseText:  "narracja",
			CostUSD:       &cost,
			Scoring: &model.ScoringResult{
				Competency: c,
				FinalScore: score,
				Level:      types.LevelFor(score),
				Dimensions: []string{"intencja"},
				Evidence:   map[string]model.Evidence{"intencja": {Present: true, Quotes: []string{"cytat"}}},
			},
			Trace: []model.StageTrace{{Stage: types.StageStructuring, Calls: 1}},
		},
	}
}

func rejected(id, participant string, minute int) repository.Record {
	return repository.NewRecord(&model.Assessment{
		ID:            id,
		ParticipantID: participant,
		CaseID:        "lem_v1",
		Competency:    types.Delegowanie,
		CreatedAt:     base.Add(time.Duration(minute) * time.Minute),
	}, types.StageRejected, errors.New("insufficient sections"))
}

// contract runs the behaviour every Store must share.
func contract(newStore func() repository.Store) {
	ctx := context.Background()
	s := newStore()
	Reset(func() { _ = s.Close() })

	for _, r := range []repository.Record{
		done("a1", "p1", types.Delegowanie, 3.0, 0.01, 1),
		done("a2", "p2", types.UdzielanieFeedbacku, 1.5, 0.02, 2),
		rejected("a3", "p1", 3),
		done("a4", "p1", types.Delegowanie, 2.25, 0.03, 4),
	} {
		_, err := s.Save(ctx, r)
		So(err, ShouldBeNil)
	}

	Convey("Get returns the full record", func() {
		r, err := s.Get(ctx, "a1")
		So(err, ShouldBeNil)
		So(r.State, ShouldEqual, types.StageDone)
		So(r.Assessment.Scoring.FinalScore, ShouldEqual, 3.0)
		So(r.Assessment.Quotes()["intencja"], ShouldResemble, []string{"cytat"})
		So(r.Assessment.Trace, ShouldHaveLength, 1)

		rej, err := s.Get(ctx, "a3")
		So(err, ShouldBeNil)
		So(rej.Error, ShouldEqual, "insufficient sections")

		_, err = s.Get(ctx, "missing")
		So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
	})

	Convey("List is newest first and filtered", func() {
		all, err := s.List(ctx, repository.Filter{})
		So(err, ShouldBeNil)
		So(all, ShouldHaveLength, 4)
		So(all[0].ID, ShouldEqual, "a4")
		So(all[3].ID, ShouldEqual, "a1")
		So(all[1].Score, ShouldBeNil)
		So(*all[0].Score, ShouldEqual, 2.25)
		So(all[0].LevelCode, ShouldEqual, "C")

		p1, err := s.List(ctx, repository.Filter{ParticipantID: "p1", Competency: types.Delegowanie})
		So(err, ShouldBeNil)
		So(p1, ShouldHaveLength, 3)

		page, err := s.List(ctx, repository.Filter{Limit: 2, Offset: 1})
		So(err, ShouldBeNil)
		So(page, ShouldHaveLength, 2)
		So(page[0].ID, ShouldEqual, "a3")

		_, err = s.List(ctx, repository.Filter{Limit: -1})
		So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
	})

	Convey("Stats aggregate scores, levels and cost", func() {
		st, err := s.Stats(ctx)
		So(err, ShouldBeNil)
		So(st.Count, ShouldEqual, 4)
		So(st.Scored, ShouldEqual, 3)
		So(st.MeanScore, ShouldAlmostEqual, (3.0+1.5+2.25)/3, 1e-9)
		So(st.Levels, ShouldResemble, map[string]int{"D": 1, "B": 1, "C": 1})
		So(st.States["rejected"], ShouldEqual, 1)
		So(st.TotalCostUSD, ShouldAlmostEqual, 0.06, 1e-9)
	})

	Convey("Saving an existing id replaces it", func() {
		_, err := s.Save(ctx, done("a1", "p1", types.Delegowanie, 4.0, 0.01, 1))
		So(err, ShouldBeNil)
		r, err := s.Get(ctx, "a1")
		So(err, ShouldBeNil)
		So(r.Assessment.Scoring.FinalScore, ShouldEqual, 4.0)
		st, _ := s.Stats(ctx)
		So(st.Count, ShouldEqual, 4)
	})

	Convey("Records without an id get one", func() {
		r := rejected("", "p9", 9)
		id, err := s.Save(ctx, r)
		So(err, ShouldBeNil)
		So(id, ShouldNotBeEmpty)
		got, err := s.Get(ctx, id)
		So(err, ShouldBeNil)
		So(got.Assessment.ParticipantID, ShouldEqual, "p9")
	})

	Convey("Invalid records are refused", func() {
		_, err := s.Save(ctx, repository.Record{State: types.StageDone})
		So(errors.Is(err, repository.ErrInvalidRecord), ShouldBeTrue)
	})
}

func TestMemoryStore(t *testing.T) {
	Convey("Given a memory store", t, func() {
		contract(func() repository.Store { return repository.NewMemoryStore() })
	})

	Convey("A full ring evicts the oldest record", t, func() {
		ctx := context.Background()
		s := repository.NewMemoryStore(repository.WithCapacity(3))
		for i := 1; i <= 5; i++ {
			_, err := s.Save(ctx, done(fmt.Sprintf("a%d", i), "p", types.Delegowanie, 2, 0, i))
			So(err, ShouldBeNil)
		}
		So(s.Len(), ShouldEqual, 3)
		_, err := s.Get(ctx, "a2")
		So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		list, err := s.List(ctx, repository.Filter{})
		So(err, ShouldBeNil)
		So([]string{list[0].ID, list[1].ID, list[2].ID}, ShouldResemble, []string{"a5", "a4", "a3"})

		So(s.Close(), ShouldBeNil)
		_, err = s.Save(ctx, done("a6", "p", types.Delegowanie, 2, 0, 6))
		So(errors.Is(err, repository.ErrClosed), ShouldBeTrue)
	})
}

func TestSQLiteStore(t *testing.T) {
	Convey("Given a sqlite store", t, func() {
		path := filepath.Join(t.TempDir(), "sink", "lem.db")
		contract(func() repository.Store {
			s, err := repository.NewSQLiteStore(context.Background(), path)
			So(err, ShouldBeNil)
			return s
		})
	})
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("LEM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LEM_TEST_POSTGRES_DSN not set")
	}
	Convey("Given a postgres store", t, func() {
		contract(func() repository.Store {
			ctx := context.Background()
			s, err := repository.NewPostgresStore(ctx, dsn)
			So(err, ShouldBeNil)
			So(s.Truncate(ctx), ShouldBeNil)
			return s
		})
	})
}
