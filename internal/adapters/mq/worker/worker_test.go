package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/mq/queue"
	worker "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/mq/worker"
	repository "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/repository"
	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
	pipeline "github.com/katarzynaochnikdu/LEM-V1/internal/domain/pipeline"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
	"github.com/smartystreets/goconvey/convey"
)

// mockAssessor scores by job text: "fail" fails the mapping stage, "config"
// fails before a result exists, anything else scores 2.5.
type mockAssessor struct {
	mu    sync.Mutex
	seen  []pipeline.Request
	delay time.Duration
}

func (m *mockAssessor) Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	m.mu.Lock()
	m.seen = append(m.seen, req)
	m.mu.Unlock()
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	a := &model.Assessment{ID: "a-" + req.ParticipantID, ParticipantID: req.ParticipantID, CaseID: req.CaseID, Competency: types.Delegowanie}
	switch req.ResponseText {
	case "config":
		return nil, types.ErrUnknownCompetency
	case "fail":
		return &pipeline.Result{State: types.StageFailed, Assessment: a},
			&pipeline.StageError{Stage: types.StageMapping, Err: errors.New("boom")}
	}
	a.Scoring = &model.ScoringResult{FinalScore: 2.5, Level: types.LevelFor(2.5)}
	return &pipeline.Result{State: types.StageDone, Assessment: a}, nil
}

func (m *mockAssessor) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

type collector struct {
	mu       sync.Mutex
	outcomes map[string]worker.Outcome
}

func newCollector() *collector { return &collector{outcomes: map[string]worker.Outcome{}} }

func (c *collector) Report(_ context.Context, o worker.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes[o.Job.ID] = o
}

func (c *collector) get(id string) (worker.Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.outcomes[id]
	return o, ok
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker with a sink and a reporter", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		assessor := &mockAssessor{}
		sink := repository.NewMemoryStore()
		reports := newCollector()
		w := worker.NewInMemoryWorker(q, assessor,
			worker.WithName("test-worker"), worker.WithSink(sink), worker.WithReporter(reports))

		for _, j := range []queue.Job{
			{ID: "r1", ParticipantID: "p1", CaseID: "case-7", Text: "ok"},
			{ID: "r2", ParticipantID: "p2", Text: "fail"},
			{ID: "r3", ParticipantID: "p3", Text: "config"},
		} {
			convey.So(q.Enqueue(ctx, j), convey.ShouldBeTrue)
		}
		convey.So(q.Close(), convey.ShouldBeNil)

		go w.Run(ctx)
		select {
		case <-w.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not drain the queue")
		}

		convey.Convey("Then every job is reported", func() {
			o, ok := reports.get("r1")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(o.Err, convey.ShouldBeNil)
			convey.So(o.Result.Assessment.Scoring.FinalScore, convey.ShouldEqual, 2.5)
			convey.So(assessor.seen[0].CaseID, convey.ShouldEqual, "case-7")

			o, _ = reports.get("r2")
			convey.So(errors.Is(o.Err, pipeline.ErrStageFailed), convey.ShouldBeTrue)

			o, _ = reports.get("r3")
			convey.So(o.Result, convey.ShouldBeNil)
		})

		convey.Convey("Then started assessments are saved with their state", func() {
			convey.So(sink.Len(), convey.ShouldEqual, 2)
			rec, err := sink.Get(ctx, "a-p2")
			convey.So(err, convey.ShouldBeNil)
			convey.So(rec.State, convey.ShouldEqual, types.StageFailed)
			convey.So(rec.Error, convey.ShouldContainSubstring, "boom")
		})

		convey.Convey("Then shutting down a finished worker returns at once", func() {
			convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
			convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given a worker blocked on an empty queue", t, func() {
		q := queue.NewInMemoryQueue()
		w := worker.NewInMemoryWorker(q, &mockAssessor{})
		go w.Run(context.Background())

		convey.Convey("Then Shutdown stops it", func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of four workers", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		assessor := &mockAssessor{delay: 5 * time.Millisecond}
		reports := newCollector()
		p := worker.NewPool(4, q, assessor, worker.WithReporter(reports))
		convey.So(p.Size(), convey.ShouldEqual, 4)
		p.Start(ctx)

		for i := 0; i < 40; i++ {
			id := string(rune('A'+i%26)) + string(rune('0'+i/26))
			convey.So(q.Put(ctx, queue.Job{ID: id, ParticipantID: id, Text: "ok"}), convey.ShouldBeNil)
		}
		convey.So(q.Close(), convey.ShouldBeNil)

		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		convey.So(p.Wait(waitCtx), convey.ShouldBeNil)

		convey.Convey("Then every job is processed once", func() {
			convey.So(assessor.count(), convey.ShouldEqual, 40)
			reports.mu.Lock()
			convey.So(reports.outcomes, convey.ShouldHaveLength, 40)
			reports.mu.Unlock()
		})

		convey.Convey("Then Shutdown after draining is clean", func() {
			convey.So(p.Shutdown(ctx), convey.ShouldBeNil)
		})
	})
}
