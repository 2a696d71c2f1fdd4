package prompts_test

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"testing"
	"time"

	storage "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/storage"
	prompts "github.com/katarzynaochnikdu/LEM-V1/internal/domain/prompts"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func fixedClock() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

func newManager(t *testing.T) (*prompts.Manager, storage.Storage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	m, err := prompts.NewManager(context.Background(), store, prompts.WithClock(fixedClock))
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m, store
}

type mapStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapStore() *mapStore { return &mapStore{data: map[string][]byte{}} }

func (s *mapStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return nil
}

func (s *mapStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data[key]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return d, nil
}

func (s *mapStore) delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

const scoreTmpl = "Wymiar {wymiar_nazwa}: {wymiar_opis}\n{poziomy}\n{dowody}"

func TestSeed(t *testing.T) {
	Convey("Given an empty store", t, func() {
		m, _ := newManager(t)
		ctx := context.Background()

		Convey("Nothing resolves before seeding", func() {
			_, err := m.Resolve(types.ModuleParse, types.Delegowanie)
			So(errors.Is(err, prompts.ErrNotFound), ShouldBeTrue)
		})

		Convey("Seeding installs v1 for every module", func() {
			So(m.Seed(ctx), ShouldBeNil)
			for _, mod := range types.Modules() {
				pv, err := m.Resolve(mod, types.UdzielanieFeedbacku)
				So(err, ShouldBeNil)
				So(pv.Version, ShouldEqual, "v1")
				So(pv.System, ShouldNotBeEmpty)
				So(pv.IsActive, ShouldBeTrue)
			}

			Convey("Every seeded template uses only its module's placeholders", func() {
				for _, mod := range types.Modules() {
					pv, _ := m.Resolve(mod, types.Delegowanie)
					for _, p := range prompts.Placeholders(pv.Content) {
						So(prompts.AllowedPlaceholders(mod), ShouldContain, p)
					}
					vars := map[string]string{}
					for _, p := range prompts.AllowedPlaceholders(mod) {
						vars[p] = "X"
					}
					_, err := pv.Render(vars)
					So(err, ShouldBeNil)
				}
			})

			Convey("Seeding again changes nothing", func() {
				So(m.Seed(ctx), ShouldBeNil)
				versions, err := m.Snapshot().ListVersions(types.ModuleMap)
				So(err, ShouldBeNil)
				So(versions, ShouldHaveLength, 1)
			})
		})
	})
}

func TestSaveAndActivate(t *testing.T) {
	Convey("Given a seeded store", t, func() {
		m, store := newManager(t)
		ctx := context.Background()
		So(m.Seed(ctx), ShouldBeNil)

		Convey("Saving without activate does not move an existing pointer", func() {
			res, err := m.Save(ctx, prompts.SaveRequest{
				Module: types.ModuleScore, Version: "v2", Content: scoreTmpl, Competency: types.Delegowanie,
			})
			So(err, ShouldBeNil)
			So(res.IsNew, ShouldBeTrue)
			So(res.Activated, ShouldBeFalse)
			pv, _ := m.Resolve(types.ModuleScore, types.Delegowanie)
			So(pv.Version, ShouldEqual, "v1")
		})

		Convey("Saving for a competency without its own pointer activates it there only", func() {
			res, err := m.Save(ctx, prompts.SaveRequest{
				Module: types.ModuleScore, Version: "v2", Content: scoreTmpl, Competency: types.PodejmowanieDecyzji,
			})
			So(err, ShouldBeNil)
			So(res.Activated, ShouldBeTrue)
			active := m.Snapshot().ActiveVersions(types.PodejmowanieDecyzji)
			So(active[types.ModuleScore], ShouldEqual, "v2")
			So(m.Snapshot().ActiveVersions(types.Delegowanie)[types.ModuleScore], ShouldEqual, "v1")
		})

		Convey("Activating v2 for one competency leaves another untouched", func() {
			_, err := m.Save(ctx, prompts.SaveRequest{Module: types.ModuleScore, Version: "v2", Content: scoreTmpl, Competency: types.Delegowanie})
			So(err, ShouldBeNil)
			_, err = m.Save(ctx, prompts.SaveRequest{Module: types.ModuleScore, Version: "v3", Content: scoreTmpl, Competency: types.OkreslaniePriorytetow, Activate: true})
			So(err, ShouldBeNil)

			res, err := m.Activate(ctx, types.ModuleScore, "v2", types.UdzielanieFeedbacku)
			So(err, ShouldBeNil)
			So(res.OldActive, ShouldEqual, "")
			So(res.NewActive, ShouldEqual, "v2")

			snap := m.Snapshot()
			So(snap.ActiveVersions(types.UdzielanieFeedbacku)[types.ModuleScore], ShouldEqual, "v2")
			So(snap.ActiveVersions(types.OkreslaniePriorytetow)[types.ModuleScore], ShouldEqual, "v3")
			So(snap.ActiveVersions(types.Delegowanie)[types.ModuleScore], ShouldEqual, "v1")

			Convey("Version listings show where each version is active", func() {
				versions, err := snap.ListVersions(types.ModuleScore)
				So(err, ShouldBeNil)
				So(versions, ShouldHaveLength, 3)
				So(versions[1].Name, ShouldEqual, "v2")
				So(versions[1].ActiveFor, ShouldResemble, []string{"udzielanie_feedbacku"})
				So(versions[2].ActiveFor, ShouldResemble, []string{"okreslanie_priorytetow"})
			})

			Convey("A fresh manager on the same store sees the same pointers", func() {
				again, err := prompts.NewManager(ctx, store)
				So(err, ShouldBeNil)
				pv, err := again.Resolve(types.ModuleScore, types.UdzielanieFeedbacku)
				So(err, ShouldBeNil)
				So(pv.Version, ShouldEqual, "v2")
				So(pv.Content, ShouldEqual, scoreTmpl)
			})
		})

		Convey("Updating an existing version keeps created_at and sets updated_at", func() {
			_, err := m.Save(ctx, prompts.SaveRequest{Module: types.ModuleScore, Version: "v1", Content: scoreTmpl, Description: "poprawka"})
			So(err, ShouldBeNil)
			pv, err := m.Get(types.ModuleScore, "v1", types.Delegowanie)
			So(err, ShouldBeNil)
			So(pv.Description, ShouldEqual, "poprawka")
			versions, _ := m.Snapshot().ListVersions(types.ModuleScore)
			So(versions[0].UpdatedAt, ShouldEqual, "2026-03-01T12:00:00Z")
		})

		Convey("Failure modes are reported", func() {
			_, err := m.Activate(ctx, types.Module("export"), "v1", types.Delegowanie)
			So(errors.Is(err, prompts.ErrInvalidModule), ShouldBeTrue)

			_, err = m.Activate(ctx, types.ModuleScore, "v9", types.Delegowanie)
			So(errors.Is(err, prompts.ErrUnknownVersion), ShouldBeTrue)

			_, err = m.Save(ctx, prompts.SaveRequest{Module: types.ModuleScore, Version: "../x", Content: scoreTmpl})
			So(errors.Is(err, prompts.ErrInvalidName), ShouldBeTrue)

			_, err = m.Save(ctx, prompts.SaveRequest{Module: types.ModuleScore, Version: "v4", Content: "Oceń {nieznane}"})
			So(errors.Is(err, prompts.ErrTemplate), ShouldBeTrue)
		})

		Convey("Content missing behind valid metadata is surfaced", func() {
			ms := newMapStore()
			mm, err := prompts.NewManager(ctx, ms)
			So(err, ShouldBeNil)
			_, err = mm.Save(ctx, prompts.SaveRequest{Module: types.ModuleMap, Version: "v2", Content: "{parsed_response}"})
			So(err, ShouldBeNil)

			ms.delete("prompts/map/v2.txt")
			So(mm.Reload(ctx), ShouldBeNil)

			_, err = mm.Get(types.ModuleMap, "v2", types.Delegowanie)
			So(errors.Is(err, prompts.ErrContentMissing), ShouldBeTrue)
			_, err = mm.Activate(ctx, types.ModuleMap, "v2", types.Delegowanie)
			So(errors.Is(err, prompts.ErrContentMissing), ShouldBeTrue)
		})
	})
}

func TestListModules(t *testing.T) {
	Convey("Given a seeded store", t, func() {
		m, _ := newManager(t)
		So(m.Seed(context.Background()), ShouldBeNil)
		mods := m.Snapshot().ListModules()
		So(mods, ShouldHaveLength, 4)
		So(mods[0].Module, ShouldEqual, types.ModuleParse)
		So(mods[0].VersionCount, ShouldEqual, 1)
		So(mods[0].Active["delegowanie"], ShouldEqual, "v1")
		So(m.Snapshot().ActivePointers()[types.ModuleFeedback]["delegowanie"], ShouldEqual, "v1")
	})
}

func TestLegacyMeta(t *testing.T) {
	Convey("Given metadata with a single active version name", t, func() {
		ctx := context.Background()
		ms := newMapStore()
		_ = ms.Put(ctx, "prompts/score/_meta.json", []byte(`{
			"module": "score",
			"active": "v2",
			"versions": [
				{"name": "v1", "created_at": "2025-01-01T00:00:00"},
				{"name": "v2", "created_at": "2025-02-01T00:00:00"}
			]
		}`))
		_ = ms.Put(ctx, "prompts/score/v1.txt", []byte(scoreTmpl))
		_ = ms.Put(ctx, "prompts/score/v2.txt", []byte(scoreTmpl))

		m, err := prompts.NewManager(ctx, ms)
		So(err, ShouldBeNil)

		Convey("The name becomes the default competency's pointer", func() {
			pv, err := m.Resolve(types.ModuleScore, types.PodejmowanieDecyzji)
			So(err, ShouldBeNil)
			So(pv.Version, ShouldEqual, "v2")
			So(m.Snapshot().ActivePointers()[types.ModuleScore], ShouldResemble,
				map[string]string{string(types.DefaultCompetency): "v2"})
		})

		Convey("Saving rewrites it in the per-competency form", func() {
			_, err := m.Activate(ctx, types.ModuleScore, "v1", types.UdzielanieFeedbacku)
			So(err, ShouldBeNil)
			data, err := ms.Get(ctx, "prompts/score/_meta.json")
			So(err, ShouldBeNil)
			So(string(data), ShouldContainSubstring, `"udzielanie_feedbacku": "v1"`)
			So(m.Reload(ctx), ShouldBeNil)
			pv, err := m.Resolve(types.ModuleScore, types.Delegowanie)
			So(err, ShouldBeNil)
			So(pv.Version, ShouldEqual, "v2")
		})
	})

	Convey("An active field of the wrong shape is a decode error", t, func() {
		ctx := context.Background()
		ms := newMapStore()
		_ = ms.Put(ctx, "prompts/map/_meta.json", []byte(`{"active": 3, "versions": []}`))
		_, err := prompts.NewManager(ctx, ms)
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "decode prompt meta map")
	})
}
