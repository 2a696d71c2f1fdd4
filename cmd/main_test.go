package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/katarzynaochnikdu/LEM-V1/internal/adapters/llm/llmtest"
	repository "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/repository"
	service "github.com/katarzynaochnikdu/LEM-V1/internal/app"
	"github.com/katarzynaochnikdu/LEM-V1/internal/config"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When configuration comes from the environment", func() {
			_ = os.Setenv("LEM_ADDR", ":9090")
			_ = os.Setenv("LEM_LLM_MODEL", "gpt-4o")
			defer func() {
				_ = os.Unsetenv("LEM_ADDR")
				_ = os.Unsetenv("LEM_LLM_MODEL")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.LLMModel, convey.ShouldEqual, "gpt-4o")
			})
		})

		convey.Convey("When the listen address is empty", func() {
			_ = os.Setenv("LEM_ADDR", "")
			defer func() { _ = os.Unsetenv("LEM_ADDR") }()

			convey.Convey("Then configuration loading should fail", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestNewMux(t *testing.T) {
	if err := logger.Init(); err != nil {
		t.Fatalf("logger: %v", err)
	}

	convey.Convey("Given a started service", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		cfg.DataDir = t.TempDir()

		svc := service.New(cfg,
			service.WithLLMBuilder(llmtest.New().Builder()),
			service.WithResultStore(repository.NewMemoryStore()))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		mux := newMux(ctx, svc, cfg)
		get := func(path string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
			return w
		}

		convey.Convey("Then the API, the docs and the web client are all routed", func() {
			convey.So(get("/health").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/api/competencies").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/api-docs").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/openapi.yaml").Code, convey.ShouldEqual, http.StatusOK)

			root := get("/")
			convey.So(root.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(root.Header().Get("Content-Type"), convey.ShouldContainSubstring, "text/html")
		})

		convey.Convey("Then unknown API paths are not swallowed by the web client", func() {
			convey.So(get("/api/nothing-here").Code, convey.ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestSystemMetricsUpdater(t *testing.T) {
	convey.Convey("Given the system metrics updater", t, func() {
		convey.Convey("Then a single update should not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})

		convey.Convey("Then the loop should return once the context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			done := make(chan struct{})
			go func() {
				startSystemMetricsUpdater(ctx)
				close(done)
			}()

			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("updater did not stop")
			}
		})
	})
}
