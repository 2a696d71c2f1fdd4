package site

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func get(mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", path, http.NoBody))
	return w
}

func TestEmbeddedSite(t *testing.T) {
	Convey("Given the embedded landing page", t, func() {
		mux := http.NewServeMux()
		Register(context.Background(), mux, "")

		Convey("Then / serves it", func() {
			w := get(mux, "/")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
			So(w.Body.String(), ShouldContainSubstring, "/api-docs")
		})

		Convey("And unknown client routes fall back to it", func() {
			So(get(mux, "/wyniki/123").Code, ShouldEqual, http.StatusOK)
		})

		Convey("And unknown API paths are 404", func() {
			So(get(mux, "/api/nope").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestDirectorySite(t *testing.T) {
	Convey("Given a built client on disk", t, func() {
		dir := t.TempDir()
		So(os.MkdirAll(filepath.Join(dir, "assets"), 0o750), ShouldBeNil)
		So(os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>spa</html>"), 0o600), ShouldBeNil)
		So(os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o600), ShouldBeNil)

		mux := http.NewServeMux()
		Register(context.Background(), mux, dir)

		Convey("Then assets are served as files", func() {
			w := get(mux, "/assets/app.js")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldEqual, "console.log(1)")
		})

		Convey("And client routes get the app shell", func() {
			w := get(mux, "/ocena/nowa")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldEqual, "<html>spa</html>")
		})

		Convey("And directories are not listed", func() {
			w := get(mux, "/assets")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldEqual, "<html>spa</html>")
		})
	})

	Convey("Given a directory without a build", t, func() {
		mux := http.NewServeMux()
		Register(context.Background(), mux, t.TempDir())

		Convey("Then the client is unavailable", func() {
			So(get(mux, "/").Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestSiteHandlerWithNilMux(t *testing.T) {
	Convey("Given a nil mux", t, func() {
		Convey("Then registering should panic", func() {
			So(func() {
				Register(context.Background(), nil, "")
			}, ShouldPanic)
		})
	})
}
