package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/katarzynaochnikdu/LEM-V1/pkg/metrics"
	. "github.com/smartystreets/goconvey/convey"
)

// httpErrors returns the lem_assessment_http_errors_total sample for the labels.
func httpErrors(endpoint, method, errType string) float64 {
	families, err := metrics.GetRegistry().Gather()
	if err != nil {
		return -1
	}
	for _, f := range families {
		if f.GetName() != "lem_assessment_http_errors_total" {
			continue
		}
	next:
		for _, m := range f.GetMetric() {
			want := map[string]string{"endpoint": endpoint, "method": method, "error_type": errType}
			for _, l := range m.GetLabel() {
				if v, ok := want[l.GetName()]; ok && v != l.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetricsMiddleware(t *testing.T) {
	Convey("Given handlers wrapped in MetricsMiddleware", t, func() {
		serve := func(endpoint string, h http.HandlerFunc) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			MetricsMiddleware(h, endpoint)(w, httptest.NewRequest(http.MethodGet, "/x", http.NoBody))
			return w
		}

		Convey("A failure written through writeFailure is counted under its API code", func() {
			before := httpErrors("mw_coded", "GET", "bad_request")
			w := serve("mw_coded", func(w http.ResponseWriter, _ *http.Request) {
				writeFailure(w, NewKind(ErrBadRequest, "nope"))
			})
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(httpErrors("mw_coded", "GET", "bad_request"), ShouldEqual, before+1)
		})

		Convey("A bare status falls back to its class", func() {
			before := httpErrors("mw_plain", "GET", "upstream_timeout")
			serve("mw_plain", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusGatewayTimeout)
			})
			So(httpErrors("mw_plain", "GET", "upstream_timeout"), ShouldEqual, before+1)
		})

		Convey("Successful responses are not counted as errors", func() {
			serve("mw_ok", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			})
			So(httpErrors("mw_ok", "GET", "client_error"), ShouldEqual, 0)
		})

		Convey("Only the first status is recorded", func() {
			rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
			rec.WriteHeader(http.StatusNotFound)
			rec.WriteHeader(http.StatusInternalServerError)
			So(rec.status, ShouldEqual, http.StatusNotFound)
			So(rec.Unwrap(), ShouldNotBeNil)
		})
	})

	Convey("statusClass names failure statuses", t, func() {
		So(statusClass(http.StatusGatewayTimeout), ShouldEqual, "upstream_timeout")
		So(statusClass(http.StatusBadGateway), ShouldEqual, "upstream_error")
		So(statusClass(http.StatusServiceUnavailable), ShouldEqual, "server_error")
		So(statusClass(http.StatusNotFound), ShouldEqual, "not_found")
		So(statusClass(http.StatusMethodNotAllowed), ShouldEqual, "method_not_allowed")
		So(statusClass(http.StatusUnprocessableEntity), ShouldEqual, "client_error")
	})

	Convey("tagError ignores writers outside the middleware", t, func() {
		So(func() { tagError(httptest.NewRecorder(), "x") }, ShouldNotPanic)
		So(errors.Is(NewKind(ErrBadRequest, "x"), ErrBadRequest), ShouldBeTrue)
	})
}
