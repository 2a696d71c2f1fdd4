package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When a manager is created with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("pipeline"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then collectors carry the namespace and constant labels", func() {
				So(m, ShouldNotBeNil)
				m.assessments.WithLabelValues("delegowanie", "done").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_pipeline_assessments_total" {
						found = true
						labels := map[string]string{}
						for _, l := range f.GetMetric()[0].GetLabel() {
							labels[l.GetName()] = l.GetValue()
						}
						So(labels["env"], ShouldEqual, "test")
						So(labels["outcome"], ShouldEqual, "done")
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording pipeline events", func() {
			before := testutil.ToFloat64(globalManager.scoreFallbacks.WithLabelValues("udzielanie_feedbacku"))
			RecordScoreFallback("udzielanie_feedbacku")
			RecordScoreFallback("udzielanie_feedbacku")

			Convey("Then counters advance", func() {
				after := testutil.ToFloat64(globalManager.scoreFallbacks.WithLabelValues("udzielanie_feedbacku"))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When non-positive token counts or costs are recorded", func() {
			before := testutil.ToFloat64(globalManager.assessmentCost)
			RecordAssessmentCost(0)
			RecordAssessmentCost(-1)
			RecordLLMTokens("openai", "input", 0)

			Convey("Then nothing is added", func() {
				So(testutil.ToFloat64(globalManager.assessmentCost), ShouldEqual, before)
			})
		})

		Convey("When the registry is gathered", func() {
			RecordStageLatency("parse", 120)
			RecordHTTPRequest("assess", "POST", "200")
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)

			names := make([]string, 0, len(families))
			for _, f := range families {
				names = append(names, f.GetName())
			}
			joined := strings.Join(names, ",")
			So(joined, ShouldContainSubstring, "lem_assessment_stage_latency_milliseconds")
			So(joined, ShouldContainSubstring, "lem_assessment_http_requests_total")
			So(joined, ShouldNotContainSubstring, "go_goroutines")
		})
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given a reconfigured global manager", t, func() {
		prevManager, prevRegistry := globalManager, customRegistry
		Reset(func() { globalManager, customRegistry = prevManager, prevRegistry })

		Configure(WithSubsystem("calibration"), WithConstLabels(map[string]string{"deployment": "staging"}))
		RecordAssessment("delegowanie", "done")

		Convey("Then recorders write to the new registry with the constant label", func() {
			So(GetRegistry(), ShouldNotEqual, prevRegistry)
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			var labels map[string]string
			for _, f := range families {
				if f.GetName() != "lem_calibration_assessments_total" {
					continue
				}
				labels = map[string]string{}
				for _, l := range f.GetMetric()[0].GetLabel() {
					labels[l.GetName()] = l.GetValue()
				}
			}
			So(labels, ShouldNotBeNil)
			So(labels["deployment"], ShouldEqual, "staging")
		})
	})
}
