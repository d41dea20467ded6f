package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "pulse")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("drafts"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then metrics are registered under the custom names", func() {
				manager.draftSaves.WithLabelValues("ok").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_drafts_draft_saves_total")
			})
		})

		Convey("When empty options are passed", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "pulse")
				So(manager.histogramBuckets, ShouldNotBeEmpty)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording draft saves", func() {
			before := testutil.ToFloat64(globalManager.draftSaves.WithLabelValues("failed"))
			RecordDraftSave("failed", 12)
			RecordDraftSave("ok", 3)

			Convey("Then the labelled counter increases", func() {
				after := testutil.ToFloat64(globalManager.draftSaves.WithLabelValues("failed"))
				So(after-before, ShouldEqual, 1)
			})
		})

		Convey("When updating gauges", func() {
			UpdateActiveSessions(4)
			UpdateQueueSize(7)
			UpdateLeaderboardSize("discipline", 3)

			Convey("Then the latest value is reported", func() {
				So(testutil.ToFloat64(globalManager.activeSessions), ShouldEqual, 4)
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.leaderboardSize.WithLabelValues("discipline")), ShouldEqual, 3)
			})
		})

		Convey("When recording the remaining helpers", func() {
			So(func() {
				RecordDraftDeleteFailure()
				RecordSubmission("ok")
				RecordScoreComputation("kpi", 0.2)
				RecordScoringError()
				UpdateQueueCapacity(100)
				RecordQueueEnqueue()
				RecordQueueEnqueueError()
				RecordQueueDequeue()
				RecordEventDuplicate()
				UpdateWorkerCount(2)
				RecordWorkerError()
				RecordWorkerProcessingLatency(1.5)
				RecordHTTPRequest("/sessions", "POST", "201")
				RecordHTTPRequestDuration("/sessions", "POST", "201", 2)
				RecordHTTPError("/sessions", "not_found")
				RecordRateLimited()
			}, ShouldNotPanic)
		})

		Convey("Then the custom registry exposes them", func() {
			RecordSubmission("invalid")
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThan, 0)
		})
	})
}
