package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/opsboard/pulse/internal/adapters/http/api"
	service "github.com/opsboard/pulse/internal/app"
	"github.com/opsboard/pulse/internal/domain/autosave"
	"github.com/opsboard/pulse/internal/domain/draft"
	"github.com/opsboard/pulse/internal/domain/model"
	"github.com/opsboard/pulse/internal/domain/period"
	"github.com/opsboard/pulse/internal/domain/scoring"
	"github.com/opsboard/pulse/internal/domain/types"
	"github.com/opsboard/pulse/internal/domain/workflow"
	"github.com/opsboard/pulse/pkg/logger"
)

// mockDeps returns canned values, or err when set.
type mockDeps struct {
	err     error
	changes model.Fields
	day     int
	limit   int
	kind    string
	year    int
	months  int
}

func (m *mockDeps) OpenSession(_ context.Context, subject, p string) (service.SessionView, error) {
	if m.err != nil {
		return service.SessionView{}, m.err
	}
	return service.SessionView{ID: "s1", Identity: model.Identity{SubjectKey: subject, Period: period.MustParse(p)}}, nil
}

func (m *mockDeps) Session(context.Context, string) (service.SessionView, error) {
	return service.SessionView{ID: "s1"}, m.err
}

func (m *mockDeps) CloseSession(context.Context, string) error { return m.err }

func (m *mockDeps) UpdateFields(_ context.Context, _ string, changes model.Fields) (autosave.Status, error) {
	m.changes = changes
	return autosave.Status{Phase: autosave.Dirty, Unsaved: true}, m.err
}

func (m *mockDeps) CycleAttendance(_ context.Context, _ string, day int) (workflow.AttendanceMark, autosave.Status, error) {
	m.day = day
	return workflow.MarkPresent, autosave.Status{Phase: autosave.Dirty}, m.err
}

func (m *mockDeps) SaveDraft(context.Context, string) (autosave.Status, error) {
	return autosave.Status{Phase: autosave.Clean}, m.err
}

func (m *mockDeps) ResumeDraft(context.Context, string) (service.SessionView, error) {
	return service.SessionView{ID: "s1"}, m.err
}

func (m *mockDeps) DiscardDraft(context.Context, string) (service.SessionView, error) {
	return service.SessionView{ID: "s1"}, m.err
}

func (m *mockDeps) Submit(context.Context, string) (model.Submission, error) {
	return model.Submission{}, m.err
}

func (m *mockDeps) PutMetrics(_ context.Context, subject, _ string, values map[string]float64) (service.PutAck, error) {
	return service.PutAck{Record: model.MetricRecord{SubjectID: subject, Values: values}}, m.err
}

func (m *mockDeps) Score(_ context.Context, _, _, kind string) (service.ScoreReport, error) {
	m.kind = kind
	return service.ScoreReport{Display: 81}, m.err
}

func (m *mockDeps) Trends(context.Context, string, string) (service.TrendReport, error) {
	return service.TrendReport{}, m.err
}

func (m *mockDeps) History(_ context.Context, subject, _, kind string, months int) (service.HistoryReport, error) {
	m.kind, m.months = kind, months
	return service.HistoryReport{SubjectID: subject, Points: []service.HistoryPoint{}}, m.err
}

func (m *mockDeps) MonthStatuses(_ context.Context, _ string, year int) ([]workflow.MonthStatus, error) {
	m.year = year
	return []workflow.MonthStatus{}, m.err
}

func (m *mockDeps) Leaderboard(_ context.Context, _, kind string, limit int) ([]types.Entry, error) {
	m.limit, m.kind = limit, kind
	return []types.Entry{{Rank: 1, SubjectID: "E1", Score: 81}}, m.err
}

type mockStats struct{}

func (mockStats) GetStats() map[string]interface{} { return map[string]interface{}{"started": true} }

func newMux(deps api.Dependencies, opts ...api.Option) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, mockStats{}, append([]api.Option{api.WithLogger(logger.Nop())}, opts...)...).Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

func decodeError(w *httptest.ResponseRecorder) errorBody {
	var body errorBody
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body
}

func TestServer_Routes(t *testing.T) {
	Convey("Given an API server over healthy dependencies", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("Then health and stats respond", func() {
			So(do(mux, "GET", "/healthz", "").Code, ShouldEqual, http.StatusOK)
			w := do(mux, "GET", "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("Then health answers JSON clients with a liveness body", func() {
			req := httptest.NewRequest("GET", "/healthz", http.NoBody)
			req.Header.Set("Accept", "application/json")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Body.String(), ShouldContainSubstring, `"status":"ok"`)
		})

		Convey("Then a session can be opened", func() {
			w := do(mux, "POST", "/sessions", `{"subject_key":"E1","period":"2024-03"}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(w.Body.String(), ShouldContainSubstring, `"id":"s1"`)
			So(w.Body.String(), ShouldContainSubstring, `"period":"2024-03"`)
		})

		Convey("Then field edits are passed through", func() {
			w := do(mux, "PATCH", "/sessions/s1/fields", `{"fieldA":1}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.changes["fieldA"], ShouldEqual, 1.0)
			So(w.Body.String(), ShouldContainSubstring, `"phase":"dirty"`)
		})

		Convey("Then attendance days are parsed from the path", func() {
			w := do(mux, "POST", "/sessions/s1/attendance/12", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.day, ShouldEqual, 12)
			So(w.Body.String(), ShouldContainSubstring, `"mark":"present"`)
		})

		Convey("Then the session actions respond", func() {
			So(do(mux, "GET", "/sessions/s1", "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, "POST", "/sessions/s1/save", "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, "POST", "/sessions/s1/resume", "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, "POST", "/sessions/s1/discard", "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, "POST", "/sessions/s1/submit", "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, "DELETE", "/sessions/s1", "").Code, ShouldEqual, http.StatusNoContent)
		})

		Convey("Then metrics, scores, trends and months respond", func() {
			So(do(mux, "PUT", "/metrics/E1/2024-03", `{"values":{"kpi_score":8}}`).Code, ShouldEqual, http.StatusAccepted)
			w := do(mux, "GET", "/scores/E1/2024-03?kind=kpi", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.kind, ShouldEqual, "kpi")
			So(do(mux, "GET", "/trends/E1/2024-03", "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, "GET", "/months/E1?year=2023", "").Code, ShouldEqual, http.StatusOK)
			So(deps.year, ShouldEqual, 2023)
		})

		Convey("Then history passes the window through", func() {
			w := do(mux, "GET", "/history/E1/2024-03?kind=growth&months=12", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"subject_id":"E1"`)
			So(deps.kind, ShouldEqual, "growth")
			So(deps.months, ShouldEqual, 12)
			So(do(mux, "GET", "/history/E1/2024-03", "").Code, ShouldEqual, http.StatusOK)
			So(deps.months, ShouldEqual, 0)
			So(do(mux, "GET", "/history/E1/2024-03?months=six", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then the leaderboard applies the default and maximum limits", func() {
			So(do(mux, "GET", "/leaderboard/2024-03", "").Code, ShouldEqual, http.StatusOK)
			So(deps.limit, ShouldEqual, 10)
			So(do(mux, "GET", "/leaderboard/2024-03?limit=5&kind=growth", "").Code, ShouldEqual, http.StatusOK)
			So(deps.limit, ShouldEqual, 5)
			So(deps.kind, ShouldEqual, "growth")
			So(decodeError(do(mux, "GET", "/leaderboard/2024-03?limit=101", "")).Code, ShouldEqual, "limit_exceeded")
			So(do(mux, "GET", "/leaderboard/2024-03?limit=zero", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then malformed bodies are rejected", func() {
			So(do(mux, "POST", "/sessions", `{`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, "POST", "/sessions", `{"period":"2024-03"}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, "PATCH", "/sessions/s1/fields", `{}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, "PUT", "/metrics/E1/2024-03", `{"values":{}}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, "POST", "/sessions/s1/attendance/x", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, "GET", "/months/E1?year=soon", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then wrong methods and unknown paths are refused", func() {
			So(do(mux, "DELETE", "/stats", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(do(mux, "GET", "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestServer_ErrorMapping(t *testing.T) {
	Convey("Given dependencies failing with each sentinel", t, func() {
		verr := &workflow.ValidationError{}
		verr.Add("attendance_total", "Total attendance (25 days) cannot exceed 23 working days for March 2024")

		cases := []struct {
			err    error
			status int
			code   string
		}{
			{fmt.Errorf("x: %w", period.ErrInvalidPeriod), http.StatusBadRequest, "bad_request"},
			{scoring.ErrUnknownKind, http.StatusBadRequest, "bad_request"},
			{workflow.ErrInvalidDay, http.StatusBadRequest, "bad_request"},
			{service.ErrSessionNotFound, http.StatusNotFound, "not_found"},
			{service.ErrNoRecord, http.StatusNotFound, "not_found"},
			{draft.ErrNotFound, http.StatusNotFound, "not_found"},
			{autosave.ErrClosed, http.StatusConflict, "session_closed"},
			{verr, http.StatusUnprocessableEntity, "validation_failed"},
			{service.ErrBackpressure, http.StatusTooManyRequests, "backpressure"},
			{service.ErrNotStarted, http.StatusServiceUnavailable, "unavailable"},
			{fmt.Errorf("%w: disk", draft.ErrPersistence), http.StatusInternalServerError, "persistence_failed"},
			{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
		}

		Convey("Then each maps to its status and code", func() {
			for _, c := range cases {
				mux := newMux(&mockDeps{err: c.err})
				w := do(mux, "POST", "/sessions/s1/submit", "")
				So(w.Code, ShouldEqual, c.status)
				body := decodeError(w)
				So(body.Code, ShouldEqual, c.code)
				So(body.Message, ShouldNotBeEmpty)
			}
		})

		Convey("Then validation messages are listed per field", func() {
			w := do(newMux(&mockDeps{err: verr}), "POST", "/sessions/s1/submit", "")
			body := decodeError(w)
			So(body.Fields, ShouldContainKey, "attendance_total")
			So(body.Message, ShouldContainSubstring, "cannot exceed 23 working days")
		})
	})
}

func TestRateLimiter(t *testing.T) {
	Convey("Given a server limited to a burst of two", t, func() {
		mux := newMux(&mockDeps{}, api.WithRateLimit(0.001, 2))

		Convey("When a client sends three requests at once", func() {
			codes := make([]int, 0, 3)
			for range 3 {
				codes = append(codes, do(mux, "GET", "/sessions/s1", "").Code)
			}

			Convey("Then the third is rejected", func() {
				So(codes, ShouldResemble, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests})
			})

			Convey("And health checks are never limited", func() {
				So(do(mux, "GET", "/healthz", "").Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When clients differ", func() {
			rl := api.NewRateLimiter(0.001, 1)

			Convey("Then each has its own budget", func() {
				So(rl.Allow("10.0.0.1"), ShouldBeTrue)
				So(rl.Allow("10.0.0.1"), ShouldBeFalse)
				So(rl.Allow("10.0.0.2"), ShouldBeTrue)
			})
		})
	})
}

func TestServer_EndToEnd(t *testing.T) {
	Convey("Given the API over a running service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithLogger(logger.Nop()), service.WithWorkerCount(1), service.WithDebounce(time.Hour))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()
		mux := http.NewServeMux()
		api.NewServer(svc, svc, api.WithLogger(logger.Nop())).Register(ctx, mux)

		Convey("When a form is opened, edited, saved and submitted", func() {
			w := do(mux, "POST", "/sessions", `{"subject_key":"E1","period":"2024-03"}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			var view struct {
				ID string `json:"id"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &view), ShouldBeNil)

			So(do(mux, "PATCH", "/sessions/"+view.ID+"/fields", `{"attendance_wfo":20,"attendance_wfh":3}`).Code, ShouldEqual, http.StatusOK)
			w = do(mux, "POST", "/sessions/"+view.ID+"/save", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"phase":"clean"`)

			Convey("Then the submission succeeds", func() {
				w := do(mux, "POST", "/sessions/"+view.ID+"/submit", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"subject_key":"E1"`)

				w = do(mux, "GET", "/months/E1?year=2024", "")
				So(w.Body.String(), ShouldContainSubstring, `"state":"completed"`)
			})

			Convey("Then over-reported attendance is refused with 422", func() {
				So(do(mux, "PATCH", "/sessions/"+view.ID+"/fields", `{"attendance_wfh":10}`).Code, ShouldEqual, http.StatusOK)
				w := do(mux, "POST", "/sessions/"+view.ID+"/submit", "")
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				So(decodeError(w).Fields, ShouldContainKey, workflow.FieldAttendance)
			})
		})

		Convey("When three months of performance metrics are stored", func() {
			for month, kpi := range map[string]int{"2024-01": 5, "2024-02": 6, "2024-03": 8} {
				body := fmt.Sprintf(`{"values":{"kpi_score":%d}}`, kpi)
				So(do(mux, "PUT", "/metrics/E1/"+month, body).Code, ShouldEqual, http.StatusAccepted)
			}

			Convey("Then the history lists them oldest first with changes", func() {
				w := do(mux, "GET", "/history/E1/2024-03?months=3", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var report service.HistoryReport
				So(json.Unmarshal(w.Body.Bytes(), &report), ShouldBeNil)
				So(report.Points, ShouldHaveLength, 3)
				So(report.From, ShouldEqual, period.MustParse("2024-01"))
				So(report.Points[0].Change, ShouldBeNil)
				So(report.Points[2].Score.Total, ShouldAlmostEqual, 80, 1e-9)
				So(report.Points[2].Change.Delta, ShouldAlmostEqual, 20, 1e-9)

				So(do(mux, "GET", "/history/E1/2024-03?months=99", "").Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When an unknown session is used", func() {
			w := do(mux, "GET", "/sessions/nope", "")

			Convey("Then it is a 404", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}
