package questions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/ibpractice/backend/internal/logger"
	"github.com/ibpractice/backend/internal/middleware"
	"github.com/ibpractice/backend/internal/models"
	"github.com/ibpractice/backend/internal/session"
)

type handlerFixture struct {
	router   *mux.Router
	progress *fakeProgress
	sessions *session.Manager
	sid      string
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	progress := newFakeProgress()
	svc := newTestService(t, progress)
	sessions := session.NewManager(time.Hour)
	h := NewHandler(svc, progress, sessions, logger.Nop())

	sc := sessions.Start(1)
	identify := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithIdentity(r.Context(), 1, sc.ID)))
		})
	}

	r := mux.NewRouter()
	r.Use(identify)
	r.HandleFunc("/subjects", h.ListSubjects).Methods("GET")
	s := r.PathPrefix("/subjects/{subject}").Subrouter()
	s.HandleFunc("/papers", h.ListPapers).Methods("GET")
	s.HandleFunc("/syllabus", h.GetSyllabus).Methods("GET")
	s.HandleFunc("/syllabus/path", h.SelectionPath).Methods("POST")
	s.HandleFunc("/question", h.CurrentQuestion).Methods("GET")
	s.HandleFunc("/question/next", h.NextQuestion).Methods("POST")
	s.HandleFunc("/questions/{id}", h.GetQuestion).Methods("GET")
	s.HandleFunc("/questions/{id}/outcome", h.RecordOutcome).Methods("POST")
	s.HandleFunc("/questions/{id}/lacking-context", h.MarkLackingContext).Methods("POST")

	return &handlerFixture{router: r, progress: progress, sessions: sessions, sid: sc.ID}
}

func (f *handlerFixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeSelection(t *testing.T, rec *httptest.ResponseRecorder) models.SelectionResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp models.SelectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandler_CurrentQuestionIsCached(t *testing.T) {
	f := newHandlerFixture(t)

	first := decodeSelection(t, f.do(t, "GET", "/subjects/chemistry/question?paper=1A", ""))
	require.NotNil(t, first.Question)
	require.Equal(t, models.PaperFilter("1A"), first.Filter)

	for i := 0; i < 5; i++ {
		again := decodeSelection(t, f.do(t, "GET", "/subjects/chemistry/question?paper=1A", ""))
		require.Equal(t, first.Question.ID, again.Question.ID)
	}

	sc, err := f.sessions.Get(f.sid)
	require.NoError(t, err)
	require.Equal(t, "chemistry", sc.Subject)
	require.Equal(t, first.Question.ID, sc.Selection.ID)
}

func TestHandler_FilterChangeClearsSelection(t *testing.T) {
	f := newHandlerFixture(t)

	decodeSelection(t, f.do(t, "GET", "/subjects/chemistry/question?paper=2", ""))
	resp := decodeSelection(t, f.do(t, "GET", "/subjects/chemistry/question?mode=syllabus&syllabus=Stoichiometry%20%C2%BB%20Gases", ""))
	require.Equal(t, int64(2), resp.Question.ID)
	require.Equal(t, models.ModeSyllabus, resp.Filter.Mode)
}

func TestHandler_OutcomeServesNextUntilExhausted(t *testing.T) {
	f := newHandlerFixture(t)

	cur := decodeSelection(t, f.do(t, "GET", "/subjects/chemistry/question?paper=1A", ""))
	served := map[int64]bool{cur.Question.ID: true}

	next := decodeSelection(t, f.do(t, "POST", "/subjects/chemistry/questions/"+strconv.FormatInt(cur.Question.ID, 10)+"/outcome", `{"outcome":"correct"}`))
	require.NotNil(t, next.Question)
	require.False(t, served[next.Question.ID])

	last := decodeSelection(t, f.do(t, "POST", "/subjects/chemistry/questions/"+strconv.FormatInt(next.Question.ID, 10)+"/lacking-context", ""))
	require.Nil(t, last.Question)
	require.Equal(t, models.ExhaustedMessage, last.Message)
	require.Equal(t, []models.Outcome{models.OutcomeCorrect}, f.progress.outcomes)

	sc, err := f.sessions.Get(f.sid)
	require.NoError(t, err)
	require.Nil(t, sc.Selection)
}

func TestHandler_CachedQuestionReviewedInAnotherSession(t *testing.T) {
	f := newHandlerFixture(t)

	cur := decodeSelection(t, f.do(t, "GET", "/subjects/chemistry/question?paper=1A", ""))
	require.NotNil(t, cur.Question)

	// The same user answers it from a second login.
	require.NoError(t, f.progress.RecordOutcome(context.Background(), "chemistry", cur.Question.ID, 1, models.OutcomeCorrect))

	again := decodeSelection(t, f.do(t, "GET", "/subjects/chemistry/question?paper=1A", ""))
	require.NotNil(t, again.Question)
	require.NotEqual(t, cur.Question.ID, again.Question.ID)

	sc, err := f.sessions.Get(f.sid)
	require.NoError(t, err)
	require.Equal(t, again.Question.ID, sc.Selection.ID)

	require.NoError(t, f.progress.MarkLackingContext(context.Background(), "chemistry", again.Question.ID, 1))
	last := decodeSelection(t, f.do(t, "GET", "/subjects/chemistry/question?paper=1A", ""))
	require.Nil(t, last.Question)
	require.Equal(t, models.ExhaustedMessage, last.Message)
}

func TestHandler_RecordOutcomeValidation(t *testing.T) {
	f := newHandlerFixture(t)

	tests := []struct {
		name   string
		target string
		body   string
		status int
	}{
		{"bad outcome", "/subjects/chemistry/questions/1/outcome", `{"outcome":"great"}`, http.StatusBadRequest},
		{"bad body", "/subjects/chemistry/questions/1/outcome", `{`, http.StatusBadRequest},
		{"bad id", "/subjects/chemistry/questions/abc/outcome", `{"outcome":"correct"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, "POST", tt.target, tt.body)
			require.Equal(t, tt.status, rec.Code)
		})
	}
	require.Empty(t, f.progress.outcomes)
}

func TestHandler_UnknownSubject(t *testing.T) {
	f := newHandlerFixture(t)

	for _, target := range []string{"/subjects/biology/question", "/subjects/biology/papers", "/subjects/biology/syllabus"} {
		rec := f.do(t, "GET", target, "")
		require.Equal(t, http.StatusNotFound, rec.Code, target)
	}
}

func TestHandler_GetQuestion(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, "GET", "/subjects/chemistry/questions/4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var q models.Question
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	require.Equal(t, "22M.2.HL.TZ2.b", q.ReferenceCode)

	rec = f.do(t, "GET", "/subjects/chemistry/questions/404", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_SelectionPath(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, "POST", "/subjects/chemistry/syllabus/path", `{"picks":["Energetics"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp selectionPathResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Energetics » Enthalpy » Hess", resp.Path)
	require.Len(t, resp.Levels, 3)
}

func TestHandler_Subjects(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, "GET", "/subjects", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[{"key":"chemistry","name":"Chemistry"}]`, rec.Body.String())
}

func TestFilterFromQuery(t *testing.T) {
	tests := []struct {
		query string
		want  models.Filter
	}{
		{"", models.RandomFilter()},
		{"paper=1A", models.PaperFilter("1A")},
		{"syllabus=A", models.SyllabusFilter("A")},
		{"mode=random&paper=1A", models.RandomFilter()},
		{"mode=syllabus&paper=1A&syllabus=B", models.SyllabusFilter("B")},
	}

	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/?"+tt.query, nil)
		if got := filterFromQuery(r); got != tt.want {
			t.Errorf("filterFromQuery(%q) = %+v, want %+v", tt.query, got, tt.want)
		}
	}
}
