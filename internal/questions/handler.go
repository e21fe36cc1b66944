package questions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ibpractice/backend/internal/logger"
	"github.com/ibpractice/backend/internal/middleware"
	"github.com/ibpractice/backend/internal/models"
	"github.com/ibpractice/backend/internal/session"
	"github.com/ibpractice/backend/internal/syllabus"
)

// OutcomeRecorder writes review outcomes. The progress tracker satisfies it.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, subject string, questionID, userID int64, outcome models.Outcome) error
	MarkLackingContext(ctx context.Context, subject string, questionID, userID int64) error
}

type Handler struct {
	service  *Service
	recorder OutcomeRecorder
	sessions *session.Manager
	log      *logger.Logger
}

func NewHandler(service *Service, recorder OutcomeRecorder, sessions *session.Manager, log *logger.Logger) *Handler {
	return &Handler{service: service, recorder: recorder, sessions: sessions, log: log}
}

type selectionPathRequest struct {
	Picks []string `json:"picks"`
}

type selectionPathResponse struct {
	Path   string           `json:"path"`
	Levels []syllabus.Level `json:"levels"`
}

func (h *Handler) ListSubjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Subjects())
}

func (h *Handler) ListPapers(w http.ResponseWriter, r *http.Request) {
	subject := mux.Vars(r)["subject"]
	papers, err := h.service.Papers(r.Context(), subject)
	if err != nil {
		h.writeError(w, err, "Failed to load papers")
		return
	}
	if papers == nil {
		papers = []string{}
	}
	writeJSON(w, http.StatusOK, papers)
}

func (h *Handler) GetSyllabus(w http.ResponseWriter, r *http.Request) {
	subject := mux.Vars(r)["subject"]
	tree, err := h.service.Hierarchy(r.Context(), subject)
	if err != nil {
		h.writeError(w, err, "Failed to load syllabus")
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (h *Handler) SelectionPath(w http.ResponseWriter, r *http.Request) {
	subject := mux.Vars(r)["subject"]

	var req selectionPathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	path, levels, err := h.service.SelectionPath(r.Context(), subject, req.Picks)
	if err != nil {
		h.writeError(w, err, "Failed to load syllabus")
		return
	}

	if levels == nil {
		levels = []syllabus.Level{}
	}
	writeJSON(w, http.StatusOK, selectionPathResponse{Path: path, Levels: levels})
}

// ── Practice ────────────────────────────────────────────

// CurrentQuestion returns the question on screen for the session, selecting
// one when the subject or filter changed since the last call or the cached
// question has been reviewed elsewhere.
func (h *Handler) CurrentQuestion(w http.ResponseWriter, r *http.Request) {
	h.serveSelection(w, r, false)
}

// NextQuestion discards the cached selection and selects again.
func (h *Handler) NextQuestion(w http.ResponseWriter, r *http.Request) {
	h.serveSelection(w, r, true)
}

func (h *Handler) serveSelection(w http.ResponseWriter, r *http.Request, fresh bool) {
	subject := mux.Vars(r)["subject"]
	userID, sid, ok := identity(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	sc, err := h.sessions.Use(sid, subject, filterFromQuery(r))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Session expired"})
		return
	}
	if !fresh && sc.Selection != nil {
		open, err := h.service.Unreviewed(r.Context(), sc.Subject, userID, sc.Selection.ID)
		if err != nil {
			h.writeError(w, err, "Failed to select question")
			return
		}
		if open {
			writeJSON(w, http.StatusOK, models.SelectionResponse{Question: sc.Selection, Filter: sc.Filter})
			return
		}
	}

	h.selectAndRespond(w, r, sc, userID)
}

func (h *Handler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	subject := mux.Vars(r)["subject"]
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid question ID"})
		return
	}

	q, err := h.service.GetQuestion(r.Context(), subject, id)
	if err != nil {
		h.writeError(w, err, "Failed to load question")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// RecordOutcome stores the self-assessed outcome and serves the next question.
func (h *Handler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	var req models.OutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if !req.Outcome.Valid() {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "outcome must be 'correct', 'partially_correct', or 'incorrect'"})
		return
	}

	h.afterReview(w, r, func(ctx context.Context, subject string, questionID, userID int64) error {
		return h.recorder.RecordOutcome(ctx, subject, questionID, userID, req.Outcome)
	})
}

// MarkLackingContext hides the question from the pool and serves the next one.
func (h *Handler) MarkLackingContext(w http.ResponseWriter, r *http.Request) {
	h.afterReview(w, r, h.recorder.MarkLackingContext)
}

func (h *Handler) afterReview(w http.ResponseWriter, r *http.Request, write func(ctx context.Context, subject string, questionID, userID int64) error) {
	subject := mux.Vars(r)["subject"]
	questionID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid question ID"})
		return
	}
	userID, sid, ok := identity(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	if err := write(r.Context(), subject, questionID, userID); err != nil {
		h.writeError(w, err, "Failed to record progress")
		return
	}

	if err := h.sessions.ClearSelection(sid); err != nil {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Session expired"})
		return
	}
	sc, err := h.sessions.Get(sid)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Session expired"})
		return
	}
	if sc.Subject != subject {
		if sc, err = h.sessions.Use(sid, subject, models.RandomFilter()); err != nil {
			writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Session expired"})
			return
		}
	}

	h.selectAndRespond(w, r, sc, userID)
}

func (h *Handler) selectAndRespond(w http.ResponseWriter, r *http.Request, sc session.Context, userID int64) {
	q, err := h.service.SelectQuestion(r.Context(), sc.Subject, userID, sc.Filter)
	if err != nil {
		h.writeError(w, err, "Failed to select question")
		return
	}
	if q == nil {
		writeJSON(w, http.StatusOK, models.SelectionResponse{Filter: sc.Filter, Message: models.ExhaustedMessage})
		return
	}
	if err := h.sessions.SetSelection(sc.ID, q); err != nil {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Session expired"})
		return
	}
	writeJSON(w, http.StatusOK, models.SelectionResponse{Question: q, Filter: sc.Filter})
}

// ── Helpers ─────────────────────────────────────────────

// filterFromQuery reads mode, paper and syllabus. Without an explicit mode
// the first non-empty of paper and syllabus decides it.
func filterFromQuery(r *http.Request) models.Filter {
	q := r.URL.Query()
	paper := q.Get("paper")
	path := q.Get("syllabus")

	switch models.FilterMode(q.Get("mode")) {
	case models.ModePaper:
		return models.PaperFilter(paper)
	case models.ModeSyllabus:
		return models.SyllabusFilter(path)
	case models.ModeRandom:
		return models.RandomFilter()
	}
	switch {
	case paper != "":
		return models.PaperFilter(paper)
	case path != "":
		return models.SyllabusFilter(path)
	default:
		return models.RandomFilter()
	}
}

func identity(r *http.Request) (int64, string, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		return 0, "", false
	}
	sid, ok := middleware.SessionID(r.Context())
	if !ok {
		return 0, "", false
	}
	return userID, sid, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, models.ErrUnknownSubject):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Unknown subject"})
	case errors.Is(err, models.ErrQuestionNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Question not found"})
	case errors.Is(err, models.ErrInvalidOutcome):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid outcome"})
	default:
		h.log.Error(msg, "error", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: msg})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
