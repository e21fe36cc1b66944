package progress

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ibpractice/backend/internal/logger"
	"github.com/ibpractice/backend/internal/middleware"
	"github.com/ibpractice/backend/internal/models"
)

// SelectionClearer drops the question cached in a session.
type SelectionClearer interface {
	ClearSelection(sessionID string) error
}

type Handler struct {
	service      *Service
	sessions     SelectionClearer
	historyLimit int
	log          *logger.Logger
}

func NewHandler(service *Service, sessions SelectionClearer, historyLimit int, log *logger.Logger) *Handler {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Handler{service: service, sessions: sessions, historyLimit: historyLimit, log: log}
}

func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	subject := mux.Vars(r)["subject"]
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	counts, err := h.service.GetProgressCounts(r.Context(), subject, userID)
	if err != nil {
		h.writeError(w, err, "Failed to load progress")
		return
	}
	writeJSON(w, http.StatusOK, models.ProgressResponse{
		Reviewed: counts.Reviewed,
		Total:    counts.Total,
		Ratio:    counts.Ratio(),
	})
}

func (h *Handler) ResetProgress(w http.ResponseWriter, r *http.Request) {
	subject := mux.Vars(r)["subject"]
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	if err := h.service.ResetProgress(r.Context(), subject, userID); err != nil {
		h.writeError(w, err, "Failed to reset progress")
		return
	}
	if sid, ok := middleware.SessionID(r.Context()); ok {
		_ = h.sessions.ClearSelection(sid)
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "Progress has been reset."})
}

func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	subject := mux.Vars(r)["subject"]
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	totals, err := h.service.GetOutcomeTotals(r.Context(), subject, userID)
	if err != nil {
		h.writeError(w, err, "Failed to load analytics")
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	subject := mux.Vars(r)["subject"]
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	limit := h.historyLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	entries, err := h.service.GetRecentHistory(r.Context(), subject, userID, limit)
	if err != nil {
		h.writeError(w, err, "Failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, models.HistoryResponse{Entries: entries, Limit: limit})
}

func (h *Handler) RemoveFromHistory(w http.ResponseWriter, r *http.Request) {
	subject := mux.Vars(r)["subject"]
	questionID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid question ID"})
		return
	}
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	if err := h.service.RemoveFromHistory(r.Context(), subject, questionID, userID); err != nil {
		h.writeError(w, err, "Failed to remove question")
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "Question removed from history."})
}

func (h *Handler) writeError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, models.ErrUnknownSubject) {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Unknown subject"})
		return
	}
	h.log.Error(msg, "error", err)
	writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
