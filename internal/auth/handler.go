package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"github.com/ibpractice/backend/internal/logger"
	"github.com/ibpractice/backend/internal/middleware"
	"github.com/ibpractice/backend/internal/models"
	"github.com/ibpractice/backend/internal/session"
)

const minPasswordLength = 8

type Handler struct {
	db       *sqlx.DB
	tokens   *Tokens
	sessions *session.Manager
	log      *logger.Logger
}

func NewHandler(db *sqlx.DB, tokens *Tokens, sessions *session.Manager, log *logger.Logger) *Handler {
	return &Handler{db: db, tokens: tokens, sessions: sessions, log: log}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	req.Username = strings.TrimSpace(req.Username)

	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Username and password are required"})
		return
	}
	if len(req.Password) < minPasswordLength {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Password must be at least 8 characters"})
		return
	}
	if req.Password != req.ConfirmPassword {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Passwords do not match"})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
		return
	}

	user, err := h.createUser(r.Context(), req.Username, string(hashedPassword))
	if errors.Is(err, models.ErrUsernameTaken) {
		writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: "Username is already taken."})
		return
	}
	if err != nil {
		h.log.Error("create user failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to create account"})
		return
	}

	h.respondWithSession(w, http.StatusCreated, *user)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	req.Username = strings.TrimSpace(req.Username)

	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Username and password are required"})
		return
	}

	var user models.User
	err := h.db.GetContext(r.Context(), &user, h.db.Rebind(
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`), req.Username)
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid username or password"})
		return
	}
	if err != nil {
		h.log.Error("load user failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid username or password"})
		return
	}

	h.respondWithSession(w, http.StatusOK, user)
}

func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	var user models.User
	err := h.db.GetContext(r.Context(), &user, h.db.Rebind(
		`SELECT id, username, created_at FROM users WHERE id = ?`), userID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "User not found"})
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Logout ends the session, dropping its subject, filter and selection.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if sid, ok := middleware.SessionID(r.Context()); ok {
		h.sessions.End(sid)
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "Logged out"})
}

func (h *Handler) createUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	user := models.User{Username: username, CreatedAt: time.Now().UTC()}
	err := h.db.QueryRowxContext(ctx, h.db.Rebind(
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?) RETURNING id`),
		username, passwordHash, user.CreatedAt,
	).Scan(&user.ID)
	if isUniqueViolation(err) {
		return nil, models.ErrUsernameTaken
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (h *Handler) respondWithSession(w http.ResponseWriter, status int, user models.User) {
	sc := h.sessions.Start(user.ID)
	token, err := h.tokens.Issue(user.ID, sc.ID)
	if err != nil {
		h.sessions.End(sc.ID)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to generate token"})
		return
	}
	writeJSON(w, status, models.AuthResponse{Token: token, User: user})
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
