package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ibpractice/backend/internal/models"
)

type contextKey string

const (
	userIDKey    contextKey = "user_id"
	sessionIDKey contextKey = "session_id"
)

// TokenParser validates a bearer token and returns its subject.
type TokenParser interface {
	Parse(token string) (userID int64, sessionID string, err error)
}

// SessionChecker reports whether a session is still open for the user.
type SessionChecker interface {
	Alive(sessionID string, userID int64) bool
}

// Auth rejects requests without a valid token for a live session and
// stores the caller's identity in the request context.
func Auth(tokens TokenParser, sessions SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				unauthorized(w, "Authentication required")
				return
			}

			userID, sid, err := tokens.Parse(raw)
			if err != nil {
				unauthorized(w, "Invalid or expired token")
				return
			}
			if !sessions.Alive(sid, userID) {
				unauthorized(w, "Session has ended, please log in again")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), userID, sid)))
		})
	}
}

// WithIdentity returns ctx carrying the authenticated user and session.
func WithIdentity(ctx context.Context, userID int64, sessionID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// UserID extracts the authenticated user ID from the request context.
func UserID(ctx context.Context) (int64, bool) {
	uid, ok := ctx.Value(userIDKey).(int64)
	return uid, ok
}

func SessionID(ctx context.Context) (string, bool) {
	sid, ok := ctx.Value(sessionIDKey).(string)
	return sid, ok
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: msg})
}
