package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/ibpractice/backend/internal/auth"
	"github.com/ibpractice/backend/internal/cache"
	"github.com/ibpractice/backend/internal/config"
	"github.com/ibpractice/backend/internal/database"
	"github.com/ibpractice/backend/internal/logger"
	"github.com/ibpractice/backend/internal/metrics"
	"github.com/ibpractice/backend/internal/middleware"
	"github.com/ibpractice/backend/internal/progress"
	"github.com/ibpractice/backend/internal/questions"
	"github.com/ibpractice/backend/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", "error", err)
	}

	// Initialize progress store
	db, err := database.Connect(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := database.Migrate(db, cfg.Database.Driver); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	// Open one read-only bank per subject
	registry := questions.NewRegistry()
	defer registry.Close()
	for _, s := range cfg.Subjects {
		bank, err := database.OpenBank(s.Bank)
		if err != nil {
			log.Fatal("Failed to open question bank", "subject", s.Key, "error", err)
		}
		registry.Add(s.Key, s.Name, questions.NewStore(bank))
		log.Info("Question bank opened", "subject", s.Key, "bank", s.Bank)
	}

	// Initialize services
	reapCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	sessions := session.NewManager(cfg.Auth.TokenTTL)
	go sessions.Reap(reapCtx, 10*time.Minute)
	progressService := progress.NewService(progress.NewStore(db), registry, log.With("component", "progress"))
	questionService := questions.NewService(registry, progressService, log.With("component", "questions"))

	var progressCache *cache.Cache
	if cfg.Cache.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		c, err := cache.New(ctx, cfg.Cache.URL, cfg.Cache.TTL)
		cancel()
		if err != nil {
			log.Warn("Progress cache unavailable, continuing without it", "error", err)
		} else {
			defer c.Close()
			progressCache = c
			progressService.SetCache(c)
			log.Info("Progress cache enabled", "ttl", cfg.Cache.TTL)
		}
	}

	// Initialize handlers
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	authHandler := auth.NewHandler(db, tokens, sessions, log.With("component", "auth"))
	questionHandler := questions.NewHandler(questionService, progressService, sessions, log.With("component", "questions"))
	progressHandler := progress.NewHandler(progressService, sessions, cfg.HistoryLimit, log.With("component", "progress"))

	// Setup router
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.Auth(tokens, sessions))
	protected.HandleFunc("/auth/me", authHandler.GetCurrentUser).Methods("GET")
	protected.HandleFunc("/auth/logout", authHandler.Logout).Methods("POST")
	protected.HandleFunc("/subjects", questionHandler.ListSubjects).Methods("GET")

	// ── Subject routes ──────────────────────────────────────
	subject := protected.PathPrefix("/subjects/{subject}").Subrouter()
	subject.HandleFunc("/papers", questionHandler.ListPapers).Methods("GET")
	subject.HandleFunc("/syllabus", questionHandler.GetSyllabus).Methods("GET")
	subject.HandleFunc("/syllabus/path", questionHandler.SelectionPath).Methods("POST")
	subject.HandleFunc("/question", questionHandler.CurrentQuestion).Methods("GET")
	subject.HandleFunc("/question/next", questionHandler.NextQuestion).Methods("POST")
	subject.HandleFunc("/questions/{id}", questionHandler.GetQuestion).Methods("GET")
	subject.HandleFunc("/questions/{id}/outcome", questionHandler.RecordOutcome).Methods("POST")
	subject.HandleFunc("/questions/{id}/lacking-context", questionHandler.MarkLackingContext).Methods("POST")
	subject.HandleFunc("/progress", progressHandler.GetProgress).Methods("GET")
	subject.HandleFunc("/progress", progressHandler.ResetProgress).Methods("DELETE")
	subject.HandleFunc("/analytics", progressHandler.GetAnalytics).Methods("GET")
	subject.HandleFunc("/history", progressHandler.GetHistory).Methods("GET")
	subject.HandleFunc("/history/{id}", progressHandler.RemoveFromHistory).Methods("DELETE")

	// Health check
	var pinger healthPinger
	if progressCache != nil {
		pinger = progressCache
	}
	r.HandleFunc("/health", healthHandler(pinger, log)).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Graceful shutdown failed", "error", err)
	}
}

type healthPinger interface {
	HealthCheck(ctx context.Context) error
}

// healthHandler reports ok, or 503 when the progress cache is enabled but
// does not answer a ping.
func healthHandler(pinger healthPinger, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if pinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := pinger.HealthCheck(ctx); err != nil {
				log.Warn("Health check failed", "component", "cache", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"degraded","cache":"unreachable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}
}
