// Package progress tracks what each user has reviewed per subject and
// derives the completion ratio, outcome totals and recent history.
package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/ibpractice/backend/internal/logger"
	"github.com/ibpractice/backend/internal/metrics"
	"github.com/ibpractice/backend/internal/models"
)

// DefaultHistoryLimit is used when a caller asks for a non-positive limit.
const DefaultHistoryLimit = 30

// Catalogue answers questions about a subject's question bank.
type Catalogue interface {
	Has(subject string) bool
	CountValid(ctx context.Context, subject string) (int, error)
	LookupRefs(ctx context.Context, subject string, ids []int64) (map[int64]models.QuestionRef, error)
}

// CountsCache memoises progress counts per (subject, user).
type CountsCache interface {
	GetCounts(ctx context.Context, subject string, userID int64) (models.ProgressCounts, bool, error)
	SetCounts(ctx context.Context, subject string, userID int64, counts models.ProgressCounts) error
	Invalidate(ctx context.Context, subject string, userID int64) error
}

type Service struct {
	store     *Store
	catalogue Catalogue
	cache     CountsCache
	log       *logger.Logger
	now       func() time.Time
}

func NewService(store *Store, catalogue Catalogue, log *logger.Logger) *Service {
	return &Service{
		store:     store,
		catalogue: catalogue,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetCache enables the counts cache. A nil cache disables it.
func (s *Service) SetCache(c CountsCache) {
	s.cache = c
}

// ── Mutations ───────────────────────────────────────────

// RecordOutcome marks the question reviewed and adds one to the counter
// for outcome. The record is also flagged lacking context, which keeps it
// out of the completion numerator.
func (s *Service) RecordOutcome(ctx context.Context, subject string, questionID, userID int64, outcome models.Outcome) error {
	if !outcome.Valid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidOutcome, outcome)
	}
	if err := s.checkSubject(subject); err != nil {
		return err
	}
	if err := s.store.UpsertOutcome(ctx, subject, questionID, userID, outcome, s.now()); err != nil {
		return err
	}
	metrics.Outcome(subject, string(outcome))
	s.invalidate(ctx, subject, userID)
	return nil
}

// MarkLackingContext removes the question from the user's pool without
// counting it as completed.
func (s *Service) MarkLackingContext(ctx context.Context, subject string, questionID, userID int64) error {
	if err := s.checkSubject(subject); err != nil {
		return err
	}
	if err := s.store.UpsertLackingContext(ctx, subject, questionID, userID, s.now()); err != nil {
		return err
	}
	metrics.Outcome(subject, "lacking_context")
	s.invalidate(ctx, subject, userID)
	return nil
}

// ResetProgress deletes every record of the user in subject. It is a no-op
// when there are none.
func (s *Service) ResetProgress(ctx context.Context, subject string, userID int64) error {
	if err := s.checkSubject(subject); err != nil {
		return err
	}
	n, err := s.store.DeleteForUser(ctx, subject, userID)
	if err != nil {
		return err
	}
	metrics.Reset(subject)
	s.invalidate(ctx, subject, userID)
	s.log.Info("progress reset", "subject", subject, "user_id", userID, "removed", n)
	return nil
}

// RemoveFromHistory deletes the single record for questionID, putting the
// question back into every selection mode.
func (s *Service) RemoveFromHistory(ctx context.Context, subject string, questionID, userID int64) error {
	if err := s.checkSubject(subject); err != nil {
		return err
	}
	if _, err := s.store.DeleteOne(ctx, subject, questionID, userID); err != nil {
		return err
	}
	s.invalidate(ctx, subject, userID)
	return nil
}

// ── Queries ─────────────────────────────────────────────

func (s *Service) ReviewedIDs(ctx context.Context, subject string, userID int64) (map[int64]bool, error) {
	return s.store.ReviewedIDs(ctx, subject, userID)
}

// GetProgressCounts returns reviewed (excluding lacking context) over the
// number of valid questions in the bank.
func (s *Service) GetProgressCounts(ctx context.Context, subject string, userID int64) (models.ProgressCounts, error) {
	if s.cache != nil {
		counts, ok, err := s.cache.GetCounts(ctx, subject, userID)
		if err != nil {
			s.log.Warn("counts cache read failed", "subject", subject, "user_id", userID, "error", err)
		} else if ok {
			return counts, nil
		}
	}

	total, err := s.catalogue.CountValid(ctx, subject)
	if err != nil {
		return models.ProgressCounts{}, err
	}
	reviewed, err := s.store.CountReviewed(ctx, subject, userID)
	if err != nil {
		return models.ProgressCounts{}, err
	}
	counts := models.ProgressCounts{Reviewed: reviewed, Total: total}

	if s.cache != nil {
		if err := s.cache.SetCounts(ctx, subject, userID, counts); err != nil {
			s.log.Warn("counts cache write failed", "subject", subject, "user_id", userID, "error", err)
		}
	}
	return counts, nil
}

func (s *Service) GetOutcomeTotals(ctx context.Context, subject string, userID int64) (models.OutcomeTotals, error) {
	if err := s.checkSubject(subject); err != nil {
		return models.OutcomeTotals{}, err
	}
	return s.store.SumOutcomes(ctx, subject, userID)
}

// GetRecentHistory returns up to limit reviewed entries, newest first.
// Records whose question no longer exists in the bank are dropped.
func (s *Service) GetRecentHistory(ctx context.Context, subject string, userID int64, limit int) ([]models.HistoryEntry, error) {
	if err := s.checkSubject(subject); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	recs, err := s.store.Recent(ctx, subject, userID, limit)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.QuestionID)
	}
	refs, err := s.catalogue.LookupRefs(ctx, subject, ids)
	if err != nil {
		return nil, err
	}

	entries := make([]models.HistoryEntry, 0, len(recs))
	for _, r := range recs {
		ref, ok := refs[r.QuestionID]
		if !ok {
			continue
		}
		entries = append(entries, models.HistoryEntry{
			QuestionID:            r.QuestionID,
			ReferenceCode:         ref.ReferenceCode,
			Paper:                 ref.Paper,
			CorrectCount:          r.CorrectCount,
			PartiallyCorrectCount: r.PartiallyCorrectCount,
			IncorrectCount:        r.IncorrectCount,
			UpdatedAt:             r.UpdatedAt,
		})
	}
	return entries, nil
}

// ── Helpers ─────────────────────────────────────────────

// checkSubject rejects subjects without a bank.
func (s *Service) checkSubject(subject string) error {
	if !s.catalogue.Has(subject) {
		return fmt.Errorf("%w: %q", models.ErrUnknownSubject, subject)
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, subject string, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, subject, userID); err != nil {
		s.log.Error("counts cache invalidation failed", "subject", subject, "user_id", userID, "error", err)
	}
}
