package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ibpractice/backend/internal/models"
)

// Store persists review records in the user_progress table. Every
// mutation runs in its own transaction.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// delta is what one write adds to a record's counters.
type delta struct {
	correct, partial, incorrect int
}

func outcomeDelta(o models.Outcome) delta {
	switch o {
	case models.OutcomeCorrect:
		return delta{correct: 1}
	case models.OutcomePartiallyCorrect:
		return delta{partial: 1}
	case models.OutcomeIncorrect:
		return delta{incorrect: 1}
	}
	return delta{}
}

// ── Writes ──────────────────────────────────────────────

// upsert marks (subject, questionID, userID) reviewed and lacking context,
// adds d to its counters and stamps it with at.
func (s *Store) upsert(ctx context.Context, subject string, questionID, userID int64, d delta, at time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, tx.Rebind(
		`INSERT INTO user_progress
		 (subject, question_id, user_id, correct_count, partially_correct_count, incorrect_count, reviewed, lacking_context, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, TRUE, TRUE, ?)
		 ON CONFLICT (subject, question_id, user_id) DO UPDATE SET
		   correct_count = user_progress.correct_count + excluded.correct_count,
		   partially_correct_count = user_progress.partially_correct_count + excluded.partially_correct_count,
		   incorrect_count = user_progress.incorrect_count + excluded.incorrect_count,
		   reviewed = TRUE,
		   lacking_context = TRUE,
		   updated_at = excluded.updated_at`),
		subject, questionID, userID, d.correct, d.partial, d.incorrect, at)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) UpsertOutcome(ctx context.Context, subject string, questionID, userID int64, outcome models.Outcome, at time.Time) error {
	return s.upsert(ctx, subject, questionID, userID, outcomeDelta(outcome), at)
}

func (s *Store) UpsertLackingContext(ctx context.Context, subject string, questionID, userID int64, at time.Time) error {
	return s.upsert(ctx, subject, questionID, userID, delta{}, at)
}

// DeleteForUser removes every record of userID in subject and returns how
// many were removed.
func (s *Store) DeleteForUser(ctx context.Context, subject string, userID int64) (int64, error) {
	return s.delete(ctx,
		`DELETE FROM user_progress WHERE subject = ? AND user_id = ?`,
		subject, userID)
}

func (s *Store) DeleteOne(ctx context.Context, subject string, questionID, userID int64) (int64, error) {
	return s.delete(ctx,
		`DELETE FROM user_progress WHERE subject = ? AND question_id = ? AND user_id = ?`,
		subject, questionID, userID)
}

func (s *Store) delete(ctx context.Context, query string, args ...interface{}) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("delete progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// ── Reads ───────────────────────────────────────────────

// Get returns one record, or nil when the user has none for the question.
func (s *Store) Get(ctx context.Context, subject string, questionID, userID int64) (*models.ProgressRecord, error) {
	var rec models.ProgressRecord
	err := s.db.GetContext(ctx, &rec, s.db.Rebind(
		`SELECT subject, question_id, user_id, correct_count, partially_correct_count, incorrect_count,
		        reviewed, lacking_context, updated_at
		 FROM user_progress WHERE subject = ? AND question_id = ? AND user_id = ?`),
		subject, questionID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return &rec, nil
}

func (s *Store) ReviewedIDs(ctx context.Context, subject string, userID int64) (map[int64]bool, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, s.db.Rebind(
		`SELECT question_id FROM user_progress WHERE subject = ? AND user_id = ? AND reviewed = TRUE`),
		subject, userID)
	if err != nil {
		return nil, fmt.Errorf("select reviewed ids: %w", err)
	}
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// CountReviewed counts records that are reviewed and not lacking context.
func (s *Store) CountReviewed(ctx context.Context, subject string, userID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(
		`SELECT COUNT(*) FROM user_progress
		 WHERE subject = ? AND user_id = ? AND reviewed = TRUE AND lacking_context = FALSE`),
		subject, userID)
	if err != nil {
		return 0, fmt.Errorf("count reviewed: %w", err)
	}
	return n, nil
}

func (s *Store) SumOutcomes(ctx context.Context, subject string, userID int64) (models.OutcomeTotals, error) {
	var totals models.OutcomeTotals
	err := s.db.QueryRowContext(ctx, s.db.Rebind(
		`SELECT COALESCE(SUM(correct_count), 0),
		        COALESCE(SUM(partially_correct_count), 0),
		        COALESCE(SUM(incorrect_count), 0)
		 FROM user_progress WHERE subject = ? AND user_id = ?`),
		subject, userID).Scan(&totals.Correct, &totals.PartiallyCorrect, &totals.Incorrect)
	if err != nil {
		return models.OutcomeTotals{}, fmt.Errorf("sum outcomes: %w", err)
	}
	return totals, nil
}

// Recent returns up to limit reviewed records, newest first. Ties on
// updated_at are broken by question id so the order is stable.
func (s *Store) Recent(ctx context.Context, subject string, userID int64, limit int) ([]models.ProgressRecord, error) {
	var recs []models.ProgressRecord
	err := s.db.SelectContext(ctx, &recs, s.db.Rebind(
		`SELECT subject, question_id, user_id, correct_count, partially_correct_count, incorrect_count,
		        reviewed, lacking_context, updated_at
		 FROM user_progress
		 WHERE subject = ? AND user_id = ? AND reviewed = TRUE
		 ORDER BY updated_at DESC, question_id DESC
		 LIMIT ?`),
		subject, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent progress: %w", err)
	}
	return recs, nil
}
