package questions

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/ibpractice/backend/internal/logger"
	"github.com/ibpractice/backend/internal/metrics"
	"github.com/ibpractice/backend/internal/models"
	"github.com/ibpractice/backend/internal/syllabus"
)

// ReviewedLister returns the ids a user has already reviewed in a subject.
type ReviewedLister interface {
	ReviewedIDs(ctx context.Context, subject string, userID int64) (map[int64]bool, error)
}

type Service struct {
	registry *Registry
	reviewed ReviewedLister
	log      *logger.Logger
	intn     func(n int) int
}

func NewService(registry *Registry, reviewed ReviewedLister, log *logger.Logger) *Service {
	return &Service{
		registry: registry,
		reviewed: reviewed,
		log:      log,
		intn:     rand.Intn,
	}
}

func (s *Service) Subjects() []models.SubjectInfo {
	return s.registry.Subjects()
}

// ── Selection ───────────────────────────────────────────

// SelectQuestion returns a question matching filter that userID has not
// reviewed in subject, chosen uniformly at random. It returns nil, nil when
// no such question exists.
func (s *Service) SelectQuestion(ctx context.Context, subject string, userID int64, filter models.Filter) (*models.Question, error) {
	store, err := s.registry.Store(subject)
	if err != nil {
		return nil, err
	}
	filter = filter.Normalize()

	if (filter.Mode == models.ModePaper && filter.Paper == "") ||
		(filter.Mode == models.ModeSyllabus && filter.SyllabusPath == "") {
		metrics.Selection(subject, string(filter.Mode), false)
		return nil, nil
	}

	candidates, err := store.Candidates(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	reviewed, err := s.reviewed.ReviewedIDs(ctx, subject, userID)
	if err != nil {
		return nil, fmt.Errorf("load reviewed: %w", err)
	}

	eligible := candidates[:0]
	for _, q := range candidates {
		if !reviewed[q.ID] {
			eligible = append(eligible, q)
		}
	}

	if len(eligible) == 0 {
		metrics.Selection(subject, string(filter.Mode), false)
		s.log.Debug("selection exhausted", "subject", subject, "user_id", userID, "mode", filter.Mode)
		return nil, nil
	}

	q := eligible[s.intn(len(eligible))]
	metrics.Selection(subject, string(filter.Mode), true)
	return &q, nil
}

// Unreviewed reports whether userID has still not reviewed questionID in
// subject. Another session of the same user may have reviewed it since it
// was selected.
func (s *Service) Unreviewed(ctx context.Context, subject string, userID, questionID int64) (bool, error) {
	reviewed, err := s.reviewed.ReviewedIDs(ctx, subject, userID)
	if err != nil {
		return false, fmt.Errorf("load reviewed: %w", err)
	}
	return !reviewed[questionID], nil
}

func (s *Service) GetQuestion(ctx context.Context, subject string, id int64) (*models.Question, error) {
	store, err := s.registry.Store(subject)
	if err != nil {
		return nil, err
	}
	return store.Get(ctx, id)
}

func (s *Service) Papers(ctx context.Context, subject string) ([]string, error) {
	store, err := s.registry.Store(subject)
	if err != nil {
		return nil, err
	}
	return store.Papers(ctx)
}

// ── Syllabus ────────────────────────────────────────────

func (s *Service) Hierarchy(ctx context.Context, subject string) (*syllabus.Node, error) {
	store, err := s.registry.Store(subject)
	if err != nil {
		return nil, err
	}
	links, err := store.SyllabusLinks(ctx)
	if err != nil {
		return nil, err
	}
	return syllabus.Build(links), nil
}

// SelectionPath builds the subject's hierarchy and walks it with picks.
func (s *Service) SelectionPath(ctx context.Context, subject string, picks []string) (string, []syllabus.Level, error) {
	tree, err := s.Hierarchy(ctx, subject)
	if err != nil {
		return "", nil, err
	}
	path, levels := syllabus.SelectionPath(tree, picks)
	return path, levels, nil
}
