package progress

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ibpractice/backend/internal/database/dbtest"
	"github.com/ibpractice/backend/internal/logger"
	"github.com/ibpractice/backend/internal/models"
)

type fakeCatalogue struct {
	refs map[string]map[int64]models.QuestionRef
}

func (c *fakeCatalogue) Has(subject string) bool {
	_, ok := c.refs[subject]
	return ok
}

func (c *fakeCatalogue) CountValid(ctx context.Context, subject string) (int, error) {
	refs, ok := c.refs[subject]
	if !ok {
		return 0, models.ErrUnknownSubject
	}
	n := 0
	for _, r := range refs {
		if r.Paper == models.ExemptPaper || r.ReferenceCode != "" {
			n++
		}
	}
	return n, nil
}

func (c *fakeCatalogue) LookupRefs(ctx context.Context, subject string, ids []int64) (map[int64]models.QuestionRef, error) {
	refs, ok := c.refs[subject]
	if !ok {
		return nil, models.ErrUnknownSubject
	}
	out := make(map[int64]models.QuestionRef)
	for _, id := range ids {
		if r, ok := refs[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

type memCache struct {
	counts      map[string]models.ProgressCounts
	invalidated int
}

func newMemCache() *memCache {
	return &memCache{counts: make(map[string]models.ProgressCounts)}
}

func (m *memCache) key(subject string, userID int64) string {
	return fmt.Sprintf("%s:%d", subject, userID)
}

func (m *memCache) GetCounts(ctx context.Context, subject string, userID int64) (models.ProgressCounts, bool, error) {
	c, ok := m.counts[m.key(subject, userID)]
	return c, ok, nil
}

func (m *memCache) SetCounts(ctx context.Context, subject string, userID int64, counts models.ProgressCounts) error {
	m.counts[m.key(subject, userID)] = counts
	return nil
}

func (m *memCache) Invalidate(ctx context.Context, subject string, userID int64) error {
	delete(m.counts, m.key(subject, userID))
	m.invalidated++
	return nil
}

type fixture struct {
	svc   *Service
	alice int64
	bob   int64
}

func newFixture(t *testing.T) *fixture {
	db := dbtest.NewProgressDB(t)
	catalogue := &fakeCatalogue{refs: map[string]map[int64]models.QuestionRef{
		"chemistry": {
			1: {ID: 1, ReferenceCode: "c.1", Paper: "1A"},
			2: {ID: 2, ReferenceCode: "c.2", Paper: "1A"},
			3: {ID: 3, ReferenceCode: "c.3", Paper: "2"},
			4: {ID: 4, ReferenceCode: "c.4", Paper: "2"},
		},
		"physics": {},
	}}

	svc := NewService(NewStore(db), catalogue, logger.Nop())
	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	return &fixture{
		svc:   svc,
		alice: dbtest.CreateUser(t, db, "alice"),
		bob:   dbtest.CreateUser(t, db, "bob"),
	}
}

func TestRecordOutcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RecordOutcome(ctx, "chemistry", 1, f.alice, models.OutcomeCorrect))
	require.NoError(t, f.svc.RecordOutcome(ctx, "chemistry", 2, f.alice, models.OutcomePartiallyCorrect))
	require.NoError(t, f.svc.RecordOutcome(ctx, "chemistry", 2, f.alice, models.OutcomeIncorrect))

	ids, err := f.svc.ReviewedIDs(ctx, "chemistry", f.alice)
	require.NoError(t, err)
	require.Equal(t, map[int64]bool{1: true, 2: true}, ids)

	totals, err := f.svc.GetOutcomeTotals(ctx, "chemistry", f.alice)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeTotals{Correct: 1, PartiallyCorrect: 1, Incorrect: 1}, totals)

	// Outcomes are flagged lacking context, so they stay out of the numerator.
	counts, err := f.svc.GetProgressCounts(ctx, "chemistry", f.alice)
	require.NoError(t, err)
	require.Equal(t, models.ProgressCounts{Reviewed: 0, Total: 4}, counts)
}

func TestRecordOutcome_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.RecordOutcome(ctx, "chemistry", 1, f.alice, models.Outcome("great"))
	require.ErrorIs(t, err, models.ErrInvalidOutcome)

	err = f.svc.RecordOutcome(ctx, "biology", 1, f.alice, models.OutcomeCorrect)
	require.ErrorIs(t, err, models.ErrUnknownSubject)

	err = f.svc.MarkLackingContext(ctx, "biology", 1, f.alice)
	require.ErrorIs(t, err, models.ErrUnknownSubject)
}

func TestMarkLackingContext_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.MarkLackingContext(ctx, "chemistry", 3, f.alice))

	counts, err := f.svc.GetProgressCounts(ctx, "chemistry", f.alice)
	require.NoError(t, err)
	require.Zero(t, counts.Reviewed)

	ids, err := f.svc.ReviewedIDs(ctx, "chemistry", f.alice)
	require.NoError(t, err)
	require.True(t, ids[3])
}

func TestResetProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// No records yet: a no-op.
	require.NoError(t, f.svc.ResetProgress(ctx, "chemistry", f.alice))

	require.NoError(t, f.svc.RecordOutcome(ctx, "chemistry", 1, f.alice, models.OutcomeCorrect))
	require.NoError(t, f.svc.RecordOutcome(ctx, "chemistry", 1, f.bob, models.OutcomeCorrect))
	require.NoError(t, f.svc.ResetProgress(ctx, "chemistry", f.alice))
	require.NoError(t, f.svc.ResetProgress(ctx, "chemistry", f.alice))

	ids, err := f.svc.ReviewedIDs(ctx, "chemistry", f.alice)
	require.NoError(t, err)
	require.Empty(t, ids)

	ids, err = f.svc.ReviewedIDs(ctx, "chemistry", f.bob)
	require.NoError(t, err)
	require.Len(t, ids, 1)
}

func TestRemoveFromHistory_OnlyThatPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2} {
		require.NoError(t, f.svc.RecordOutcome(ctx, "chemistry", id, f.alice, models.OutcomeCorrect))
		require.NoError(t, f.svc.RecordOutcome(ctx, "chemistry", id, f.bob, models.OutcomeCorrect))
	}

	require.NoError(t, f.svc.RemoveFromHistory(ctx, "chemistry", 1, f.alice))

	ids, err := f.svc.ReviewedIDs(ctx, "chemistry", f.alice)
	require.NoError(t, err)
	require.Equal(t, map[int64]bool{2: true}, ids)

	ids, err = f.svc.ReviewedIDs(ctx, "chemistry", f.bob)
	require.NoError(t, err)
	require.Equal(t, map[int64]bool{1: true, 2: true}, ids)
}

func TestGetProgressCounts_ZeroTotal(t *testing.T) {
	f := newFixture(t)

	counts, err := f.svc.GetProgressCounts(context.Background(), "physics", f.alice)
	require.NoError(t, err)
	require.Zero(t, counts.Total)
	require.Zero(t, counts.Ratio())
}

func TestGetRecentHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range []int64{3, 1, 99, 2} {
		require.NoError(t, f.svc.RecordOutcome(ctx, "chemistry", id, f.alice, models.OutcomeIncorrect))
	}
	require.NoError(t, f.svc.RecordOutcome(ctx, "chemistry", 4, f.bob, models.OutcomeCorrect))

	entries, err := f.svc.GetRecentHistory(ctx, "chemistry", f.alice, 0)
	require.NoError(t, err)

	got := make([]int64, 0, len(entries))
	for i, e := range entries {
		got = append(got, e.QuestionID)
		if i > 0 {
			require.True(t, entries[i-1].UpdatedAt.After(e.UpdatedAt))
		}
	}
	// 99 is not in the bank and is dropped.
	require.Equal(t, []int64{2, 1, 3}, got)
	require.Equal(t, "c.2", entries[0].ReferenceCode)
	require.Equal(t, 1, entries[0].IncorrectCount)

	entries, err = f.svc.GetRecentHistory(ctx, "chemistry", f.alice, 2)
	require.NoError(t, err)
	// The limit applies before unresolved ids are dropped.
	require.Len(t, entries, 1)
	require.EqualValues(t, 2, entries[0].QuestionID)

	_, err = f.svc.GetRecentHistory(ctx, "biology", f.alice, 5)
	require.ErrorIs(t, err, models.ErrUnknownSubject)
}

func TestCountsCacheInvalidatedOnMutation(t *testing.T) {
	f := newFixture(t)
	cache := newMemCache()
	f.svc.SetCache(cache)
	ctx := context.Background()

	counts, err := f.svc.GetProgressCounts(ctx, "chemistry", f.alice)
	require.NoError(t, err)
	require.Equal(t, models.ProgressCounts{Total: 4}, counts)
	require.Contains(t, cache.counts, "chemistry:"+fmt.Sprint(f.alice))

	require.NoError(t, f.svc.MarkLackingContext(ctx, "chemistry", 1, f.alice))
	require.NoError(t, f.svc.RecordOutcome(ctx, "chemistry", 2, f.alice, models.OutcomeCorrect))
	require.NoError(t, f.svc.RemoveFromHistory(ctx, "chemistry", 2, f.alice))
	require.NoError(t, f.svc.ResetProgress(ctx, "chemistry", f.alice))
	require.Equal(t, 4, cache.invalidated)
	require.Empty(t, cache.counts)

	// A stale entry is served until the next mutation clears it.
	cache.counts["chemistry:"+fmt.Sprint(f.alice)] = models.ProgressCounts{Reviewed: 9, Total: 9}
	counts, err = f.svc.GetProgressCounts(ctx, "chemistry", f.alice)
	require.NoError(t, err)
	require.Equal(t, 9, counts.Reviewed)
}
