package questions

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ibpractice/backend/internal/models"
)

// Registry maps subject keys to their question banks.
type Registry struct {
	stores map[string]*Store
	info   map[string]models.SubjectInfo
}

func NewRegistry() *Registry {
	return &Registry{
		stores: make(map[string]*Store),
		info:   make(map[string]models.SubjectInfo),
	}
}

func (r *Registry) Add(key, name string, store *Store) {
	r.stores[key] = store
	r.info[key] = models.SubjectInfo{Key: key, Name: name}
}

// Subjects lists the registered subjects sorted by key.
func (r *Registry) Subjects() []models.SubjectInfo {
	out := make([]models.SubjectInfo, 0, len(r.info))
	for _, s := range r.info {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (r *Registry) Has(subject string) bool {
	_, ok := r.stores[subject]
	return ok
}

func (r *Registry) Store(subject string) (*Store, error) {
	s, ok := r.stores[subject]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownSubject, subject)
	}
	return s, nil
}

// CountValid returns how many questions of subject pass the validity
// filter. This is the denominator of the progress ratio.
func (r *Registry) CountValid(ctx context.Context, subject string) (int, error) {
	s, err := r.Store(subject)
	if err != nil {
		return 0, err
	}
	refs, err := s.Refs(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, ref := range refs {
		if IsValid(ref.ReferenceCode, ref.Paper) {
			n++
		}
	}
	return n, nil
}

func (r *Registry) LookupRefs(ctx context.Context, subject string, ids []int64) (map[int64]models.QuestionRef, error) {
	s, err := r.Store(subject)
	if err != nil {
		return nil, err
	}
	return s.RefsByID(ctx, ids)
}

func (r *Registry) Close() error {
	var errs []error
	for _, s := range r.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
