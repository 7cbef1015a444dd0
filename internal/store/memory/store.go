// Package memory provides an in-memory config Store implementation.
// Intended for testing; configuration is not persisted across restarts.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"strata/internal/policy"
	"strata/internal/store"
	"strata/internal/tier"
)

// Store is an in-memory store.Store implementation.
type Store struct {
	mu        sync.RWMutex
	policies  map[uuid.UUID]policy.Policy
	profiles  map[string]tier.ThresholdProfile
	templates map[string]tier.Template
	datasets  map[string]store.Dataset
}

var _ store.Store = (*Store)(nil)

// NewStore creates a new in-memory config store.
func NewStore() *Store {
	return &Store{
		policies:  make(map[uuid.UUID]policy.Policy),
		profiles:  make(map[string]tier.ThresholdProfile),
		templates: make(map[string]tier.Template),
		datasets:  make(map[string]store.Dataset),
	}
}

func (s *Store) GetPolicy(ctx context.Context, id uuid.UUID) (*policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *Store) ListPolicies(ctx context.Context) ([]policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]policy.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) PutPolicy(ctx context.Context, p policy.Policy) error {
	if err := store.ValidatePolicyWrite(ctx, s, p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.ID] = p
	return nil
}

func (s *Store) DeletePolicy(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.policies, id)
	return nil
}

func (s *Store) GetProfile(ctx context.Context, name string) (*tier.ThresholdProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[name]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]tier.ThresholdProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tier.ThresholdProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) PutProfile(ctx context.Context, p tier.ThresholdProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.Name] = p
	return nil
}

func (s *Store) DeleteProfile(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, name)
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, name string) (*tier.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[name]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]tier.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tier.Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) PutTemplate(ctx context.Context, t tier.Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.Name] = t
	return nil
}

func (s *Store) DeleteTemplate(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.templates, name)
	return nil
}

func (s *Store) GetDataset(ctx context.Context, name string) (*store.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.datasets[name]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *Store) ListDatasets(ctx context.Context) ([]store.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Dataset, 0, len(s.datasets))
	for _, d := range s.datasets {
		out = append(out, d)
	}
	return out, nil
}

func (s *Store) PutDataset(ctx context.Context, d store.Dataset) error {
	if err := store.ValidateDatasetWrite(ctx, s, d); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[d.Name] = d
	return nil
}

func (s *Store) DeleteDataset(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.datasets, name)
	return nil
}

func (s *Store) Close() error { return nil }
