// Package store provides persistence for the engine's declarative
// configuration: datasets, lifecycle policies, threshold profiles and tier
// templates. This is control-plane state, re-read by the engine on every
// pass; it is never on a hot path.
//
// Writes are validated synchronously. Rejecting a write with a specific,
// actionable error is always preferred over silently storing an unusable
// policy or template.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"strata/internal/policy"
	"strata/internal/tier"
)

// Dataset registers a dataset under lifecycle management and binds it to a
// tier template. Policies may only target registered datasets.
type Dataset struct {
	Name string `json:"name"`

	// Template names the tier template governing this dataset's layout and
	// MOVE targets.
	Template string `json:"template"`

	// DateColumn is the partitioning column chosen at table-creation time.
	// Informational here; the selection itself happens in the schema front
	// end.
	DateColumn string `json:"dateColumn,omitempty"`
}

// Store persists and loads engine configuration with granular CRUD
// operations. Get methods return (nil, nil) when the entity does not exist.
//
// Implementations must route every Put through the Validate* helpers in
// this package so all backends reject the same writes.
type Store interface {
	GetPolicy(ctx context.Context, id uuid.UUID) (*policy.Policy, error)
	ListPolicies(ctx context.Context) ([]policy.Policy, error)
	PutPolicy(ctx context.Context, p policy.Policy) error
	DeletePolicy(ctx context.Context, id uuid.UUID) error

	GetProfile(ctx context.Context, name string) (*tier.ThresholdProfile, error)
	ListProfiles(ctx context.Context) ([]tier.ThresholdProfile, error)
	PutProfile(ctx context.Context, p tier.ThresholdProfile) error
	DeleteProfile(ctx context.Context, name string) error

	GetTemplate(ctx context.Context, name string) (*tier.Template, error)
	ListTemplates(ctx context.Context) ([]tier.Template, error)
	PutTemplate(ctx context.Context, t tier.Template) error
	DeleteTemplate(ctx context.Context, name string) error

	GetDataset(ctx context.Context, name string) (*Dataset, error)
	ListDatasets(ctx context.Context) ([]Dataset, error)
	PutDataset(ctx context.Context, d Dataset) error
	DeleteDataset(ctx context.Context, name string) error

	Close() error
}

// ValidatePolicyWrite is the write-time validation for policies: the policy
// itself, plus reference checks against datasets and profiles.
func ValidatePolicyWrite(ctx context.Context, s Store, p policy.Policy) error {
	var errs []error
	if err := p.Validate(); err != nil {
		errs = append(errs, err)
	}
	if p.Dataset != "" {
		ds, err := s.GetDataset(ctx, p.Dataset)
		if err != nil {
			return fmt.Errorf("validate policy: %w", err)
		}
		if ds == nil {
			errs = append(errs, fmt.Errorf("policy references nonexistent dataset %q", p.Dataset))
		}
	}
	if p.Profile != "" && p.Profile != tier.DefaultProfileName {
		prof, err := s.GetProfile(ctx, p.Profile)
		if err != nil {
			return fmt.Errorf("validate policy: %w", err)
		}
		if prof == nil {
			errs = append(errs, fmt.Errorf("policy references nonexistent threshold profile %q", p.Profile))
		}
	}
	return errors.Join(errs...)
}

// ValidateDatasetWrite checks a dataset registration against its template
// reference.
func ValidateDatasetWrite(ctx context.Context, s Store, d Dataset) error {
	var errs []error
	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, errors.New("dataset name is required"))
	}
	if strings.TrimSpace(d.Template) == "" {
		errs = append(errs, errors.New("dataset must reference a tier template"))
	} else {
		tmpl, err := s.GetTemplate(ctx, d.Template)
		if err != nil {
			return fmt.Errorf("validate dataset: %w", err)
		}
		if tmpl == nil {
			errs = append(errs, fmt.Errorf("dataset references nonexistent tier template %q", d.Template))
		}
	}
	return errors.Join(errs...)
}

// ResolveProfile resolves a policy's threshold profile reference: its own
// profile when set, else the stored default, else the built-in default.
func ResolveProfile(ctx context.Context, s Store, name string) (tier.ThresholdProfile, error) {
	if name == "" {
		name = tier.DefaultProfileName
	}
	p, err := s.GetProfile(ctx, name)
	if err != nil {
		return tier.ThresholdProfile{}, err
	}
	if p != nil {
		return *p, nil
	}
	if name == tier.DefaultProfileName {
		return tier.DefaultProfile(), nil
	}
	return tier.ThresholdProfile{}, fmt.Errorf("threshold profile %q not found", name)
}
