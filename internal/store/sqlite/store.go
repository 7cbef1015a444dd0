// Package sqlite provides a SQLite-backed config Store implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"strata/internal/policy"
	"strata/internal/store"
	"strata/internal/tier"
)

const timeFormat = time.RFC3339Nano

// Store is a SQLite-backed store.Store implementation.
type Store struct {
	db   *sql.DB
	path string
}

var _ store.Store = (*Store)(nil)

// NewStore opens a SQLite database at path and runs migrations.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create config directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetPolicy(ctx context.Context, id uuid.UUID) (*policy.Policy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, dataset, action, priority, enabled, paused, profile, conditions, params, updated_at
		FROM policies WHERE id = ?`, id.String())
	p, err := scanPolicy(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get policy %s: %w", id, err)
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*policy.Policy, error) {
	var (
		p                 policy.Policy
		idStr             string
		enabled, paused   int
		condJSON, parJSON string
		updatedAt         string
	)
	if err := row.Scan(&idStr, &p.Name, &p.Dataset, &p.Action, &p.Priority,
		&enabled, &paused, &p.Profile, &condJSON, &parJSON, &updatedAt); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse policy id %q: %w", idStr, err)
	}
	p.ID = id
	p.Enabled = enabled != 0
	p.Paused = paused != 0
	if err := json.Unmarshal([]byte(condJSON), &p.Conditions); err != nil {
		return nil, fmt.Errorf("decode conditions: %w", err)
	}
	if err := json.Unmarshal([]byte(parJSON), &p.Params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &p, nil
}

func (s *Store) ListPolicies(ctx context.Context) ([]policy.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, dataset, action, priority, enabled, paused, profile, conditions, params, updated_at
		FROM policies ORDER BY priority, name`)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var result []policy.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (s *Store) PutPolicy(ctx context.Context, p policy.Policy) error {
	if err := store.ValidatePolicyWrite(ctx, s, p); err != nil {
		return err
	}
	condJSON, err := json.Marshal(p.Conditions)
	if err != nil {
		return fmt.Errorf("encode conditions: %w", err)
	}
	parJSON, err := json.Marshal(p.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO policies (id, name, dataset, action, priority, enabled, paused, profile, conditions, params, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			dataset = excluded.dataset,
			action = excluded.action,
			priority = excluded.priority,
			enabled = excluded.enabled,
			paused = excluded.paused,
			profile = excluded.profile,
			conditions = excluded.conditions,
			params = excluded.params,
			updated_at = excluded.updated_at
	`, p.ID.String(), p.Name, p.Dataset, string(p.Action), p.Priority,
		boolInt(p.Enabled), boolInt(p.Paused), p.Profile,
		string(condJSON), string(parJSON), p.UpdatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("put policy %q: %w", p.Name, err)
	}
	return nil
}

func (s *Store) DeletePolicy(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM policies WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("delete policy %s: %w", id, err)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, name string) (*tier.ThresholdProfile, error) {
	var p tier.ThresholdProfile
	err := s.db.QueryRowContext(ctx, `
		SELECT name, hot_days, warm_days, cold_days FROM profiles WHERE name = ?`, name).
		Scan(&p.Name, &p.HotDays, &p.WarmDays, &p.ColdDays)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %q: %w", name, err)
	}
	return &p, nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]tier.ThresholdProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, hot_days, warm_days, cold_days FROM profiles ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var result []tier.ThresholdProfile
	for rows.Next() {
		var p tier.ThresholdProfile
		if err := rows.Scan(&p.Name, &p.HotDays, &p.WarmDays, &p.ColdDays); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) PutProfile(ctx context.Context, p tier.ThresholdProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (name, hot_days, warm_days, cold_days)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			hot_days = excluded.hot_days,
			warm_days = excluded.warm_days,
			cold_days = excluded.cold_days
	`, p.Name, p.HotDays, p.WarmDays, p.ColdDays)
	if err != nil {
		return fmt.Errorf("put profile %q: %w", p.Name, err)
	}
	return nil
}

func (s *Store) DeleteProfile(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM profiles WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete profile %q: %w", name, err)
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, name string) (*tier.Template, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM templates WHERE name = ?", name).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template %q: %w", name, err)
	}
	var t tier.Template
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("decode template %q: %w", name, err)
	}
	return &t, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]tier.Template, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM templates ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var result []tier.Template
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		var t tier.Template
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("decode template: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *Store) PutTemplate(ctx context.Context, t tier.Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode template: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO templates (name, data) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data
	`, t.Name, string(data))
	if err != nil {
		return fmt.Errorf("put template %q: %w", t.Name, err)
	}
	return nil
}

func (s *Store) DeleteTemplate(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM templates WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete template %q: %w", name, err)
	}
	return nil
}

func (s *Store) GetDataset(ctx context.Context, name string) (*store.Dataset, error) {
	var d store.Dataset
	err := s.db.QueryRowContext(ctx,
		"SELECT name, template, date_column FROM datasets WHERE name = ?", name).
		Scan(&d.Name, &d.Template, &d.DateColumn)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset %q: %w", name, err)
	}
	return &d, nil
}

func (s *Store) ListDatasets(ctx context.Context) ([]store.Dataset, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, template, date_column FROM datasets ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var result []store.Dataset
	for rows.Next() {
		var d store.Dataset
		if err := rows.Scan(&d.Name, &d.Template, &d.DateColumn); err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (s *Store) PutDataset(ctx context.Context, d store.Dataset) error {
	if err := store.ValidateDatasetWrite(ctx, s, d); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO datasets (name, template, date_column) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			template = excluded.template,
			date_column = excluded.date_column
	`, d.Name, d.Template, d.DateColumn)
	if err != nil {
		return fmt.Errorf("put dataset %q: %w", d.Name, err)
	}
	return nil
}

func (s *Store) DeleteDataset(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM datasets WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete dataset %q: %w", name, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
