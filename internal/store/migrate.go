package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

//go:embed seed/defaults.yaml
var defaultSeed []byte

// Seed is the bootstrap data applied after migrations
type Seed struct {
	Roles []struct {
		Name        string   `yaml:"name"`
		Permissions []string `yaml:"permissions"`
	} `yaml:"roles"`
	Settings map[string]string `yaml:"settings"`
}

// LoadSeed parses a seed document. An empty input selects the built-in one.
func LoadSeed(data []byte) (*Seed, error) {
	if len(data) == 0 {
		data = defaultSeed
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	return &seed, nil
}

// Migrate applies every embedded migration not yet recorded in
// schema_migrations, each in its own transaction
func (s *Store) Migrate(ctx context.Context) error {
	logger := util.GetLogger()

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		var applied bool
		if err := s.db.GetContext(ctx, &applied,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", name); err != nil {
			return err
		}
		if applied {
			continue
		}

		body, err := migrationFiles.ReadFile(name)
		if err != nil {
			return err
		}

		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", name); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		logger.Info("Migration applied", zap.String("version", name))
	}

	return nil
}

// ApplySeed creates missing roles and settings. Existing rows are left as
// they are so admin edits survive a re-run.
func ApplySeed(ctx context.Context, repo Repository, seed *Seed) error {
	return repo.InTx(ctx, func(r Repository) error {
		for _, rs := range seed.Roles {
			_, err := r.GetRoleByName(ctx, rs.Name)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}
			role := &models.Role{Name: rs.Name, Permissions: rs.Permissions}
			if err := r.CreateRole(ctx, role); err != nil {
				return fmt.Errorf("failed to seed role %s: %w", rs.Name, err)
			}
		}

		current, err := r.GetSettings(ctx)
		if err != nil {
			return err
		}
		missing := make(map[string]string)
		for k, v := range seed.Settings {
			if _, ok := current[k]; !ok {
				missing[k] = v
			}
		}
		if len(missing) == 0 {
			return nil
		}
		return r.UpsertSettings(ctx, missing)
	})
}
