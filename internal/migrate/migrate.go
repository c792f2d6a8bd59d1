// Package migrate applies the embedded schema migrations with goose.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var embedded embed.FS

// FS returns the migration files rooted at the sql directory.
func FS() fs.FS {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

// Manager runs migrations against a PostgreSQL database.
type Manager struct {
	provider *goose.Provider
}

// NewManager constructs a Manager over the embedded migrations.
func NewManager(db *sql.DB, opts ...goose.ProviderOption) (*Manager, error) {
	p, err := goose.NewProvider(goose.DialectPostgres, db, FS(), opts...)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Manager{provider: p}, nil
}

// Up applies all pending migrations and returns the applied versions.
func (m *Manager) Up(ctx context.Context) ([]int64, error) {
	results, err := m.provider.Up(ctx)
	return versions(results), err
}

// Down rolls back the most recent migration.
func (m *Manager) Down(ctx context.Context) ([]int64, error) {
	res, err := m.provider.Down(ctx)
	if res == nil {
		return nil, err
	}
	return versions([]*goose.MigrationResult{res}), err
}

// Status lists every known migration with its state.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(statuses))
	for _, st := range statuses {
		line := fmt.Sprintf("%05d %s %s", st.Source.Version, st.State, st.Source.Path)
		if !st.AppliedAt.IsZero() {
			line += " " + st.AppliedAt.UTC().Format("2006-01-02T15:04:05Z")
		}
		out = append(out, line)
	}
	return out, nil
}

func versions(results []*goose.MigrationResult) []int64 {
	out := make([]int64, 0, len(results))
	for _, r := range results {
		if r != nil && r.Source != nil {
			out = append(out, r.Source.Version)
		}
	}
	return out
}
