package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

const embeddedDir = "migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Report describes one migration touched or inspected by a command.
type Report struct {
	Version  int64
	Path     string
	State    string
	Duration time.Duration
}

func (r Report) String() string {
	if r.Duration > 0 {
		return fmt.Sprintf("%-8s %d %s (%s)", r.State, r.Version, r.Path, r.Duration.Round(time.Millisecond))
	}
	return fmt.Sprintf("%-8s %d %s", r.State, r.Version, r.Path)
}

// Run executes up, down or status against db. An empty dir uses the
// migrations compiled into the binary.
func Run(ctx context.Context, db *sql.DB, dir string, command string) ([]Report, error) {
	p, err := provider(db, dir)
	if err != nil {
		return nil, err
	}

	switch command {
	case "up":
		results, err := p.Up(ctx)
		return fromResults(results), wrap("up", err)
	case "down":
		result, err := p.Down(ctx)
		if result == nil {
			return nil, wrap("down", err)
		}
		return fromResults([]*goose.MigrationResult{result}), wrap("down", err)
	case "status":
		statuses, err := p.Status(ctx)
		if err != nil {
			return nil, wrap("status", err)
		}
		out := make([]Report, 0, len(statuses))
		for _, s := range statuses {
			out = append(out, Report{
				Version: s.Source.Version,
				Path:    s.Source.Path,
				State:   string(s.State),
			})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported migration command %q", command)
	}
}

// MigrateToVersion moves the schema up or down until targetVersion is the
// latest applied migration.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, targetVersion string) ([]Report, error) {
	if targetVersion == "" {
		return nil, errors.New("targetVersion is required")
	}
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	p, err := provider(db, dir)
	if err != nil {
		return nil, err
	}
	current, err := p.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == target:
		return nil, nil
	case current < target:
		results, err = p.UpTo(ctx, target)
		return fromResults(results), wrap(fmt.Sprintf("up-to %d", target), err)
	default:
		results, err = p.DownTo(ctx, target)
		return fromResults(results), wrap(fmt.Sprintf("down-to %d", target), err)
	}
}

// EmbeddedVersions lists the migration files compiled into the binary.
func EmbeddedVersions() ([]string, error) {
	return fs.Glob(embedded, embeddedDir+"/*.sql")
}

// provider builds a Postgres goose provider. The provider is never closed
// here because that would close the caller's db.
func provider(db *sql.DB, dir string) (*goose.Provider, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	fsys, err := source(dir)
	if err != nil {
		return nil, err
	}
	p, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return p, nil
}

func source(dir string) (fs.FS, error) {
	if dir == "" {
		sub, err := fs.Sub(embedded, embeddedDir)
		if err != nil {
			return nil, fmt.Errorf("embedded migrations: %w", err)
		}
		return sub, nil
	}
	return os.DirFS(dir), nil
}

func fromResults(results []*goose.MigrationResult) []Report {
	out := make([]Report, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		state := r.Direction
		if r.Error != nil {
			state = "failed"
		}
		out = append(out, Report{
			Version:  r.Source.Version,
			Path:     r.Source.Path,
			State:    state,
			Duration: r.Duration,
		})
	}
	return out
}

func wrap(command string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", command, err)
}
