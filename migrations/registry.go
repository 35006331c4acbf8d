package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	twitch "github.com/goliatone/go-twitch"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	defaultSourceLabel = "go-twitch"
	migrationsDir      = "data/sql/migrations"
)

// dialectDirs maps each dialect to its directory below migrationsDir.
var dialectDirs = []struct {
	dialect string
	dir     string
}{
	{DialectPostgres, "."},
	{DialectSQLite, "sqlite"},
}

// FilesystemSpec is the migration set for one dialect.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

// RegisterFunc receives each dialect's migrations, typically forwarding them
// to go-persistence-bun's RegisterSQLMigrations.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		if label = strings.TrimSpace(label); label != "" {
			r.SourceLabel = label
		}
	}
}

// WithValidationTargets restricts registration to the named dialects.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		if normalized := normalizeDialects(targets); len(normalized) > 0 {
			r.ValidationTargets = normalized
		}
	}
}

// WithFilesystems replaces the embedded migrations, e.g. to add app tables.
func WithFilesystems(filesystems ...FilesystemSpec) Option {
	return func(r *Registration) {
		kept := []FilesystemSpec{}
		for _, spec := range filesystems {
			spec.Dialect = strings.ToLower(strings.TrimSpace(spec.Dialect))
			if spec.Dialect != "" && spec.FS != nil {
				kept = append(kept, spec)
			}
		}
		if len(kept) > 0 {
			r.Filesystems = kept
		}
	}
}

// Filesystems returns one migration filesystem per dialect from source, or
// from the embedded migrations when source is nil. Each must hold at least
// one *.up.sql file.
func Filesystems(source ...fs.FS) ([]FilesystemSpec, error) {
	root := twitch.GetMigrationsFS()
	if len(source) > 0 && source[0] != nil {
		root = source[0]
	}
	base, err := fs.Sub(root, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: open %s: %w", migrationsDir, err)
	}

	out := make([]FilesystemSpec, 0, len(dialectDirs))
	for _, entry := range dialectDirs {
		fsys := base
		path := migrationsDir
		if entry.dir != "." {
			if fsys, err = fs.Sub(base, entry.dir); err != nil {
				return nil, fmt.Errorf("migrations: open %s filesystem: %w", entry.dialect, err)
			}
			path += "/" + entry.dir
		}
		ups, err := fs.Glob(fsys, "*.up.sql")
		if err != nil {
			return nil, fmt.Errorf("migrations: list %s: %w", path, err)
		}
		if len(ups) == 0 {
			return nil, fmt.Errorf("migrations: %s has no *.up.sql files", path)
		}
		out = append(out, FilesystemSpec{Dialect: entry.dialect, Path: path, FS: fsys})
	}
	return out, nil
}

// Register hands every targeted dialect's migrations to registerFn.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       defaultSourceLabel,
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	filesystems, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = filesystems
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	for _, spec := range reg.Filesystems {
		if !slices.Contains(reg.ValidationTargets, spec.Dialect) {
			continue
		}
		if err := registerFn(ctx, spec.Dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s from %s: %w", spec.Dialect, spec.Path, err)
		}
	}
	return reg, nil
}

func normalizeDialects(values []string) []string {
	out := []string{}
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value != "" && !slices.Contains(out, value) {
			out = append(out, value)
		}
	}
	return out
}
