package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"

	ingest "github.com/goliatone/go-ingest"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// embeddedRoot is where the go:embed tree keeps the webhook_events schema.
// Postgres scripts sit at the root, dialect alternatives in subdirectories.
const embeddedRoot = "data/sql/migrations"

var dialectSubdirs = []struct {
	dialect string
	subdir  string
}{
	{DialectPostgres, "."},
	{DialectSQLite, "sqlite"},
}

// FilesystemSpec pairs one dialect with the filesystem holding its scripts.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// Registration captures what was handed to the migration runner.
type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

// RegisterFunc receives one dialect's filesystem, typically closing over a
// go-persistence-bun client's RegisterSQLMigrations.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.SourceLabel = trimmed
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

// WithFilesystems swaps the embedded tree for caller-supplied sources,
// letting applications layer their own schema on top of the event table.
func WithFilesystems(filesystems ...FilesystemSpec) Option {
	return func(r *Registration) {
		kept := make([]FilesystemSpec, 0, len(filesystems))
		for _, spec := range filesystems {
			dialect := normalizeDialect(spec.Dialect)
			if dialect == "" || spec.FS == nil {
				continue
			}
			spec.Dialect = dialect
			kept = append(kept, spec)
		}
		if len(kept) > 0 {
			r.Filesystems = kept
		}
	}
}

// Filesystems resolves the per-dialect migration filesystems for the
// webhook_events schema. An optional override root replaces the embedded
// tree, which the tests use to exercise layout handling.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := ingest.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	base, basePath, err := locateSchemaRoot(root)
	if err != nil {
		return nil, err
	}

	specs := make([]FilesystemSpec, 0, len(dialectSubdirs))
	for _, entry := range dialectSubdirs {
		fsys := base
		fsPath := basePath
		if entry.subdir != "." {
			sub, subErr := fs.Sub(base, entry.subdir)
			if subErr != nil {
				return nil, fmt.Errorf("migrations: resolve %s filesystem: %w", entry.dialect, subErr)
			}
			fsys = sub
			fsPath = path.Join(basePath, entry.subdir)
		}
		if err := ensureScripts(fsys, entry.dialect, fsPath); err != nil {
			return nil, err
		}
		specs = append(specs, FilesystemSpec{
			Dialect: entry.dialect,
			Path:    fsPath,
			FS:      fsys,
		})
	}
	return specs, nil
}

// Register hands the event-table migrations to registerFn, one call per
// dialect named in the validation targets.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       "go-ingest",
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
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

	switch {
	case registerFn == nil:
		return reg, fmt.Errorf("migrations: register function is required")
	case strings.TrimSpace(reg.SourceLabel) == "":
		return reg, fmt.Errorf("migrations: source label is required")
	case len(reg.ValidationTargets) == 0:
		return reg, fmt.Errorf("migrations: validation targets are required")
	case len(reg.Filesystems) == 0:
		return reg, fmt.Errorf("migrations: filesystems are required")
	}

	wanted := make(map[string]struct{}, len(reg.ValidationTargets))
	for _, target := range normalizeDialects(reg.ValidationTargets) {
		wanted[target] = struct{}{}
	}

	for _, spec := range reg.Filesystems {
		if _, ok := wanted[spec.Dialect]; !ok {
			continue
		}
		if spec.FS == nil {
			return reg, fmt.Errorf("migrations: filesystem for %s is nil", spec.Dialect)
		}
		if err := registerFn(ctx, spec.Dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", spec.Dialect, spec.Path, err)
		}
	}

	return reg, nil
}

// locateSchemaRoot accepts either the module's embed root or a filesystem
// already rooted at the migration scripts.
func locateSchemaRoot(root fs.FS) (fs.FS, string, error) {
	if info, err := fs.Stat(root, embeddedRoot); err == nil && info.IsDir() {
		sub, subErr := fs.Sub(root, embeddedRoot)
		if subErr != nil {
			return nil, "", fmt.Errorf("migrations: resolve embedded root: %w", subErr)
		}
		return sub, embeddedRoot, nil
	}

	matches, err := fs.Glob(root, "*.sql")
	if err == nil && len(matches) > 0 {
		return root, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: no migration scripts under %q or the filesystem root", embeddedRoot)
}

func ensureScripts(fsys fs.FS, dialect string, fsPath string) error {
	matches, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return fmt.Errorf("migrations: glob %s %s: %w", dialect, fsPath, err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", dialect, fsPath)
	}
	return nil
}

func normalizeDialect(dialect string) string {
	return strings.TrimSpace(strings.ToLower(dialect))
}

func normalizeDialects(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		normalized := normalizeDialect(value)
		if normalized == "" {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
