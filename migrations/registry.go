package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	accounts "github.com/goliatone/go-accounts"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
	rootPath   = "data/sql/migrations"
)

// Tree is one dialect's migration directory with the versions it carries.
type Tree struct {
	Dialect  string
	Path     string
	FS       fs.FS
	Versions []string
}

// Plan records what Register handed to the registrar.
type Plan struct {
	Dialects []string
	Trees    []Tree
}

type RegisterFunc func(ctx context.Context, dialect string, fsys fs.FS) error

type Option func(*registerOptions)

type registerOptions struct {
	dialects []string
	source   fs.FS
}

// WithDialects limits registration to the named dialects.
func WithDialects(dialects ...string) Option {
	return func(o *registerOptions) {
		next := normalizeDialects(dialects)
		if len(next) > 0 {
			o.dialects = next
		}
	}
}

// WithSource swaps the embedded account migrations for another tree that
// uses the same data/sql/migrations layout.
func WithSource(source fs.FS) Option {
	return func(o *registerOptions) {
		if source != nil {
			o.source = source
		}
	}
}

// Trees resolves the postgres and sqlite trees and checks that every
// version has both directions and exists for both dialects.
func Trees(source fs.FS) ([]Tree, error) {
	if source == nil {
		source = accounts.GetCoreMigrationsFS()
	}
	base, basePath, err := migrationsRoot(source)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite tree: %w", err)
	}

	trees := []Tree{
		{Dialect: DialectPostgres, Path: basePath, FS: base},
		{Dialect: DialectSQLite, Path: pathJoin(basePath, "sqlite"), FS: sqliteFS},
	}
	for i := range trees {
		versions, err := versionsOf(trees[i])
		if err != nil {
			return nil, err
		}
		trees[i].Versions = versions
	}
	if !slices.Equal(trees[0].Versions, trees[1].Versions) {
		return nil, fmt.Errorf(
			"migrations: dialect trees diverge: postgres=%v sqlite=%v",
			trees[0].Versions,
			trees[1].Versions,
		)
	}
	return trees, nil
}

// Register passes each selected dialect tree to registerFn, postgres first.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Plan, error) {
	options := registerOptions{dialects: []string{DialectPostgres, DialectSQLite}}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	plan := Plan{Dialects: options.dialects}
	if registerFn == nil {
		return plan, fmt.Errorf("migrations: register function is required")
	}

	trees, err := Trees(options.source)
	if err != nil {
		return plan, err
	}
	for _, dialect := range options.dialects {
		if dialect != DialectPostgres && dialect != DialectSQLite {
			return plan, fmt.Errorf("migrations: unsupported dialect %q", dialect)
		}
	}

	for _, tree := range trees {
		if !slices.Contains(options.dialects, tree.Dialect) {
			continue
		}
		if err := registerFn(ctx, tree.Dialect, tree.FS); err != nil {
			return plan, fmt.Errorf("migrations: register %s (%s): %w", tree.Dialect, tree.Path, err)
		}
		plan.Trees = append(plan.Trees, tree)
	}
	return plan, nil
}

func versionsOf(tree Tree) ([]string, error) {
	ups, err := fs.Glob(tree.FS, "*"+upSuffix)
	if err != nil {
		return nil, fmt.Errorf("migrations: glob %s: %w", tree.Path, err)
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("migrations: %s tree %q has no %s files", tree.Dialect, tree.Path, upSuffix)
	}
	versions := make([]string, 0, len(ups))
	for _, up := range ups {
		version := strings.TrimSuffix(up, upSuffix)
		if _, err := fs.Stat(tree.FS, version+downSuffix); err != nil {
			return nil, fmt.Errorf("migrations: %s %s has no down migration", tree.Dialect, version)
		}
		versions = append(versions, version)
	}
	slices.Sort(versions)
	return versions, nil
}

func migrationsRoot(root fs.FS) (fs.FS, string, error) {
	if _, err := fs.Stat(root, rootPath); err != nil {
		return nil, "", fmt.Errorf("migrations: %s not found: %w", rootPath, err)
	}
	sub, err := fs.Sub(root, rootPath)
	if err != nil {
		return nil, "", fmt.Errorf("migrations: open %s: %w", rootPath, err)
	}
	return sub, rootPath, nil
}

func normalizeDialects(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(strings.ToLower(value))
		if trimmed == "" || slices.Contains(out, trimmed) {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func pathJoin(base string, suffix string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(suffix, "/")
}
