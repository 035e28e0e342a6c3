package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"sync"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

// embeddedDir is the path of the bundled migrations inside Embedded.
const embeddedDir = "migrations"

// Embedded carries the migrations compiled into every binary so deployed
// services can migrate without the source tree.
//
//go:embed migrations/*.sql
var Embedded embed.FS

// goose keeps its dialect and base FS as package globals.
var gooseMu sync.Mutex

// source points goose at dir on disk, or at the embedded set when dir is empty.
// The returned func restores the default filesystem.
func source(dir string) (string, func(), error) {
	gooseMu.Lock()
	if err := goose.SetDialect("postgres"); err != nil {
		gooseMu.Unlock()
		return "", nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if dir != "" {
		return dir, gooseMu.Unlock, nil
	}
	goose.SetBaseFS(Embedded)
	return embeddedDir, func() {
		goose.SetBaseFS(nil)
		gooseMu.Unlock()
	}, nil
}

// Run executes a standard goose command that requires a DB connection.
// An empty dir runs the embedded migrations.
func Run(ctx context.Context, db *sql.DB, dir string, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}

	resolved, release, err := source(dir)
	if err != nil {
		return err
	}
	defer release()

	// RunContext prints status output to stdout (goose internal)
	if err := goose.RunContext(ctx, command, db, resolved, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion migrates up/down to the requested version by comparing current DB version.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, targetVersion string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}

	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	resolved, release, err := source(dir)
	if err != nil {
		return err
	}
	defer release()

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		if err := goose.UpToContext(ctx, db, resolved, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
		return nil
	default:
		if err := goose.DownToContext(ctx, db, resolved, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
		return nil
	}
}
