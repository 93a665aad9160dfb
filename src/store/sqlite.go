package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"buildtriage/src/query"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteStore is a SQLite implementation of Store.
type SQLiteStore struct {
	*sqlStore
}

// NewSQLiteStore creates or opens a SQLite database at path and applies the
// schema. The schema is idempotent, so reopening an existing file is safe.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{sqlStore: &sqlStore{
		db:          db,
		dialect:     query.SQLiteDialect,
		isUnique:    isSQLiteUniqueViolation,
		upsertBuild: upsertBuildSQL(query.SQLiteDialect),
	}}, nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

// upsertBuildSQL renders the build upsert; both engines accept the same
// ON CONFLICT form.
func upsertBuildSQL(d query.Dialect) string {
	ph := make([]any, 14)
	for i := range ph {
		ph[i] = d.Placeholder(i + 1)
	}
	return fmt.Sprintf(`INSERT INTO builds (`+buildColumns+`)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)
		ON CONFLICT (organization, project, number) DO UPDATE SET
			definition_id = excluded.definition_id,
			definition_name = excluded.definition_name,
			repository = excluded.repository,
			kind = excluded.kind,
			result = excluded.result,
			target_branch = excluded.target_branch,
			pull_request = excluded.pull_request,
			queue_time = excluded.queue_time,
			start_time = excluded.start_time,
			finish_time = excluded.finish_time,
			web_url = excluded.web_url`, ph...)
}
