package iam

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// openDB opens the IAM sqlite database in WAL mode with a single writer
// connection, matching the eventbus audit store's concurrency posture:
// modernc.org/sqlite serializes writers internally, so capping the pool at
// one connection avoids SQLITE_BUSY under concurrent Engine calls.
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open iam database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply iam schema: %w", err)
	}
	return db, nil
}
