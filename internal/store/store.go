// Package store persists the access-control records behind the NDA gate:
// who acknowledged the agreement and which targets currently hold a grant.
// Chat transcripts are deliberately not persisted; they live only for the
// lifetime of a session.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS nda_acknowledgments (
	id         INTEGER PRIMARY KEY,
	email      TEXT NOT NULL,
	phone      TEXT NOT NULL DEFAULT '',
	acked_at   TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS access_grants (
	target     TEXT PRIMARY KEY,
	granted_at TIMESTAMP NOT NULL,
	expires_at TIMESTAMP NOT NULL
);
`

// pgSchema adjusts the id column for Postgres.
const pgSchema = `
CREATE TABLE IF NOT EXISTS nda_acknowledgments (
	id         BIGSERIAL PRIMARY KEY,
	email      TEXT NOT NULL,
	phone      TEXT NOT NULL DEFAULT '',
	acked_at   TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS access_grants (
	target     TEXT PRIMARY KEY,
	granted_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
`

// Store wraps the grants database. The driver is chosen from the DSN:
// postgres:// URLs use lib/pq, anything else opens an sqlite file.
type Store struct {
	db       *sql.DB
	postgres bool
}

// Open connects to the database named by databaseURL and applies the
// schema.
func Open(databaseURL string) (*Store, error) {
	driver := "sqlite"
	postgres := strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://")
	if postgres {
		driver = "postgres"
	}

	db, err := sql.Open(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ddl := schema
	if postgres {
		ddl = pgSchema
	}
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, postgres: postgres}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// RecordAcknowledgment stores an NDA acknowledgment for audit.
func (s *Store) RecordAcknowledgment(ctx context.Context, email, phone string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO nda_acknowledgments (email, phone, acked_at) VALUES (?, ?, ?)`),
		email, phone, at)
	if err != nil {
		return fmt.Errorf("record acknowledgment: %w", err)
	}
	return nil
}

// RecordGrant stores (or refreshes) an access grant for a target.
func (s *Store) RecordGrant(ctx context.Context, target string, grantedAt, expiresAt time.Time) error {
	q := `INSERT INTO access_grants (target, granted_at, expires_at) VALUES (?, ?, ?)
	      ON CONFLICT (target) DO UPDATE SET granted_at = excluded.granted_at, expires_at = excluded.expires_at`
	_, err := s.db.ExecContext(ctx, s.rebind(q), target, grantedAt, expiresAt)
	if err != nil {
		return fmt.Errorf("record grant: %w", err)
	}
	return nil
}

// HasActiveGrant reports whether the target holds an unexpired grant.
func (s *Store) HasActiveGrant(ctx context.Context, target string, now time.Time) (bool, error) {
	var expires time.Time
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT expires_at FROM access_grants WHERE target = ?`), target).Scan(&expires)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query grant: %w", err)
	}
	return now.Before(expires), nil
}

// rebind converts ? placeholders to $n for Postgres.
func (s *Store) rebind(q string) string {
	if !s.postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
