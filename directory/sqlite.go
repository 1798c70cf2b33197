// Package directory persists student accounts. The SQLite store is the
// production implementation of auth.Directory; the memory store backs tests.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nvelasco/campusd/auth"
	"github.com/nvelasco/campusd/internal/util"
)

const schema = `
CREATE TABLE IF NOT EXISTS students (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	first_name    TEXT NOT NULL,
	last_name     TEXT NOT NULL,
	phone         TEXT NOT NULL DEFAULT '',
	department    TEXT NOT NULL DEFAULT '',
	credential    TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	last_login_at TEXT
);
`

// SQLiteStore implements auth.Directory on a single-file SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ auth.Directory = (*SQLiteStore)(nil)

// OpenSQLite opens (and if needed creates) the database at path and applies
// the schema. The connection pool is capped at one connection; modernc's
// driver serializes writers anyway and a single connection avoids
// SQLITE_BUSY under concurrent registration.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening directory database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying directory schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// FindByIdentifier looks up a student by normalized email.
func (s *SQLiteStore) FindByIdentifier(ctx context.Context, identifier string) (auth.UserRecord, error) {
	id := util.NormalizeIdentifier(identifier)
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, first_name, last_name, phone, department, credential
		FROM students WHERE email = ?`, id)

	var rec auth.UserRecord
	err := row.Scan(&rec.ID, &rec.Email, &rec.FirstName, &rec.LastName,
		&rec.Phone, &rec.Department, &rec.Credential)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.UserRecord{}, auth.ErrUserNotFound
	}
	if err != nil {
		return auth.UserRecord{}, fmt.Errorf("querying student: %w", err)
	}
	return rec, nil
}

// IdentifierExists reports whether an account already uses the email.
func (s *SQLiteStore) IdentifierExists(ctx context.Context, identifier string) (bool, error) {
	id := util.NormalizeIdentifier(identifier)
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM students WHERE email = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking for student: %w", err)
	}
	return true, nil
}

// Create inserts a new student and returns the record with its assigned ID.
// The UNIQUE constraint on email backs up the service-level existence check.
func (s *SQLiteStore) Create(ctx context.Context, rec auth.UserRecord) (auth.UserRecord, error) {
	rec.ID = uuid.NewString()
	rec.Email = util.NormalizeIdentifier(rec.Email)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students (id, email, first_name, last_name, phone, department, credential, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Email, rec.FirstName, rec.LastName, rec.Phone,
		rec.Department, rec.Credential, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueViolation(err) {
			return auth.UserRecord{}, auth.ErrDuplicateIdentifier
		}
		return auth.UserRecord{}, fmt.Errorf("inserting student: %w", err)
	}
	return rec, nil
}

// SaveCredential replaces the stored credential for an existing account.
func (s *SQLiteStore) SaveCredential(ctx context.Context, identifier, credential string) error {
	id := util.NormalizeIdentifier(identifier)
	res, err := s.db.ExecContext(ctx,
		`UPDATE students SET credential = ? WHERE email = ?`, credential, id)
	if err != nil {
		return fmt.Errorf("updating credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating credential: %w", err)
	}
	if n == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

// RecordLogin stamps the last successful login time.
func (s *SQLiteStore) RecordLogin(ctx context.Context, identifier string, at time.Time) error {
	id := util.NormalizeIdentifier(identifier)
	_, err := s.db.ExecContext(ctx,
		`UPDATE students SET last_login_at = ? WHERE email = ?`,
		at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("recording login: %w", err)
	}
	return nil
}

// LastLogin returns the most recent login time for an account, or ok=false
// if the account has never logged in.
func (s *SQLiteStore) LastLogin(ctx context.Context, identifier string) (time.Time, bool, error) {
	id := util.NormalizeIdentifier(identifier)
	var stamp sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT last_login_at FROM students WHERE email = ?`, id).Scan(&stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, auth.ErrUserNotFound
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("querying last login: %w", err)
	}
	if !stamp.Valid {
		return time.Time{}, false, nil
	}
	at, err := time.Parse(time.RFC3339, stamp.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing last login: %w", err)
	}
	return at, true, nil
}

// isUniqueViolation matches the constraint error without depending on the
// driver's error types. modernc.org/sqlite reports constraint failures with
// the standard SQLite message text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
