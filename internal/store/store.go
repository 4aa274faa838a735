package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

// Driver names a supported SQL backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Store persists exams, questions, results and AI call logs.
type Store struct {
	db     *sql.DB
	driver Driver
}

// New opens a SQLite store at dbPath. ":memory:" gives a private in-memory database.
func New(dbPath string) (*Store, error) {
	return Open(context.Background(), DriverSQLite, dbPath)
}

// Open connects to the given backend and ensures the schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*Store, error) {
	var drvName string
	memory := false
	switch driver {
	case DriverSQLite:
		drvName = "sqlite"
		switch {
		case dsn == "" || dsn == ":memory:":
			dsn = ":memory:"
			memory = true
		case !strings.Contains(dsn, "?"):
			dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	case DriverPostgres:
		drvName = "pgx"
		if dsn == "" {
			dsn = "postgres://localhost:5432/examgen?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if memory {
		// Every new connection to :memory: is a fresh empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS exams (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	creator_id TEXT NOT NULL,
	status TEXT NOT NULL,
	access_type TEXT NOT NULL DEFAULT 'private',
	allowed_emails TEXT NOT NULL DEFAULT '[]',
	time_limit INTEGER,
	source_ref TEXT NOT NULL DEFAULT '',
	created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS exams_creator_idx ON exams (creator_id);

CREATE TABLE IF NOT EXISTS questions (
	id TEXT PRIMARY KEY,
	exam_id TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0,
	type TEXT NOT NULL,
	variations TEXT NOT NULL,
	is_bonus BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS questions_exam_idx ON questions (exam_id);

CREATE TABLE IF NOT EXISTS results (
	id TEXT PRIMARY KEY,
	exam_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	status TEXT NOT NULL,
	start_time BIGINT NOT NULL,
	completed_at BIGINT,
	score INTEGER NOT NULL DEFAULT 0,
	bonus_score INTEGER NOT NULL DEFAULT 0,
	total_questions INTEGER NOT NULL DEFAULT 0,
	total_bonus_questions INTEGER NOT NULL DEFAULT 0,
	answers TEXT NOT NULL DEFAULT '[]',
	version BIGINT NOT NULL DEFAULT 0,
	UNIQUE (exam_id, user_id)
);

CREATE TABLE IF NOT EXISTS ai_logs (
	id TEXT PRIMARY KEY,
	exam_id TEXT NOT NULL DEFAULT '',
	user_id TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	response TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	requested_at BIGINT NOT NULL,
	responded_at BIGINT NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS imported_files (
	path TEXT PRIMARY KEY,
	hash TEXT NOT NULL
)
`

func (s *Store) migrate(ctx context.Context) error {
	// Executed one statement at a time so the pgx driver accepts it too.
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
