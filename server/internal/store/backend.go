package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "modernc.org/sqlite"              // registers the "sqlite" database/sql driver
)

// Backend persists the serialized dataset collection as one opaque payload.
// Load returns (nil, nil) when nothing has been saved yet.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, payload []byte) error
	Close() error
}

// stateBucket is the row key the collection is stored under.
const stateBucket = "datasets"

// MemoryBackend keeps the payload in process memory. Nothing survives a restart.
type MemoryBackend struct {
	mu      sync.Mutex
	payload []byte
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend { return &MemoryBackend{} }

func (m *MemoryBackend) Load(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.payload == nil {
		return nil, nil
	}
	return append([]byte(nil), m.payload...), nil
}

func (m *MemoryBackend) Save(_ context.Context, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payload = append([]byte(nil), payload...)
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

// sqlDialect holds the statements that differ between engines.
type sqlDialect struct {
	name    string
	migrate []string
	upsert  string
	load    string
}

var sqliteDialect = sqlDialect{
	name: "sqlite",
	migrate: []string{
		`CREATE TABLE IF NOT EXISTS spc_state (
			bucket TEXT PRIMARY KEY,
			payload BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	},
	upsert: `INSERT INTO spc_state(bucket, payload, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
	load: `SELECT payload FROM spc_state WHERE bucket = ?`,
}

var postgresDialect = sqlDialect{
	name: "postgres",
	migrate: []string{
		`CREATE TABLE IF NOT EXISTS spc_state (
			bucket TEXT PRIMARY KEY,
			payload BYTEA NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	},
	upsert: `INSERT INTO spc_state(bucket, payload, updated_at) VALUES($1, $2, $3)
		ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
	load: `SELECT payload FROM spc_state WHERE bucket = $1`,
}

// sqlOpen is swapped in tests.
var sqlOpen = sql.Open

// SQLBackend stores the payload in a single-row state table.
type SQLBackend struct {
	db      *sql.DB
	dialect sqlDialect
	now     func() time.Time
}

// OpenSQLite opens or creates the SQLite database at path and applies
// migrations.
func OpenSQLite(path string) (*SQLBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("store: create dirs: %w", err)
	}
	db, err := sqlOpen("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// one writer keeps modernc from returning SQLITE_BUSY
	db.SetMaxOpenConns(1)
	return newSQLBackend(context.Background(), db, sqliteDialect)
}

// OpenPostgres connects with the pgx driver, pings and applies migrations.
func OpenPostgres(ctx context.Context, dsn string) (*SQLBackend, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: postgres dsn is empty")
	}
	db, err := sqlOpen("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	return newSQLBackend(ctx, db, postgresDialect)
}

func newSQLBackend(ctx context.Context, db *sql.DB, d sqlDialect) (*SQLBackend, error) {
	for _, stmt := range d.migrate {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: migrate %s: %w", d.name, err)
		}
	}
	return &SQLBackend{db: db, dialect: d, now: time.Now}, nil
}

func (b *SQLBackend) Load(ctx context.Context) ([]byte, error) {
	var payload []byte
	err := b.db.QueryRowContext(ctx, b.dialect.load, stateBucket).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", b.dialect.name, err)
	}
	return payload, nil
}

func (b *SQLBackend) Save(ctx context.Context, payload []byte) error {
	stamp := b.now().UTC().Format(time.RFC3339Nano)
	if _, err := b.db.ExecContext(ctx, b.dialect.upsert, stateBucket, payload, stamp); err != nil {
		return fmt.Errorf("store: save %s: %w", b.dialect.name, err)
	}
	return nil
}

func (b *SQLBackend) Close() error { return b.db.Close() }
