package artifacts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour spoken by SQLStore.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStore implements Store on a single assets table in SQLite or
// PostgreSQL. The primary key on hash makes the first INSERT win.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	owned   bool
}

// OpenSQLStore opens dsn with the driver for dialect and migrates it.
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// One writer at a time avoids SQLITE_BUSY under concurrent Puts.
		db.SetMaxOpenConns(1)
	}
	s, err := NewSQLStore(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewSQLStore wraps an open database and ensures the schema exists.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	switch dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return nil, fmt.Errorf("unsupported SQL dialect: %s", dialect)
	}
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate asset store: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	blobType, infoType := "BLOB", "TEXT"
	if s.dialect == DialectPostgres {
		blobType, infoType = "BYTEA", "JSONB"
	}
	query := `
    CREATE TABLE IF NOT EXISTS assets (
        hash TEXT PRIMARY KEY,
        data ` + blobType + ` NOT NULL,
        info ` + infoType + ` NOT NULL,
        size BIGINT NOT NULL,
        created_at TEXT NOT NULL
    )`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Put(ctx context.Context, data []byte, meta *AssetInfo) (string, error) {
	hash := HashBytes(data)
	info := newAssetInfo(data, hash, meta, time.Now().UTC())
	encoded, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to encode asset info: %w", err)
	}

	query := s.rebind(`INSERT INTO assets (hash, data, info, size, created_at) VALUES (?, ?, ?, ?, ?) ON CONFLICT (hash) DO NOTHING`)
	_, err = s.db.ExecContext(ctx, query,
		hash, data, string(encoded), info.Size, info.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert asset: %w", err)
	}
	return hash, nil
}

func (s *SQLStore) Get(ctx context.Context, hash string) ([]byte, error) {
	if _, err := ParseHash(hash); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT data FROM assets WHERE hash = ?`), hash).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read asset %s: %w", hash, err)
	}
	return data, nil
}

func (s *SQLStore) Info(ctx context.Context, hash string) (*AssetInfo, error) {
	if _, err := ParseHash(hash); err != nil {
		return nil, err
	}

	var raw []byte
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT info FROM assets WHERE hash = ?`), hash).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read asset info %s: %w", hash, err)
	}
	var info AssetInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("corrupt asset info for %s: %w", hash, err)
	}
	return &info, nil
}

func (s *SQLStore) Exists(ctx context.Context, hash string) (bool, error) {
	if _, err := ParseHash(hash); err != nil {
		return false, err
	}

	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM assets WHERE hash = ?`), hash).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check asset %s: %w", hash, err)
	}
	return true, nil
}

func (s *SQLStore) Delete(ctx context.Context, hash string) (bool, error) {
	if _, err := ParseHash(hash); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM assets WHERE hash = ?`), hash)
	if err != nil {
		return false, fmt.Errorf("failed to delete asset %s: %w", hash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete asset %s: %w", hash, err)
	}
	return n > 0, nil
}

// Close closes the database if OpenSQLStore opened it.
func (s *SQLStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
