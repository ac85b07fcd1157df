// Package sqlstore implements itemstore.Store on database/sql. It supports
// SQLite (modernc.org/sqlite, driver "sqlite") and PostgreSQL (lib/pq,
// driver "postgres").
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/lostboard/vismatch/codec"
	"github.com/lostboard/vismatch/embedding"
	"github.com/lostboard/vismatch/item"
	"github.com/lostboard/vismatch/itemstore"
)

const defaultBusyTimeout = 5 * time.Second

// Dialect selects the SQL flavor.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Store is a SQL backed itemstore.Store.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to dsn with the driver matching dialect and creates the
// schema if needed.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	switch dialect {
	case SQLite, Postgres:
	default:
		return nil, fmt.Errorf("sqlstore: unknown dialect %q", dialect)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, dialect: dialect}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database. The schema is created if needed.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{db: db, dialect: dialect}
	if err := s.init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlstore: ping: %w", err)
	}
	if s.dialect == SQLite {
		pragmas := []string{
			fmt.Sprintf("PRAGMA busy_timeout = %d", defaultBusyTimeout.Milliseconds()),
			"PRAGMA journal_mode = WAL",
		}
		for _, p := range pragmas {
			if _, err := s.db.ExecContext(ctx, p); err != nil {
				return fmt.Errorf("sqlstore: %s: %w", p, err)
			}
		}
	}

	blob := "BLOB"
	if s.dialect == Postgres {
		blob = "BYTEA"
	}
	schema := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id           TEXT PRIMARY KEY,
			type         TEXT NOT NULL,
			title        TEXT NOT NULL DEFAULT '',
			description  TEXT NOT NULL DEFAULT '',
			category     TEXT NOT NULL DEFAULT '',
			station      TEXT NOT NULL DEFAULT '',
			train_number TEXT NOT NULL DEFAULT '',
			date         TEXT NOT NULL DEFAULT '',
			photo_url    TEXT NOT NULL DEFAULT '',
			embedding    ` + blob + `,
			posted_by    TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL DEFAULT '',
			created_at   BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS items_created_at ON items (created_at DESC)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: apply schema: %w", err)
		}
	}
	return nil
}

// Dialect returns the SQL flavor of the store.
func (s *Store) Dialect() Dialect { return s.dialect }

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
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

const columns = `id, type, title, description, category, station, train_number, date, photo_url, embedding, posted_by, status, created_at`

func (s *Store) Put(ctx context.Context, rec item.Record) error {
	if err := itemstore.Validate(&rec); err != nil {
		return err
	}
	q := s.rebind(`INSERT INTO items (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			type = excluded.type,
			title = excluded.title,
			description = excluded.description,
			category = excluded.category,
			station = excluded.station,
			train_number = excluded.train_number,
			date = excluded.date,
			photo_url = excluded.photo_url,
			embedding = excluded.embedding,
			posted_by = excluded.posted_by,
			status = excluded.status,
			created_at = excluded.created_at`)

	_, err := s.db.ExecContext(ctx, q,
		rec.ID, string(rec.Type), rec.Title, rec.Description, rec.Category,
		rec.Station, rec.TrainNumber, rec.Date, rec.PhotoURL,
		encodeEmbedding(rec.Embedding),
		rec.PostedBy, rec.Status, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: put %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (item.Record, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+columns+` FROM items WHERE id = ?`), id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return item.Record{}, itemstore.ErrNotFound
	}
	if err != nil {
		return item.Record{}, fmt.Errorf("sqlstore: get %s: %w", id, err)
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context) ([]item.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+` FROM items ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list: %w", err)
	}
	defer rows.Close()

	var out []item.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: list: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: list: %w", err)
	}
	return out, nil
}

func (s *Store) SetEmbedding(ctx context.Context, id string, e embedding.Embedding) error {
	if e.Present() {
		if err := e.Validate(0); err != nil {
			return fmt.Errorf("sqlstore: item %s: %w", id, err)
		}
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE items SET embedding = ? WHERE id = ?`), encodeEmbedding(e), id)
	if err != nil {
		return fmt.Errorf("sqlstore: set embedding %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: set embedding %s: %w", id, err)
	}
	if n == 0 {
		return itemstore.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM items WHERE id = ?`), id); err != nil {
		return fmt.Errorf("sqlstore: delete %s: %w", id, err)
	}
	return nil
}

// Close finalises the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (item.Record, error) {
	var (
		rec     item.Record
		typ     string
		emb     []byte
		created int64
	)
	err := sc.Scan(&rec.ID, &typ, &rec.Title, &rec.Description, &rec.Category,
		&rec.Station, &rec.TrainNumber, &rec.Date, &rec.PhotoURL,
		&emb, &rec.PostedBy, &rec.Status, &created)
	if err != nil {
		return item.Record{}, err
	}
	rec.Type = item.Type(typ)
	rec.CreatedAt = time.Unix(0, created).UTC()
	if rec.Embedding, err = codec.DecodeEmbedding(emb); err != nil {
		return item.Record{}, fmt.Errorf("item %s: %w", rec.ID, err)
	}
	return rec, nil
}

// encodeEmbedding returns nil for an absent embedding so the column is NULL.
func encodeEmbedding(e embedding.Embedding) any {
	b := codec.AppendEmbedding(nil, e)
	if b == nil {
		return nil
	}
	return b
}

var _ itemstore.Store = (*Store)(nil)
