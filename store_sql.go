package replaycache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/goforj/replaycache/kvcore"
)

// sqlStore keeps scalar values and list headers in one table and list
// elements in a companion "<table>_items" table. A list header stores the
// list length as its value.
type sqlStore struct {
	db         *sql.DB
	table      string
	items      string
	driverName string
	base       kvcore.BaseConfig
}

type sqlEntry struct {
	value     []byte
	expiresAt int64
	kind      string
}

type sqlQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var sqlIdentPartRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func newSQLStore(ctx context.Context, cfg StoreConfig) (*sqlStore, error) {
	if cfg.SQLDriverName == "" || cfg.SQLDSN == "" {
		return nil, errors.New("sql driver requires driver name and dsn")
	}
	table := cfg.SQLTable
	if table == "" {
		table = defaultSQLTable
	}
	if err := validateSQLTableName(table); err != nil {
		return nil, err
	}
	driverName := cfg.SQLDriverName
	openName := driverName
	if openName == "postgres" {
		openName = "pgx"
	}
	db, err := sql.Open(openName, cfg.SQLDSN)
	if err != nil {
		return nil, err
	}
	if driverName == "sqlite" {
		// one connection keeps ":memory:" databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &sqlStore{
		db:         db,
		table:      table,
		items:      table + "_items",
		driverName: driverName,
		base:       kvcore.BaseConfig{Prefix: cfg.Prefix},
	}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) Driver() Driver { return DriverSQL }

// Close releases the underlying database handle.
func (s *sqlStore) Close() error { return s.db.Close() }

func (s *sqlStore) ensureSchema(ctx context.Context) error {
	var stmts []string
	switch s.driverName {
	case "postgres", "pgx":
		stmts = []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				k TEXT PRIMARY KEY,
				v BYTEA NOT NULL,
				ea BIGINT NOT NULL,
				kind CHAR(1) NOT NULL
			)`, s.table),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				k TEXT NOT NULL,
				i BIGINT NOT NULL,
				v BYTEA NOT NULL,
				PRIMARY KEY (k, i)
			)`, s.items),
		}
	case "mysql":
		stmts = []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				k VARBINARY(512) PRIMARY KEY,
				v LONGBLOB NOT NULL,
				ea BIGINT NOT NULL,
				kind CHAR(1) NOT NULL
			) ENGINE=InnoDB`, s.table),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				k VARBINARY(512) NOT NULL,
				i BIGINT NOT NULL,
				v LONGBLOB NOT NULL,
				PRIMARY KEY (k, i)
			) ENGINE=InnoDB`, s.items),
		}
	default: // sqlite
		stmts = []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				k TEXT PRIMARY KEY,
				v BLOB NOT NULL,
				ea INTEGER NOT NULL,
				kind TEXT NOT NULL
			)`, s.table),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				k TEXT NOT NULL,
				i INTEGER NOT NULL,
				v BLOB NOT NULL,
				PRIMARY KEY (k, i)
			)`, s.items),
		}
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqlStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, ok, err := s.readEntry(ctx, s.db, s.base.Key(key), false)
	if err != nil || !ok {
		return nil, false, err
	}
	if entry.kind != entryKindString {
		return nil, false, kvcore.ErrWrongType
	}
	return entry.value, true, nil
}

func (s *sqlStore) Set(ctx context.Context, key string, value []byte) error {
	return s.write(ctx, s.base.Key(key), value, 0)
}

func (s *sqlStore) SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	if ttl <= 0 {
		return kvcore.ErrInvalidTTL
	}
	return s.write(ctx, s.base.Key(key), value, time.Now().Add(ttl).UnixMilli())
}

// write replaces key with a string value, discarding any list elements.
func (s *sqlStore) write(ctx context.Context, cacheKey string, value []byte, expiresAt int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.deleteItemsSQL(), cacheKey); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.upsertSQL(), cacheKey, sqlBlob(value), expiresAt, entryKindString); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqlStore) Incr(ctx context.Context, key string) (int64, error) {
	cacheKey := s.base.Key(key)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if err := s.claim(ctx, tx, cacheKey); err != nil {
		return 0, err
	}
	entry, ok, err := s.readEntry(ctx, tx, cacheKey, true)
	if err != nil {
		return 0, err
	}
	current := int64(0)
	expiresAt := int64(0)
	if ok {
		if entry.kind != entryKindString {
			return 0, kvcore.ErrWrongType
		}
		current, err = strconv.ParseInt(string(entry.value), 10, 64)
		if err != nil {
			return 0, kvcore.ErrNotInteger
		}
		expiresAt = entry.expiresAt
	}
	next := current + 1
	if _, err := tx.ExecContext(ctx, s.upsertSQL(), cacheKey, []byte(strconv.FormatInt(next, 10)), expiresAt, entryKindString); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *sqlStore) RPush(ctx context.Context, key string, value []byte) (int64, error) {
	cacheKey := s.base.Key(key)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if err := s.claim(ctx, tx, cacheKey); err != nil {
		return 0, err
	}
	entry, ok, err := s.readEntry(ctx, tx, cacheKey, true)
	if err != nil {
		return 0, err
	}
	length := int64(0)
	if ok {
		if entry.kind != entryKindList {
			return 0, kvcore.ErrWrongType
		}
		length, err = strconv.ParseInt(string(entry.value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("sql list header %q is corrupt: %w", key, err)
		}
	} else if _, err := tx.ExecContext(ctx, s.deleteItemsSQL(), cacheKey); err != nil {
		return 0, err
	}
	insertItem := fmt.Sprintf("INSERT INTO %s (k, i, v) VALUES (%s, %s, %s)", s.items, s.ph(1), s.ph(2), s.ph(3))
	if _, err := tx.ExecContext(ctx, insertItem, cacheKey, length, sqlBlob(value)); err != nil {
		return 0, err
	}
	length++
	if _, err := tx.ExecContext(ctx, s.upsertSQL(), cacheKey, []byte(strconv.FormatInt(length, 10)), int64(0), entryKindList); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return length, nil
}

func (s *sqlStore) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	cacheKey := s.base.Key(key)
	entry, ok, err := s.readEntry(ctx, s.db, cacheKey, false)
	if err != nil {
		return nil, err
	}
	if !ok {
		return [][]byte{}, nil
	}
	if entry.kind != entryKindList {
		return nil, kvcore.ErrWrongType
	}
	length, err := strconv.ParseInt(string(entry.value), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("sql list header %q is corrupt: %w", key, err)
	}
	lo, hi, ok := kvcore.NormalizeRange(length, start, stop)
	if !ok {
		return [][]byte{}, nil
	}
	query := fmt.Sprintf("SELECT v FROM %s WHERE k = %s AND i >= %s AND i < %s ORDER BY i", s.items, s.ph(1), s.ph(2), s.ph(3))
	rows, err := s.db.QueryContext(ctx, query, cacheKey, lo, hi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([][]byte, 0, hi-lo)
	for rows.Next() {
		var v []byte
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Flush clears every key held in the configured tables.
func (s *sqlStore) Flush(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.items)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.table)); err != nil {
		return err
	}
	return tx.Commit()
}

// claim makes sure a row exists for cacheKey before it is locked. A missing
// key gets an already-expired placeholder, so concurrent read-modify-write
// transactions on a new key queue on the same row lock instead of both seeing
// it absent. The placeholder reads as absent and is overwritten before commit.
func (s *sqlStore) claim(ctx context.Context, tx *sql.Tx, cacheKey string) error {
	var query string
	switch s.driverName {
	case "mysql":
		query = fmt.Sprintf("INSERT INTO %s (k, v, ea, kind) VALUES (?, ?, 1, ?) ON DUPLICATE KEY UPDATE k = k", s.table)
	default: // postgres, sqlite
		query = fmt.Sprintf("INSERT INTO %s (k, v, ea, kind) VALUES (%s, %s, 1, %s) ON CONFLICT (k) DO NOTHING", s.table, s.ph(1), s.ph(2), s.ph(3))
	}
	_, err := tx.ExecContext(ctx, query, cacheKey, []byte{}, entryKindString)
	return err
}

// readEntry loads the row for cacheKey. Expired rows are reported absent.
func (s *sqlStore) readEntry(ctx context.Context, q sqlQueryer, cacheKey string, forUpdate bool) (sqlEntry, bool, error) {
	query := fmt.Sprintf("SELECT v, ea, kind FROM %s WHERE k = %s", s.table, s.ph(1))
	if forUpdate && s.driverName != "sqlite" {
		query += " FOR UPDATE"
	}
	var entry sqlEntry
	err := q.QueryRowContext(ctx, query, cacheKey).Scan(&entry.value, &entry.expiresAt, &entry.kind)
	if errors.Is(err, sql.ErrNoRows) {
		return sqlEntry{}, false, nil
	}
	if err != nil {
		return sqlEntry{}, false, err
	}
	entry.kind = strings.TrimSpace(entry.kind)
	if entry.expiresAt > 0 && time.Now().UnixMilli() > entry.expiresAt {
		return sqlEntry{}, false, nil
	}
	return entry, true, nil
}

func (s *sqlStore) upsertSQL() string {
	// Placeholders must be positional for postgres/pgx.
	p1, p2, p3, p4 := s.ph(1), s.ph(2), s.ph(3), s.ph(4)
	switch s.driverName {
	case "mysql":
		return fmt.Sprintf("INSERT INTO %s (k, v, ea, kind) VALUES (%s, %s, %s, %s) ON DUPLICATE KEY UPDATE v = VALUES(v), ea = VALUES(ea), kind = VALUES(kind)", s.table, p1, p2, p3, p4)
	default: // postgres, sqlite
		return fmt.Sprintf("INSERT INTO %s (k, v, ea, kind) VALUES (%s, %s, %s, %s) ON CONFLICT (k) DO UPDATE SET v = excluded.v, ea = excluded.ea, kind = excluded.kind", s.table, p1, p2, p3, p4)
	}
}

func (s *sqlStore) deleteItemsSQL() string {
	return fmt.Sprintf("DELETE FROM %s WHERE k = %s", s.items, s.ph(1))
}

// sqlBlob copies value, mapping nil to an empty blob for NOT NULL columns.
func sqlBlob(value []byte) []byte {
	if value == nil {
		return []byte{}
	}
	return cloneBytes(value)
}

func (s *sqlStore) ph(i int) string {
	if s.driverName == "postgres" || s.driverName == "pgx" {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func validateSQLTableName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("sql table name is required")
	}
	for _, part := range strings.Split(name, ".") {
		if !sqlIdentPartRE.MatchString(part) {
			return fmt.Errorf("invalid sql table name %q", name)
		}
	}
	return nil
}
