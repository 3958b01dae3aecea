package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"zahori/internal/domain"
	"zahori/pkg/platform/sentinel"
	txcontext "zahori/pkg/platform/tx"
)

//go:embed schema/postgres.sql
var postgresSchema string

//go:embed schema/sqlite.sql
var sqliteSchema string

// Dialect selects placeholder style and column encodings.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

// sqliteTime is fixed-width so that created_at sorts lexically.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

// SQLStore implements Store over database/sql. Queries are written with ?
// placeholders and rebound for Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	clock   func() time.Time
}

// NewSQL wraps an open database. Call Migrate before first use.
func NewSQL(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, clock: time.Now}
}

// OpenPostgres opens a pgx-backed pool for dsn.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewSQL(db, DialectPostgres), nil
}

// OpenSQLite opens the database file at path with foreign keys enforced. A
// single connection is used: SQLite serializes writers anyway and an
// in-memory database exists per connection.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return NewSQL(db, DialectSQLite), nil
}

// DB exposes the pool for health checks.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. It is idempotent.
func (s *SQLStore) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if s.dialect == DialectSQLite {
		schema = sqliteSchema
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) conn(ctx context.Context) queryer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) error {
	_, err := s.conn(ctx).ExecContext(ctx, s.rebind(query), args...)
	return err
}

// rebind converts ? placeholders to $n for Postgres.
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

// inTx runs fn in a transaction carried by the context. A transaction
// already present in ctx is reused.
func (s *SQLStore) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLStore) timeArg(t time.Time) any {
	if s.dialect == DialectSQLite {
		return t.UTC().Format(sqliteTime)
	}
	return t.UTC()
}

func (s *SQLStore) CreateCase(ctx context.Context, name, description string) (*domain.Case, error) {
	c := &domain.Case{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   s.clock().UTC().Truncate(time.Microsecond),
		Nodes:       []domain.Node{},
		Links:       []domain.Link{},
	}
	err := s.exec(ctx, `INSERT INTO cases (id, name, description, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, c.Description, s.timeArg(c.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("create case: %w", err)
	}
	return c, nil
}

func (s *SQLStore) GetCase(ctx context.Context, id string) (*domain.Case, error) {
	var c domain.Case
	row := s.conn(ctx).QueryRowContext(ctx, s.rebind(
		`SELECT id, name, description, created_at FROM cases WHERE id = ?`), id)
	if err := row.Scan(&c.ID, &c.Name, &c.Description, timeColumn{&c.CreatedAt}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get case: %w", err)
	}

	nodes, err := s.caseNodes(ctx, id)
	if err != nil {
		return nil, err
	}
	links, err := s.caseLinks(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Nodes, c.Links = nodes, links
	return &c, nil
}

func (s *SQLStore) order() string {
	if s.dialect == DialectSQLite {
		return "rowid"
	}
	return "seq"
}

func (s *SQLStore) caseNodes(ctx context.Context, caseID string) ([]domain.Node, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, s.rebind(
		`SELECT id, case_id, type, data, notes, x, y FROM nodes WHERE case_id = ? ORDER BY `+s.order()), caseID)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	nodes := []domain.Node{}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	return nodes, nil
}

func (s *SQLStore) caseLinks(ctx context.Context, caseID string) ([]domain.Link, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, s.rebind(
		`SELECT id, case_id, source, target FROM links WHERE case_id = ? ORDER BY `+s.order()), caseID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	links := []domain.Link{}
	for rows.Next() {
		var l domain.Link
		if err := rows.Scan(&l.ID, &l.CaseID, &l.Source, &l.Target); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	return links, nil
}

func (s *SQLStore) ListCases(ctx context.Context) ([]domain.CaseSummary, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT c.id, c.name, c.description, c.created_at,
			(SELECT COUNT(*) FROM nodes n WHERE n.case_id = c.id),
			(SELECT COUNT(*) FROM links l WHERE l.case_id = c.id)
		FROM cases c
		ORDER BY c.created_at, c.id`)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	out := []domain.CaseSummary{}
	for rows.Next() {
		var c domain.CaseSummary
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, timeColumn{&c.CreatedAt}, &c.Count.Nodes, &c.Count.Links); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	return out, nil
}

func (s *SQLStore) GetNode(ctx context.Context, id string) (*domain.Node, error) {
	row := s.conn(ctx).QueryRowContext(ctx, s.rebind(
		`SELECT id, case_id, type, data, notes, x, y FROM nodes WHERE id = ?`), id)
	n, err := scanNode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (s *SQLStore) ReplaceGraph(ctx context.Context, caseID string, nodes []domain.Node, links []domain.Link) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		if err := s.requireCase(ctx, caseID); err != nil {
			return err
		}
		if err := s.exec(ctx, `DELETE FROM links WHERE case_id = ?`, caseID); err != nil {
			return fmt.Errorf("clear links: %w", err)
		}
		if err := s.exec(ctx, `DELETE FROM nodes WHERE case_id = ?`, caseID); err != nil {
			return fmt.Errorf("clear nodes: %w", err)
		}
		return s.insertGraph(ctx, caseID, nodes, links)
	})
}

func (s *SQLStore) CreateNodesAndLinks(ctx context.Context, caseID string, nodes []domain.Node, links []domain.Link) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		if err := s.requireCase(ctx, caseID); err != nil {
			return err
		}
		taken, err := s.existingNodeIDs(ctx, nodes)
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return fmt.Errorf("node %s: %w", taken[0], sentinel.ErrConflict)
		}
		return s.insertGraph(ctx, caseID, nodes, links)
	})
}

func (s *SQLStore) requireCase(ctx context.Context, caseID string) error {
	var one int
	err := s.conn(ctx).QueryRowContext(ctx, s.rebind(`SELECT 1 FROM cases WHERE id = ?`), caseID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("find case: %w", err)
	}
	return nil
}

// existingNodeIDs returns which of the batch's node ids are already stored.
func (s *SQLStore) existingNodeIDs(ctx context.Context, nodes []domain.Node) ([]string, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}

	var (
		query string
		args  []any
	)
	if s.dialect == DialectPostgres {
		query = `SELECT id FROM nodes WHERE id = ANY($1::text[])`
		args = []any{pq.Array(ids)}
	} else {
		query = `SELECT id FROM nodes WHERE id IN (?` + strings.Repeat(", ?", len(ids)-1) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("check node ids: %w", err)
	}
	defer rows.Close()

	var taken []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("check node ids: %w", err)
		}
		taken = append(taken, id)
	}
	return taken, rows.Err()
}

func (s *SQLStore) insertGraph(ctx context.Context, caseID string, nodes []domain.Node, links []domain.Link) error {
	for _, n := range nodes {
		data, err := json.Marshal(domain.CloneData(n.Data))
		if err != nil {
			return fmt.Errorf("encode node %s data: %w", n.ID, err)
		}
		err = s.exec(ctx, `INSERT INTO nodes (id, case_id, type, data, notes, x, y) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			n.ID, caseID, string(n.Type), string(data), n.Notes, n.X, n.Y)
		if err != nil {
			return fmt.Errorf("insert node %s: %w", n.ID, constraintConflict(err))
		}
	}
	for _, l := range links {
		err := s.exec(ctx, `INSERT INTO links (id, case_id, source, target) VALUES (?, ?, ?, ?)`,
			l.ID, caseID, l.Source, l.Target)
		if err != nil {
			return fmt.Errorf("insert link %s: %w", l.ID, constraintConflict(err))
		}
	}
	return nil
}

// constraintConflict reports key violations as sentinel.ErrConflict, the way
// the in-memory store does. Other errors pass through.
func constraintConflict(err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %v", sentinel.ErrConflict, err)
		}
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503": // unique_violation, foreign_key_violation
			return fmt.Errorf("%w: %v", sentinel.ErrConflict, err)
		}
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (domain.Node, error) {
	var (
		n    domain.Node
		typ  string
		data string
	)
	if err := row.Scan(&n.ID, &n.CaseID, &typ, &data, &n.Notes, &n.X, &n.Y); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return n, err
		}
		return n, fmt.Errorf("scan node: %w", err)
	}
	n.Type = domain.EntityType(typ)
	n.Data = map[string]any{}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &n.Data); err != nil {
			return n, fmt.Errorf("decode node %s data: %w", n.ID, err)
		}
	}
	return n, nil
}

// timeColumn scans TIMESTAMPTZ values and the text timestamps SQLite returns.
type timeColumn struct {
	dst *time.Time
}

func (c timeColumn) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*c.dst = v.UTC()
		return nil
	case string:
		return c.parse(v)
	case []byte:
		return c.parse(string(v))
	case nil:
		*c.dst = time.Time{}
		return nil
	}
	return fmt.Errorf("unsupported time column type %T", src)
}

func (c timeColumn) parse(s string) error {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parse time column: %w", err)
	}
	*c.dst = t.UTC()
	return nil
}

var _ sql.Scanner = timeColumn{}
