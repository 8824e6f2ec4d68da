// Package pgstore implements cloud.Transport directly against Postgres with a
// pgx connection pool.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyperengineering/gloss/internal/cloud"
)

// Schema is the reference DDL of the shared store in the scoped shape.
//
//go:embed schema.sql
var Schema string

// Querier is the subset of *pgxpool.Pool the transport needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store implements cloud.Transport. Safe for concurrent use.
type Store struct {
	db   Querier
	pool *pgxpool.Pool
}

// Open creates a pool for dsn. Connections are made on first use, so an
// unreachable server surfaces as a Transient error from the first call.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgstore: new pool: %w", err)
	}
	return &Store{db: pool, pool: pool}, nil
}

// New wraps an existing pool or transaction.
func New(db Querier) *Store {
	return &Store{db: db}
}

// ApplySchema creates the reference tables if they do not exist.
func (s *Store) ApplySchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("pgstore: apply schema: %w", err)
	}
	return nil
}

// Close releases the pool opened by Open.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Select implements cloud.Transport.
func (s *Store) Select(ctx context.Context, table string, columns []string, filter cloud.Filter) ([]cloud.Row, error) {
	query, args := buildSelect(table, columns, filter)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(table, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, classify(table, err)
	}

	out := make([]cloud.Row, len(maps))
	for i, m := range maps {
		out[i] = cloud.Row(m)
	}
	return out, nil
}

// Upsert implements cloud.Transport.
func (s *Store) Upsert(ctx context.Context, table string, rows []cloud.Row, conflict []string) error {
	if len(rows) == 0 {
		return nil
	}
	query, args := buildUpsert(table, rows, conflict)
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return classify(table, err)
	}
	return nil
}

// Delete implements cloud.Transport.
func (s *Store) Delete(ctx context.Context, table string, filter cloud.Filter) error {
	where, args := buildWhere(filter, 1)
	query := "DELETE FROM " + ident(table) + where
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return classify(table, err)
	}
	return nil
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func identList(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = ident(n)
	}
	return strings.Join(out, ", ")
}

func buildSelect(table string, columns []string, filter cloud.Filter) (string, []any) {
	where, args := buildWhere(filter, 1)
	return "SELECT " + identList(columns) + " FROM " + ident(table) + where, args
}

// buildWhere renders filter conditions in column order, numbering
// placeholders from start.
func buildWhere(f cloud.Filter, start int) (string, []any) {
	var (
		conds []string
		args  []any
		n     = start
	)

	eqCols := sortedKeys(f.Eq)
	for _, c := range eqCols {
		conds = append(conds, fmt.Sprintf("%s = $%d", ident(c), n))
		args = append(args, f.Eq[c])
		n++
	}

	inCols := sortedKeys(f.In)
	for _, c := range inCols {
		vs := f.In[c]
		if len(vs) == 0 {
			conds = append(conds, "FALSE")
			continue
		}
		ph := make([]string, len(vs))
		for i, v := range vs {
			ph[i] = fmt.Sprintf("$%d", n)
			args = append(args, v)
			n++
		}
		conds = append(conds, fmt.Sprintf("%s IN (%s)", ident(c), strings.Join(ph, ", ")))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func buildUpsert(table string, rows []cloud.Row, conflict []string) (string, []any) {
	colSet := make(map[string]struct{})
	for _, r := range rows {
		for c := range r {
			colSet[c] = struct{}{}
		}
	}
	cols := sortedKeys(colSet)

	var (
		values []string
		args   []any
		n      = 1
	)
	for _, r := range rows {
		ph := make([]string, len(cols))
		for i, c := range cols {
			ph[i] = fmt.Sprintf("$%d", n)
			args = append(args, r[c])
			n++
		}
		values = append(values, "("+strings.Join(ph, ", ")+")")
	}

	conflictSet := make(map[string]struct{}, len(conflict))
	for _, c := range conflict {
		conflictSet[c] = struct{}{}
	}
	var updates []string
	for _, c := range cols {
		if _, ok := conflictSet[c]; ok {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", ident(c), ident(c)))
	}

	var b strings.Builder
	b.WriteString("INSERT INTO " + ident(table) + " (" + identList(cols) + ") VALUES ")
	b.WriteString(strings.Join(values, ", "))
	b.WriteString(" ON CONFLICT (" + identList(conflict) + ")")
	if len(updates) == 0 {
		b.WriteString(" DO NOTHING")
	} else {
		b.WriteString(" DO UPDATE SET " + strings.Join(updates, ", "))
	}
	return b.String(), args
}

var undefinedColumn = regexp.MustCompile(`column "?(?:\w+\.)?(\w+)"? (?:of relation "\w+" )?does not exist`)

// classify maps Postgres errors onto the cloud error model.
func classify(table string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &cloud.Error{Kind: cloud.NotFound, Table: table, Err: err}
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return &cloud.Error{Kind: cloud.Transient, Table: table, Err: err}
	}

	switch pgErr.SQLState() {
	case "42703": // undefined_column
		col := pgErr.ColumnName
		if m := undefinedColumn.FindStringSubmatch(pgErr.Message); col == "" && m != nil {
			col = m[1]
		}
		return &cloud.Error{Kind: cloud.SchemaMismatch, Table: table, Column: col, Err: err}
	case "42P01", // undefined_table
		"42P10": // invalid_column_reference (no constraint matches ON CONFLICT)
		return &cloud.Error{Kind: cloud.SchemaMismatch, Table: table, Err: err}
	default:
		return &cloud.Error{Kind: cloud.Transient, Table: table, Err: err}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
