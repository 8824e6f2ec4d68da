// Package cloudtest provides an in-memory cloud.Transport whose tables can be
// declared in any schema shape, plus a compliance suite for transports.
package cloudtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hyperengineering/gloss/internal/cloud"
)

// Table declares a table: its columns and the column set upserts must conflict on.
type Table struct {
	Name     string
	Columns  []string
	Conflict []string
}

// Call records one transport call.
type Call struct {
	Op    string
	Table string
}

func (c Call) String() string { return c.Op + " " + c.Table }

type table struct {
	decl    Table
	columns map[string]struct{}
	rows    []cloud.Row
}

type fault struct {
	op, table string
	err       error
	once      bool
}

// Memory is an in-memory transport. Unknown tables and columns are reported as
// cloud.SchemaMismatch, the way a real server reports them.
type Memory struct {
	mu     sync.Mutex
	tables map[string]*table
	faults []fault
	calls  []Call
}

// NewMemory creates a transport with the given tables.
func NewMemory(tables ...Table) *Memory {
	m := &Memory{tables: make(map[string]*table)}
	for _, t := range tables {
		m.Declare(t)
	}
	return m
}

// Declare adds or replaces a table. Existing rows are dropped.
func (m *Memory) Declare(t Table) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cols := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		cols[c] = struct{}{}
	}
	m.tables[t.Name] = &table{decl: t, columns: cols}
}

// Fail makes every call of op ("select", "upsert", "delete") on table return err.
// An empty table matches every table.
func (m *Memory) Fail(op, table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = append(m.faults, fault{op: op, table: table, err: err})
}

// FailNext is Fail for the next matching call only.
func (m *Memory) FailNext(op, table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = append(m.faults, fault{op: op, table: table, err: err, once: true})
}

// Heal removes every injected fault.
func (m *Memory) Heal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = nil
}

// Calls returns the calls made so far.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// ResetCalls clears the call log.
func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Rows returns a copy of every row of a table.
func (m *Memory) Rows(name string) []cloud.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[name]
	if !ok {
		return nil
	}
	out := make([]cloud.Row, 0, len(t.rows))
	for _, r := range t.rows {
		out = append(out, copyRow(r))
	}
	return out
}

// Insert puts rows into a table directly, bypassing validation and conflicts.
func (m *Memory) Insert(name string, rows ...cloud.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[name]
	if !ok {
		panic(fmt.Sprintf("cloudtest: table %s not declared", name))
	}
	for _, r := range rows {
		t.rows = append(t.rows, copyRow(r))
	}
}

// Select implements cloud.Transport.
func (m *Memory) Select(ctx context.Context, name string, columns []string, filter cloud.Filter) ([]cloud.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.enter(ctx, "select", name)
	if err != nil {
		return nil, err
	}
	if err := t.check(append(append([]string{}, columns...), filter.Columns()...)); err != nil {
		return nil, err
	}

	var out []cloud.Row
	for _, r := range t.rows {
		if !matches(r, filter) {
			continue
		}
		row := make(cloud.Row, len(columns))
		for _, c := range columns {
			row[c] = r[c]
		}
		out = append(out, row)
	}
	return out, nil
}

// Upsert implements cloud.Transport. A batch that repeats a conflict key is
// rejected whole, as Postgres rejects it.
func (m *Memory) Upsert(ctx context.Context, name string, rows []cloud.Row, conflict []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.enter(ctx, "upsert", name)
	if err != nil {
		return err
	}
	if err := t.check(conflict); err != nil {
		return err
	}
	if !sameSet(conflict, t.decl.Conflict) {
		return cloud.Errorf(cloud.SchemaMismatch, name, "",
			"no unique constraint matching conflict columns (%s)", strings.Join(conflict, ","))
	}
	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		k := conflictKey(r, conflict)
		if _, dup := seen[k]; dup {
			return cloud.Errorf(cloud.Transient, name, "",
				"ON CONFLICT DO UPDATE command cannot affect row a second time")
		}
		seen[k] = struct{}{}

		cols := make([]string, 0, len(r))
		for c := range r {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		if err := t.check(cols); err != nil {
			return err
		}
	}

	for _, r := range rows {
		k := conflictKey(r, conflict)
		replaced := false
		for i, existing := range t.rows {
			if conflictKey(existing, conflict) == k {
				merged := copyRow(existing)
				for c, v := range r {
					merged[c] = v
				}
				t.rows[i] = merged
				replaced = true
				break
			}
		}
		if !replaced {
			t.rows = append(t.rows, copyRow(r))
		}
	}
	return nil
}

// Delete implements cloud.Transport.
func (m *Memory) Delete(ctx context.Context, name string, filter cloud.Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.enter(ctx, "delete", name)
	if err != nil {
		return err
	}
	if err := t.check(filter.Columns()); err != nil {
		return err
	}

	kept := t.rows[:0]
	for _, r := range t.rows {
		if !matches(r, filter) {
			kept = append(kept, r)
		}
	}
	t.rows = kept
	return nil
}

// enter records the call, applies injected faults and resolves the table.
// Callers hold m.mu.
func (m *Memory) enter(ctx context.Context, op, name string) (*table, error) {
	m.calls = append(m.calls, Call{Op: op, Table: name})

	if err := ctx.Err(); err != nil {
		return nil, &cloud.Error{Kind: cloud.Transient, Table: name, Err: err}
	}
	for i, f := range m.faults {
		if f.op != op || (f.table != "" && f.table != name) {
			continue
		}
		if f.once {
			m.faults = append(m.faults[:i], m.faults[i+1:]...)
		}
		return nil, f.err
	}

	t, ok := m.tables[name]
	if !ok {
		return nil, cloud.Errorf(cloud.SchemaMismatch, name, "", "relation %q does not exist", name)
	}
	return t, nil
}

func (t *table) check(columns []string) error {
	for _, c := range columns {
		if _, ok := t.columns[c]; !ok {
			return cloud.Errorf(cloud.SchemaMismatch, t.decl.Name, c, "column %q does not exist", c)
		}
	}
	return nil
}

func matches(r cloud.Row, f cloud.Filter) bool {
	for c, v := range f.Eq {
		if !equal(r[c], v) {
			return false
		}
	}
	for c, vs := range f.In {
		found := false
		for _, v := range vs {
			if equal(r[c], v) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func equal(a, b any) bool {
	return normalize(a) == normalize(b)
}

func normalize(v any) string {
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if x == nil {
			return "<nil>"
		}
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

func conflictKey(r cloud.Row, conflict []string) string {
	parts := make([]string, len(conflict))
	for i, c := range conflict {
		parts[i] = normalize(r[c])
	}
	return strings.Join(parts, "\x00")
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		if seen[s] == 0 {
			return false
		}
		seen[s]--
	}
	return true
}

func copyRow(r cloud.Row) cloud.Row {
	out := make(cloud.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
