// Package cloud defines the row-oriented port through which gloss reaches the
// shared account-level store, and the error model every transport reports in.
package cloud

import (
	"context"
	"errors"
	"fmt"
)

// Row is one table row keyed by column name.
type Row map[string]any

// Filter restricts a select or delete. All conditions are ANDed.
type Filter struct {
	Eq map[string]any
	In map[string][]any
}

// Eq builds a filter of equality conditions from alternating column/value pairs.
func Eq(pairs ...any) Filter {
	f := Filter{Eq: make(map[string]any, len(pairs)/2)}
	for i := 0; i+1 < len(pairs); i += 2 {
		f.Eq[pairs[i].(string)] = pairs[i+1]
	}
	return f
}

// WithIn adds a membership condition.
func (f Filter) WithIn(column string, values []any) Filter {
	if f.In == nil {
		f.In = make(map[string][]any)
	}
	f.In[column] = values
	return f
}

// Columns lists every column the filter references.
func (f Filter) Columns() []string {
	cols := make([]string, 0, len(f.Eq)+len(f.In))
	for c := range f.Eq {
		cols = append(cols, c)
	}
	for c := range f.In {
		cols = append(cols, c)
	}
	return cols
}

// Transport reads and writes rows of the shared store.
type Transport interface {
	// Select returns the requested columns of every row matching filter.
	Select(ctx context.Context, table string, columns []string, filter Filter) ([]Row, error)
	// Upsert inserts rows, replacing existing rows that collide on the conflict columns.
	Upsert(ctx context.Context, table string, rows []Row, conflict []string) error
	// Delete removes every row matching filter.
	Delete(ctx context.Context, table string, filter Filter) error
}

// Kind classifies a transport failure.
type Kind int

const (
	// Transient covers network failures, timeouts and anything unclassified.
	Transient Kind = iota
	// NotFound means the addressed row does not exist.
	NotFound
	// SchemaMismatch means the table or a column does not exist in the shape asked for.
	SchemaMismatch
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case SchemaMismatch:
		return "schema_mismatch"
	default:
		return "transient"
	}
}

// Error is the structured error every transport returns. Extractable via errors.As().
type Error struct {
	Kind   Kind
	Table  string
	Column string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Column != "":
		return fmt.Sprintf("cloud: %s: %s.%s: %v", e.Kind, e.Table, e.Column, e.Err)
	case e.Table != "":
		return fmt.Sprintf("cloud: %s: %s: %v", e.Kind, e.Table, e.Err)
	default:
		return fmt.Sprintf("cloud: %s: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error of the given kind.
func Errorf(kind Kind, table, column, format string, args ...any) *Error {
	return &Error{Kind: kind, Table: table, Column: column, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err, Transient when err is not an *Error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return Transient
}

// IsSchemaMismatch reports whether err says the requested shape does not exist.
func IsSchemaMismatch(err error) bool {
	return err != nil && KindOf(err) == SchemaMismatch
}

// IsNotFound reports whether err says the addressed row does not exist.
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == NotFound
}
