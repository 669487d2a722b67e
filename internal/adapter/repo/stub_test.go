package repo

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"imagebatch/internal/infra"
)

// stubDB routes statements by their sqlinline constant. Unrouted single-row
// queries return pgx.ErrNoRows; unrouted execs affect zero rows.
type stubDB struct {
	rows  map[string]func(args []any) pgx.Row
	query map[string]func(args []any) (pgx.Rows, error)
	exec  map[string]func(args []any) (pgconn.CommandTag, error)
	calls []string
	txs   int
}

func newStubDB() *stubDB {
	return &stubDB{
		rows:  map[string]func([]any) pgx.Row{},
		query: map[string]func([]any) (pgx.Rows, error){},
		exec:  map[string]func([]any) (pgconn.CommandTag, error){},
	}
}

func (s *stubDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.calls = append(s.calls, sql)
	if fn, ok := s.exec[sql]; ok {
		return fn(args)
	}
	return pgconn.NewCommandTag("UPDATE 0"), nil
}

func (s *stubDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	s.calls = append(s.calls, sql)
	if fn, ok := s.rows[sql]; ok {
		return fn(args)
	}
	return row(nil)
}

func (s *stubDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	s.calls = append(s.calls, sql)
	if fn, ok := s.query[sql]; ok {
		return fn(args)
	}
	return &stubRows{}, nil
}

func (s *stubDB) InTx(_ context.Context, fn func(tx infra.SQLExecutor) error) error {
	s.txs++
	return fn(s)
}

func (s *stubDB) called(sql string) int {
	n := 0
	for _, c := range s.calls {
		if c == sql {
			n++
		}
	}
	return n
}

var _ infra.SQLDB = (*stubDB)(nil)

type stubRow struct {
	vals []any
	err  error
}

// row returns a pgx.Row that scans vals positionally. A nil vals slice yields pgx.ErrNoRows.
func row(vals []any) pgx.Row {
	if vals == nil {
		return stubRow{err: pgx.ErrNoRows}
	}
	return stubRow{vals: vals}
}

func rowErr(err error) pgx.Row { return stubRow{err: err} }

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.vals)
}

type stubRows struct {
	data [][]any
	idx  int
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Values() ([]any, error)                       { return nil, fmt.Errorf("values not supported in test rows") }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

func (r *stubRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *stubRows) Scan(dest ...any) error {
	return assign(dest, r.data[r.idx-1])
}

func assign(dest []any, vals []any) error {
	if len(dest) != len(vals) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(vals))
	}
	for i, v := range vals {
		if v == nil {
			continue
		}
		target := reflect.ValueOf(dest[i]).Elem()
		src := reflect.ValueOf(v)
		if target.Kind() == reflect.Pointer && src.Kind() != reflect.Pointer {
			p := reflect.New(target.Type().Elem())
			p.Elem().Set(src.Convert(target.Type().Elem()))
			target.Set(p)
			continue
		}
		target.Set(src.Convert(target.Type()))
	}
	return nil
}

func pgErr(code string) error {
	return &pgconn.PgError{Code: code, Message: strings.ToLower(code)}
}
