// Package sqlite implements the core store on SQLite. It backs the CLI's
// embedded mode and integration tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/JonMunkholm/storesync/internal/core"
)

// Store is a core.Store backed by a single SQLite connection.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at path (":memory:" for an
// in-memory database) with foreign keys enforced.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// One writer; also keeps an in-memory database alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Exec runs a statement outside any chunk, used for schema setup.
func (s *Store) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) Begin(ctx context.Context) (core.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapError(err)
	}
	return &Tx{tx: tx}, nil
}

// ChangesSince returns one page of rows in (timestamp, primary key) order.
// Timestamps compare as text under the BINARY collation.
func (s *Store) ChangesSince(ctx context.Context, def *core.EntityDefinition, q core.ChangesQuery) ([]*core.Record, error) {
	ts := ident(def.Timestamp())
	order := []string{"CAST(" + ts + " AS TEXT)"}
	for _, col := range def.PrimaryKey() {
		order = append(order, ident(col))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE %s IS NOT NULL", selectList(def), ident(def.TableName()), ts)
	var args []any
	switch {
	case q.After != nil:
		args = append(args, q.After.Timestamp)
		args = append(args, q.After.Key...)
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
		fmt.Fprintf(&b, " AND (%s) > (%s)", strings.Join(order, ", "), marks)
	case q.Since != "":
		fmt.Fprintf(&b, " AND %s > ?", order[0])
		args = append(args, q.Since)
	}
	fmt.Fprintf(&b, " ORDER BY %s", strings.Join(order, ", "))
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, mapError(err)
	}
	return collect(rows)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tx is one chunk transaction.
type Tx struct {
	tx  *sql.Tx
	seq int
}

func (t *Tx) Find(ctx context.Context, def *core.EntityDefinition, filter core.Filter) (*core.Record, bool, error) {
	cond, args := where(filter)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s LIMIT 1", selectList(def), ident(def.TableName()), cond)
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, mapError(err)
	}
	recs, err := collect(rows)
	if err != nil || len(recs) == 0 {
		return nil, false, err
	}
	return recs[0], true, nil
}

func (t *Tx) Insert(ctx context.Context, def *core.EntityDefinition, rec *core.Record) (*core.Record, error) {
	names := rec.Fields()
	cols := make([]string, len(names))
	marks := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		v, _ := rec.Get(name)
		cols[i] = ident(name)
		marks[i] = "?"
		args[i] = core.StoreValue(v)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		ident(def.TableName()), strings.Join(cols, ", "), strings.Join(marks, ", "), selectList(def))
	row, err := t.returning(ctx, query, args)
	return row, withForeignKey(def, err)
}

func (t *Tx) Update(ctx context.Context, def *core.EntityDefinition, filter core.Filter, rec *core.Record) (*core.Record, error) {
	names := rec.Fields()
	sets := make([]string, len(names))
	args := make([]any, 0, len(names)+len(filter))
	for i, name := range names {
		v, _ := rec.Get(name)
		sets[i] = ident(name) + " = ?"
		args = append(args, core.StoreValue(v))
	}
	cond, condArgs := where(filter)
	args = append(args, condArgs...)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING %s",
		ident(def.TableName()), strings.Join(sets, ", "), cond, selectList(def))
	row, err := t.returning(ctx, query, args)
	return row, withForeignKey(def, err)
}

func (t *Tx) returning(ctx context.Context, query string, args []any) (*core.Record, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	recs, err := collect(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, core.ErrRowNotFound
	}
	return recs[0], nil
}

func (t *Tx) Delete(ctx context.Context, def *core.EntityDefinition, filter core.Filter) error {
	cond, args := where(filter)
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", ident(def.TableName()), cond)
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return mapError(err)
	}
	return nil
}

// Checkpoint creates a savepoint. ROLLBACK TO leaves it on the stack until
// it is released.
func (t *Tx) Checkpoint(ctx context.Context) (core.Checkpoint, error) {
	t.seq++
	name := fmt.Sprintf("sp_%d", t.seq)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return nil, mapError(err)
	}
	return &savepoint{tx: t.tx, name: name}, nil
}

func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return mapError(err)
	}
	return nil
}

type savepoint struct {
	tx   *sql.Tx
	name string
}

func (s *savepoint) Rollback(ctx context.Context) error {
	if _, err := s.tx.ExecContext(ctx, "ROLLBACK TO "+s.name); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *savepoint) Release(ctx context.Context) error {
	if _, err := s.tx.ExecContext(ctx, "RELEASE "+s.name); err != nil {
		return mapError(err)
	}
	return nil
}

func ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// selectList returns the declared columns, the timestamp read as text so a
// DATETIME column is not converted by the driver.
func selectList(def *core.EntityDefinition) string {
	ts := def.Timestamp()
	cols := make([]string, len(def.Fields))
	for i, f := range def.Fields {
		if f.Name == ts {
			cols[i] = fmt.Sprintf("CAST(%s AS TEXT) AS %s", ident(f.Name), ident(f.Name))
			continue
		}
		cols[i] = ident(f.Name)
	}
	return strings.Join(cols, ", ")
}

func where(filter core.Filter) (string, []any) {
	conds := make([]string, len(filter))
	args := make([]any, len(filter))
	for i, fv := range filter {
		conds[i] = ident(fv.Field) + " = ?"
		args[i] = fv.Value
	}
	return strings.Join(conds, " AND "), args
}

func collect(rows *sql.Rows) ([]*core.Record, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, mapError(err)
	}
	var out []*core.Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, mapError(err)
		}
		rec := core.NewRecord()
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				values[i] = string(b)
			}
			rec.Set(col, values[i])
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}
