// Package postgres implements the core store on PostgreSQL using pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/storesync/internal/core"
)

// Store is a core.Store backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store over pool. The caller owns the pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Begin starts a chunk transaction.
func (s *Store) Begin(ctx context.Context) (core.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return &Tx{tx: tx}, nil
}

// ChangesSince returns one page of rows in (timestamp, primary key) order.
func (s *Store) ChangesSince(ctx context.Context, def *core.EntityDefinition, q core.ChangesQuery) ([]*core.Record, error) {
	query, args := changesSQL(def, q)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	return collect(rows)
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Tx is one chunk transaction.
type Tx struct {
	tx pgx.Tx
}

func (t *Tx) Find(ctx context.Context, def *core.EntityDefinition, filter core.Filter) (*core.Record, bool, error) {
	query, args := findSQL(def, filter)
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, false, mapError(err)
	}
	recs, err := collect(rows)
	if err != nil {
		return nil, false, err
	}
	if len(recs) == 0 {
		return nil, false, nil
	}
	return recs[0], true, nil
}

func (t *Tx) Insert(ctx context.Context, def *core.EntityDefinition, rec *core.Record) (*core.Record, error) {
	query, args := insertSQL(def, rec)
	return t.returning(ctx, query, args)
}

func (t *Tx) Update(ctx context.Context, def *core.EntityDefinition, filter core.Filter, rec *core.Record) (*core.Record, error) {
	query, args := updateSQL(def, filter, rec)
	return t.returning(ctx, query, args)
}

func (t *Tx) returning(ctx context.Context, query string, args []any) (*core.Record, error) {
	rows, err := t.tx.Query(ctx, query, args...)
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
	query, args := deleteSQL(def, filter)
	if _, err := t.tx.Exec(ctx, query, args...); err != nil {
		return mapError(err)
	}
	return nil
}

// Checkpoint opens a pgx nested transaction, which pgx backs with a
// savepoint on the chunk transaction.
func (t *Tx) Checkpoint(ctx context.Context) (core.Checkpoint, error) {
	nested, err := t.tx.Begin(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return &checkpoint{parent: t.tx, nested: nested}, nil
}

func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return mapError(err)
	}
	return nil
}

// checkpoint adapts a pgx nested transaction to core.Checkpoint. A nested
// transaction ends on rollback, so Rollback opens a fresh one to keep the
// checkpoint usable for the retry path.
type checkpoint struct {
	parent pgx.Tx
	nested pgx.Tx
}

func (c *checkpoint) Rollback(ctx context.Context) error {
	if err := c.nested.Rollback(ctx); err != nil {
		return mapError(err)
	}
	nested, err := c.parent.Begin(ctx)
	if err != nil {
		return mapError(err)
	}
	c.nested = nested
	return nil
}

func (c *checkpoint) Release(ctx context.Context) error {
	if err := c.nested.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// collect reads every row into records keyed by column name.
func collect(rows pgx.Rows) ([]*core.Record, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []*core.Record
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, mapError(err)
		}
		rec := core.NewRecord()
		for i, fd := range fields {
			rec.Set(fd.Name, columnValue(values[i]))
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// columnValue converts driver values that have no natural JSON form.
func columnValue(v any) any {
	switch t := v.(type) {
	case pgtype.Numeric:
		if !t.Valid {
			return nil
		}
		b, err := t.MarshalJSON()
		if err != nil {
			return nil
		}
		return json.Number(b)
	case [16]byte:
		return uuid.UUID(t).String()
	default:
		return v
	}
}
