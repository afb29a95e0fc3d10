package core

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// fakeStore is an in-memory Store with unique and foreign key enforcement.
// Writes go straight to shared state and transactions keep an undo log, so a
// hook can simulate a concurrent writer whose row survives a checkpoint
// rollback.
type fakeStore struct {
	mu     sync.Mutex
	tables map[string][]*Record

	beforeInsert     func(s *fakeStore, def *EntityDefinition, rec *Record) error
	beforeFind       func(def *EntityDefinition, filter Filter) error
	beforeUpdate     func(s *fakeStore, def *EntityDefinition, filter Filter)
	beforeCommit     func() error
	beforeCheckpoint func() error

	begins      int
	commits     int
	rollbacks   int
	checkpoints int
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: make(map[string][]*Record)}
}

// seed inserts rows outside any transaction.
func (s *fakeStore) seed(table string, rows ...*Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.tables[table] = append(s.tables[table], r.Clone())
	}
}

// rows returns a snapshot of a table.
func (s *fakeStore) rows(table string) []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Record, len(s.tables[table]))
	for i, r := range s.tables[table] {
		out[i] = r.Clone()
	}
	return out
}

// row returns the single row matching field=value.
func (s *fakeStore) row(table, field string, value any) (*Record, bool) {
	for _, r := range s.rows(table) {
		if v, ok := r.Get(field); ok && sameValue(v, value) {
			return r, true
		}
	}
	return nil, false
}

func (s *fakeStore) Begin(ctx context.Context) (Tx, error) {
	s.mu.Lock()
	s.begins++
	s.mu.Unlock()
	return &fakeTx{store: s}, nil
}

func (s *fakeStore) ChangesSince(ctx context.Context, def *EntityDefinition, q ChangesQuery) ([]*Record, error) {
	ts := def.Timestamp()
	var out []*Record
	for _, r := range s.rows(def.TableName()) {
		if v, ok := r.Get(ts); !ok || v == nil {
			continue
		}
		pos := PositionOf(def, r)
		switch {
		case q.After != nil:
			if comparePositions(pos, *q.After) <= 0 {
				continue
			}
		case q.Since != "":
			if pos.Timestamp <= q.Since {
				continue
			}
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return comparePositions(PositionOf(def, out[i]), PositionOf(def, out[j])) < 0
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// comparePositions orders by timestamp text, then key values, numerically
// when both parse as integers.
func comparePositions(a, b Position) int {
	if c := strings.Compare(a.Timestamp, b.Timestamp); c != 0 {
		return c
	}
	for i := range a.Key {
		x, y := fmt.Sprint(a.Key[i]), fmt.Sprint(b.Key[i])
		xi, errX := strconv.Atoi(x)
		yi, errY := strconv.Atoi(y)
		if errX == nil && errY == nil {
			if c := cmp.Compare(xi, yi); c != 0 {
				return c
			}
			continue
		}
		if c := strings.Compare(x, y); c != 0 {
			return c
		}
	}
	return 0
}

func (s *fakeStore) Ping(ctx context.Context) error { return nil }

func sameValue(a, b any) bool {
	return fmt.Sprint(StoreValue(a)) == fmt.Sprint(StoreValue(b))
}

func matches(r *Record, filter Filter) bool {
	for _, fv := range filter {
		v, ok := r.Get(fv.Field)
		if !ok || v == nil || !sameValue(v, fv.Value) {
			return false
		}
	}
	return true
}

// checkConstraints enforces identity keys as unique constraints, required
// fields as not-null and declared foreign keys. self is skipped for updates.
// Caller holds s.mu.
func (s *fakeStore) checkConstraints(def *EntityDefinition, rec, self *Record) error {
	table := def.TableName()
	for _, f := range def.Fields {
		if f.Required && !rec.Has(f.Name) {
			return &StoreError{
				Kind:   KindValidation,
				Column: f.Name,
				Err:    fmt.Errorf("NOT NULL constraint failed: %s.%s", table, f.Name),
			}
		}
	}
	for _, key := range def.IdentityKeys {
		id, ok := identityFor(rec, key)
		if !ok {
			continue
		}
		for _, existing := range s.tables[table] {
			if existing == self {
				continue
			}
			if matches(existing, id.Filter) {
				return &StoreError{
					Kind:       KindUniqueness,
					Constraint: table + "_" + strings.Join(key, "_") + "_key",
					Err:        fmt.Errorf("UNIQUE constraint failed: %s.%s", table, strings.Join(key, ", ")),
				}
			}
		}
	}
	for _, fk := range def.ForeignKeys {
		v, ok := rec.Get(fk.Column)
		if !ok || v == nil {
			continue
		}
		found := false
		for _, parent := range s.tables[fk.References] {
			if pv, ok := parent.Get(fk.Column); ok && sameValue(pv, v) {
				found = true
				break
			}
		}
		if !found {
			return &StoreError{
				Kind:       KindForeignKey,
				Constraint: table + "_" + fk.Column + "_fkey",
				Column:     fk.Column,
				Value:      v,
				Err:        errors.New("FOREIGN KEY constraint failed"),
			}
		}
	}
	return nil
}

type fakeTx struct {
	store *fakeStore
	undo  []func()
	done  bool
}

func (t *fakeTx) Find(ctx context.Context, def *EntityDefinition, filter Filter) (*Record, bool, error) {
	if t.store.beforeFind != nil {
		if err := t.store.beforeFind(def, filter); err != nil {
			return nil, false, err
		}
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, r := range t.store.tables[def.TableName()] {
		if matches(r, filter) {
			return r.Clone(), true, nil
		}
	}
	return nil, false, nil
}

func (t *fakeTx) Insert(ctx context.Context, def *EntityDefinition, rec *Record) (*Record, error) {
	if t.store.beforeInsert != nil {
		if err := t.store.beforeInsert(t.store, def, rec); err != nil {
			return nil, err
		}
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if err := t.store.checkConstraints(def, rec, nil); err != nil {
		return nil, err
	}
	table := def.TableName()
	row := rec.Clone()
	t.store.tables[table] = append(t.store.tables[table], row)
	t.undo = append(t.undo, func() { t.store.remove(table, row) })
	return row.Clone(), nil
}

func (t *fakeTx) Update(ctx context.Context, def *EntityDefinition, filter Filter, rec *Record) (*Record, error) {
	if t.store.beforeUpdate != nil {
		t.store.beforeUpdate(t.store, def, filter)
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	table := def.TableName()
	for _, r := range t.store.tables[table] {
		if !matches(r, filter) {
			continue
		}
		next := r.Clone()
		for _, name := range rec.Fields() {
			v, _ := rec.Get(name)
			next.Set(name, v)
		}
		if err := t.store.checkConstraints(def, next, r); err != nil {
			return nil, err
		}
		prev := r.Clone()
		*r = *next
		row := r
		t.undo = append(t.undo, func() { *row = *prev })
		return r.Clone(), nil
	}
	return nil, ErrRowNotFound
}

func (t *fakeTx) Delete(ctx context.Context, def *EntityDefinition, filter Filter) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	table := def.TableName()
	for _, r := range t.store.tables[table] {
		if matches(r, filter) {
			row := r
			t.store.remove(table, row)
			t.undo = append(t.undo, func() { t.store.tables[table] = append(t.store.tables[table], row) })
			return nil
		}
	}
	return nil
}

// remove drops row by identity. Caller holds s.mu.
func (s *fakeStore) remove(table string, row *Record) {
	rows := s.tables[table]
	for i, r := range rows {
		if r == row {
			s.tables[table] = append(rows[:i], rows[i+1:]...)
			return
		}
	}
}

func (t *fakeTx) unwind(to int) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for i := len(t.undo) - 1; i >= to; i-- {
		t.undo[i]()
	}
	t.undo = t.undo[:to]
}

func (t *fakeTx) Checkpoint(ctx context.Context) (Checkpoint, error) {
	if t.store.beforeCheckpoint != nil {
		if err := t.store.beforeCheckpoint(); err != nil {
			return nil, err
		}
	}
	t.store.mu.Lock()
	t.store.checkpoints++
	t.store.mu.Unlock()
	return &fakeCheckpoint{tx: t, mark: len(t.undo)}, nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.done {
		return errors.New("tx closed")
	}
	if t.store.beforeCommit != nil {
		if err := t.store.beforeCommit(); err != nil {
			t.unwind(0)
			t.done = true
			return err
		}
	}
	t.done = true
	t.undo = nil
	t.store.mu.Lock()
	t.store.commits++
	t.store.mu.Unlock()
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.done {
		return errors.New("tx closed")
	}
	t.unwind(0)
	t.done = true
	t.store.mu.Lock()
	t.store.rollbacks++
	t.store.mu.Unlock()
	return nil
}

type fakeCheckpoint struct {
	tx       *fakeTx
	mark     int
	released bool
}

func (c *fakeCheckpoint) Rollback(ctx context.Context) error {
	if c.released {
		return errors.New("checkpoint released")
	}
	c.tx.unwind(c.mark)
	return nil
}

func (c *fakeCheckpoint) Release(ctx context.Context) error {
	if c.released {
		return errors.New("checkpoint released")
	}
	c.released = true
	return nil
}

// recordingNotifier captures notifications.
type recordingNotifier struct {
	mu   sync.Mutex
	got  []Notification
	fail error
}

func (n *recordingNotifier) Notify(ctx context.Context, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, note)
	return n.fail
}
