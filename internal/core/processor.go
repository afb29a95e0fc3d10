package core

// processor.go applies a single record inside a chunk transaction.
//
// Each record moves through an explicit state machine:
//
//	Pending ──lookup──> Found ──────────────> Updated | Skipped | Deleted
//	   │                 ^  │
//	   │    (row located)│  │ (row deleted before update, once)
//	   v                 │  v
//	NotFound ──insert──> InsertConflict ──retry lookup──> Failed | Skipped
//	   │
//	   └──> Created | Skipped (foreign key) | Failed
//
// InsertConflict is entered at most once per record, so a uniqueness race
// is retried exactly one time. Found falls back to NotFound at most once,
// when a concurrent delete removes the row between lookup and update.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// DefaultStripFields are terminal bookkeeping columns that never reach the store.
var DefaultStripFields = []string{"b_sincronizado_node_svr"}

type recordState int

const (
	statePending recordState = iota
	stateFound
	stateNotFound
	stateInsertConflict
	stateDone
)

func (s recordState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateFound:
		return "found"
	case stateNotFound:
		return "not_found"
	case stateInsertConflict:
		return "insert_conflict"
	default:
		return "done"
	}
}

// Processor applies records of one entity.
type Processor struct {
	def    *EntityDefinition
	strip  map[string]bool
	logger *slog.Logger
}

// NewProcessor creates a processor for def. stripFields are removed from
// every record before the allow-list filter runs.
func NewProcessor(def *EntityDefinition, stripFields []string, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	strip := make(map[string]bool, len(stripFields))
	for _, f := range stripFields {
		strip[f] = true
	}
	return &Processor{
		def:    def,
		strip:  strip,
		logger: logger.With("entity", def.Info.Key),
	}
}

// recordRun carries one record through the state machine.
type recordRun struct {
	index int
	op    Operation
	input *Record
	rec   *Record

	identity Identity
	row      *Record

	clientTS    string
	hasClientTS bool

	retried   bool
	vanished  bool
	insertErr *StoreError

	result ApplyResult
}

// Apply runs one record to completion. cp is the record's checkpoint; it is
// rolled back here only on the uniqueness retry path, the caller owns every
// other checkpoint transition.
func (p *Processor) Apply(ctx context.Context, tx Tx, cp Checkpoint, index int, op Operation, input *Record) ApplyResult {
	run := &recordRun{index: index, op: op, input: input}

	state := statePending
	for state != stateDone {
		next := p.step(ctx, tx, cp, run, state)
		p.logger.Debug("record transition",
			"index", index,
			"from", state.String(),
			"to", next.String(),
		)
		state = next
	}
	return run.result
}

func (p *Processor) step(ctx context.Context, tx Tx, cp Checkpoint, run *recordRun, state recordState) recordState {
	switch state {
	case statePending:
		return p.lookup(ctx, tx, run)
	case stateFound:
		return p.reconcile(ctx, tx, run)
	case stateNotFound:
		return p.insert(ctx, tx, run)
	case stateInsertConflict:
		return p.retryLookup(ctx, tx, cp, run)
	default:
		return stateDone
	}
}

// prepare strips bookkeeping fields, drops undeclared fields and
// canonicalizes the timestamp.
func (p *Processor) prepare(input *Record) *Record {
	rec := NewRecord()
	for _, name := range input.Fields() {
		if p.strip[name] || !p.def.HasField(name) {
			continue
		}
		v, _ := input.Get(name)
		rec.Set(name, v)
	}

	tsField := p.def.Timestamp()
	if v, ok := rec.Get(tsField); ok {
		if canon, present := CanonicalTimestamp(v); present {
			rec.Set(tsField, canon)
		} else {
			rec.Set(tsField, nil)
		}
	}
	return rec
}

func (p *Processor) lookup(ctx context.Context, tx Tx, run *recordRun) recordState {
	if run.input == nil {
		return p.fail(run, NewStoreError(KindValidation, errors.New("validation: record is null")))
	}
	run.rec = p.prepare(run.input)
	if run.rec.Len() == 0 {
		return p.fail(run, NewStoreError(KindValidation, errors.New("validation: record has no declared fields")))
	}

	if v, ok := run.rec.Get(p.def.Timestamp()); ok {
		run.clientTS, run.hasClientTS = CanonicalTimestamp(v)
	}

	id, ok := ResolveIdentity(run.rec, p.def.IdentityKeys)
	if !ok {
		if run.op == OpDelete {
			return p.fail(run, NewStoreError(KindValidation, errors.New("validation: delete requires an identity key")))
		}
		return stateNotFound
	}
	run.identity = id

	row, found, err := tx.Find(ctx, p.def, id.Filter)
	if err != nil {
		return p.fail(run, Classify(err))
	}
	if found {
		run.row = row
		return stateFound
	}
	if run.op == OpDelete {
		run.result = ApplyResult{
			Index:  run.index,
			Action: ActionSkipped,
			Record: run.rec,
			Reason: ReasonNotFound,
		}
		return stateDone
	}
	return stateNotFound
}

func (p *Processor) reconcile(ctx context.Context, tx Tx, run *recordRun) recordState {
	var serverTS string
	var hasServerTS bool
	if v, ok := run.row.Get(p.def.Timestamp()); ok {
		serverTS, hasServerTS = CanonicalTimestamp(v)
	}

	if run.op == OpDelete {
		if run.hasClientTS && hasServerTS && serverTS > run.clientTS {
			return p.skipNewer(run, serverTS)
		}
		if err := tx.Delete(ctx, p.def, run.identity.Filter); err != nil {
			return p.storeFailure(run, Classify(err))
		}
		run.result = ApplyResult{
			Index:  run.index,
			Action: ActionDeleted,
			Record: run.row,
		}
		return stateDone
	}

	if !ShouldApply(run.clientTS, run.hasClientTS, serverTS, hasServerTS) {
		return p.skipNewer(run, serverTS)
	}

	changes := NewRecord()
	for _, name := range run.rec.Fields() {
		if run.identity.Contains(name) {
			continue
		}
		v, _ := run.rec.Get(name)
		changes.Set(name, v)
	}

	updated := run.row
	if changes.Len() > 0 {
		var err error
		updated, err = tx.Update(ctx, p.def, run.identity.Filter, changes)
		if errors.Is(err, ErrRowNotFound) && !run.vanished {
			run.vanished = true
			p.logger.Debug("row deleted before update, inserting",
				"index", run.index,
				"identity", run.identity.Key.String(),
			)
			return stateNotFound
		}
		if err != nil {
			return p.storeFailure(run, Classify(err))
		}
	}

	run.result = ApplyResult{
		Index:           run.index,
		Action:          ActionUpdated,
		Record:          updated,
		ClientTimestamp: run.clientTS,
		ServerTimestamp: serverTS,
	}
	return stateDone
}

func (p *Processor) insert(ctx context.Context, tx Tx, run *recordRun) recordState {
	for _, f := range p.def.Fields {
		if f.Required && !run.rec.Has(f.Name) {
			se := NewStoreError(KindValidation, fmt.Errorf("validation: required field %s is missing", f.Name))
			se.Column = f.Name
			return p.fail(run, se)
		}
	}

	row, err := tx.Insert(ctx, p.def, run.rec)
	if err == nil {
		run.result = ApplyResult{
			Index:           run.index,
			Action:          ActionCreated,
			Record:          row,
			ClientTimestamp: run.clientTS,
		}
		return stateDone
	}

	se := Classify(err)
	if se.Kind == KindUniqueness && !run.retried {
		run.insertErr = se
		return stateInsertConflict
	}
	return p.storeFailure(run, se)
}

// retryLookup handles a concurrent writer that inserted the same identity
// between lookup and insert. Every usable identity key is tried, not only
// the one resolved first.
func (p *Processor) retryLookup(ctx context.Context, tx Tx, cp Checkpoint, run *recordRun) recordState {
	run.retried = true

	if err := cp.Rollback(ctx); err != nil {
		return p.fail(run, Classify(fmt.Errorf("rollback to checkpoint: %w", err)))
	}

	for _, id := range AllIdentities(run.rec, p.def.IdentityKeys) {
		row, found, err := tx.Find(ctx, p.def, id.Filter)
		if err != nil {
			return p.fail(run, Classify(err))
		}
		if found {
			p.logger.Debug("insert conflict resolved by lookup",
				"index", run.index,
				"identity", id.Key.String(),
			)
			run.identity = id
			run.row = row
			return stateFound
		}
	}

	if p.def.SkipUniqueConflicts {
		run.result = ApplyResult{
			Index:      run.index,
			Action:     ActionSkipped,
			Record:     run.rec,
			Reason:     ReasonUniqueConstraint,
			Constraint: run.insertErr.Constraint,
			Column:     run.insertErr.Column,
			Value:      run.insertErr.Value,
			Error:      run.insertErr.Error(),
			err:        run.insertErr,
		}
		return stateDone
	}
	return p.fail(run, run.insertErr)
}

// storeFailure isolates foreign key violations and fails everything else.
func (p *Processor) storeFailure(run *recordRun, se *StoreError) recordState {
	if se.Kind != KindForeignKey {
		return p.fail(run, se)
	}

	refTable := se.Table
	if refTable == "" {
		if fk, ok := p.def.ForeignKeyFor(se.Column); ok {
			refTable = fk.References
		}
	}
	value := se.Value
	if value == nil && se.Column != "" {
		value, _ = run.rec.Get(se.Column)
	}

	p.logger.Warn("foreign key violation, record skipped",
		"index", run.index,
		"constraint", se.Constraint,
		"column", se.Column,
		"referenced_table", refTable,
	)
	run.result = ApplyResult{
		Index:           run.index,
		Action:          ActionSkipped,
		Record:          run.rec,
		Reason:          ReasonForeignKey,
		Constraint:      se.Constraint,
		Column:          se.Column,
		Value:           value,
		ReferencedTable: refTable,
		Error:           se.Error(),
		err:             se,
	}
	return stateDone
}

func (p *Processor) skipNewer(run *recordRun, serverTS string) recordState {
	run.result = ApplyResult{
		Index:           run.index,
		Action:          ActionSkipped,
		Record:          run.row,
		Reason:          ReasonServerNewer,
		ServerTimestamp: serverTS,
		ClientTimestamp: run.clientTS,
	}
	return stateDone
}

func (p *Processor) fail(run *recordRun, se *StoreError) recordState {
	p.logger.Warn("record failed",
		"index", run.index,
		"kind", se.Kind.String(),
		"error", se.Error(),
	)
	data := run.rec
	if data == nil {
		data = run.input
	}
	run.result = ApplyResult{
		Index:      run.index,
		Action:     ActionFailed,
		Record:     data,
		Constraint: se.Constraint,
		Column:     se.Column,
		Error:      se.Error(),
		err:        se,
	}
	return stateDone
}
