package core

import "context"

// Store is the relational store the engine reconciles into.
// Implementations live in internal/store.
type Store interface {
	// Begin opens a transaction owned by a single chunk.
	Begin(ctx context.Context) (Tx, error)

	// ChangesSince returns rows with a non-null timestamp ordered by the
	// timestamp's stored text, then the primary key. With q.After set it
	// returns rows whose (timestamp, key...) sorts strictly after it;
	// otherwise rows whose timestamp text sorts after q.Since. Timestamps are
	// compared as text, byte-wise, and returned as text.
	ChangesSince(ctx context.Context, def *EntityDefinition, q ChangesQuery) ([]*Record, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}

// Tx is a store transaction. Every method returns *StoreError for
// classified failures.
type Tx interface {
	// Find looks up at most one row by equality on filter. The entity's
	// timestamp field is returned verbatim as stored text.
	Find(ctx context.Context, def *EntityDefinition, filter Filter) (*Record, bool, error)

	// Insert creates a row and returns it as stored.
	Insert(ctx context.Context, def *EntityDefinition, rec *Record) (*Record, error)

	// Update sets the record's fields on the row matching filter and returns
	// the re-read row.
	Update(ctx context.Context, def *EntityDefinition, filter Filter, rec *Record) (*Record, error)

	// Delete removes the row matching filter.
	Delete(ctx context.Context, def *EntityDefinition, filter Filter) error

	// Checkpoint marks a point the transaction can partially roll back to.
	Checkpoint(ctx context.Context) (Checkpoint, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Checkpoint is a savepoint scoped to its transaction. Rollback discards
// work done since the checkpoint was taken and leaves it open; Release
// closes it. A checkpoint must not be used after its transaction ends.
type Checkpoint interface {
	Rollback(ctx context.Context) error
	Release(ctx context.Context) error
}

// Notifier receives applied records after a batch completes. Failures must
// not affect the report already produced.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
