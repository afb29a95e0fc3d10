package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// DefaultChunkSize is the number of records applied per chunk transaction.
const DefaultChunkSize = 50

// CoordinatorConfig tunes batch execution.
type CoordinatorConfig struct {
	ChunkSize   int
	StripFields []string
}

// Coordinator runs caller-submitted batches. Each chunk of at most ChunkSize
// records is applied in its own transaction, one record at a time, behind a
// per-record checkpoint.
//
// Chunks commit independently: a fatal error in a later chunk does not undo
// an earlier one.
type Coordinator struct {
	store    Store
	notifier Notifier
	cfg      CoordinatorConfig
	logger   *slog.Logger
}

// NewCoordinator creates a Coordinator. notifier may be nil.
func NewCoordinator(store Store, notifier Notifier, cfg CoordinatorConfig, logger *slog.Logger) *Coordinator {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.StripFields == nil {
		cfg.StripFields = DefaultStripFields
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// ChunkSize returns the configured chunk size.
func (c *Coordinator) ChunkSize() int {
	return c.cfg.ChunkSize
}

// Run applies req to the store. The report is always populated; the returned
// error is non-nil only when one or more chunks aborted on a fatal error, in
// which case it joins one *BatchError per aborted chunk.
func (c *Coordinator) Run(ctx context.Context, def *EntityDefinition, req BatchRequest) (*BatchReport, error) {
	batchID := uuid.NewString()
	logger := c.logger.With("batch_id", batchID, "entity", def.Info.Key)
	if terminal := TerminalFromContext(ctx); terminal != "" {
		logger = logger.With("terminal", terminal)
	}
	if ip := ClientIPFromContext(ctx); ip != "" {
		logger = logger.With("client_ip", ip)
	}
	proc := NewProcessor(def, c.cfg.StripFields, logger)
	report := newReport(batchID, def.Info.Key, len(req.Records), c.cfg.ChunkSize)

	logger.Debug("batch started",
		"records", len(req.Records),
		"operation", string(req.Operation),
		"mode", def.Mode.String(),
	)

	var fatal []error
	chunk := 0
	for start := 0; start < len(req.Records); start += c.cfg.ChunkSize {
		end := min(start+c.cfg.ChunkSize, len(req.Records))

		results, err := c.runChunk(ctx, proc, def, req.Operation, req.Records[start:end], start)
		report.merge(results)
		if err != nil {
			logger.Error("chunk aborted",
				"chunk", chunk,
				"start", start,
				"end", end,
				"error", err,
			)
			fatal = append(fatal, &BatchError{Chunk: chunk, Start: start, End: end, Err: err})
		}
		chunk++
	}

	report.finalize()
	logger.Info("batch complete",
		"created", report.Created,
		"updated", report.Updated,
		"skipped", report.Skipped,
		"deleted", report.Deleted,
		"failed", report.Failed,
		"chunks", report.Chunks,
	)

	c.notify(ctx, logger, def, req.Operation, report)

	return report, errors.Join(fatal...)
}

// runChunk applies one chunk in its own transaction. offset is the index of
// the chunk's first record in the original batch.
func (c *Coordinator) runChunk(ctx context.Context, proc *Processor, def *EntityDefinition, op Operation, records []*Record, offset int) ([]ApplyResult, error) {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		se := Classify(fmt.Errorf("begin transaction: %w", err))
		return abortedResults(records, offset, nil, se), se
	}

	results := make([]ApplyResult, 0, len(records))
	for i, rec := range records {
		cp, err := tx.Checkpoint(ctx)
		if err != nil {
			return c.abort(ctx, tx, records, offset, results, Classify(fmt.Errorf("create checkpoint: %w", err)), true)
		}

		res := proc.Apply(ctx, tx, cp, offset+i, op, rec)
		cause := res.Cause()

		if cause != nil {
			if err := cp.Rollback(ctx); err != nil {
				results = append(results, res)
				return c.abort(ctx, tx, records, offset, results, Classify(fmt.Errorf("rollback to checkpoint: %w", err)), true)
			}
		}
		if err := cp.Release(ctx); err != nil {
			results = append(results, res)
			return c.abort(ctx, tx, records, offset, results, Classify(fmt.Errorf("release checkpoint: %w", err)), true)
		}
		results = append(results, res)

		if res.Action != ActionFailed {
			continue
		}
		if cause == nil || cause.Kind.Fatal() {
			if cause == nil {
				cause = NewStoreError(KindUnknown, errors.New(res.Error))
			}
			return c.abort(ctx, tx, records, offset, results, cause, true)
		}
		if def.Mode == Strict {
			return c.abort(ctx, tx, records, offset, results, cause, false)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		se := Classify(fmt.Errorf("commit: %w", err))
		return abortedResults(records, offset, nil, se), se
	}
	return results, nil
}

// abort rolls back the chunk and reports every record in it as failed. The
// error is returned only when the cause is fatal.
func (c *Coordinator) abort(ctx context.Context, tx Tx, records []*Record, offset int, results []ApplyResult, cause *StoreError, fatal bool) ([]ApplyResult, error) {
	if err := tx.Rollback(ctx); err != nil {
		c.logger.Warn("chunk rollback failed", "offset", offset, "error", err)
	}
	out := abortedResults(records, offset, results, cause)
	if fatal {
		return out, cause
	}
	return out, nil
}

// abortedResults marks every record of a rolled-back chunk as failed. A
// record that failed on its own keeps its error; the others are reported as
// bystanders of the abort.
func abortedResults(records []*Record, offset int, results []ApplyResult, cause *StoreError) []ApplyResult {
	out := make([]ApplyResult, len(records))
	for i, rec := range records {
		if i < len(results) && results[i].Action == ActionFailed {
			out[i] = results[i]
			continue
		}
		out[i] = ApplyResult{
			Index:  offset + i,
			Action: ActionFailed,
			Record: rec,
			Reason: ReasonChunkAborted,
			Error:  fmt.Sprintf("chunk rolled back: %v", cause),
			err:    cause,
		}
	}
	return out
}

func (c *Coordinator) notify(ctx context.Context, logger *slog.Logger, def *EntityDefinition, op Operation, report *BatchReport) {
	if c.notifier == nil {
		return
	}
	applied := report.Applied()
	if len(applied) == 0 {
		return
	}
	n := Notification{
		BatchID:   report.BatchID,
		Entity:    def.Info.Key,
		Operation: op,
		Terminal:  TerminalFromContext(ctx),
		Records:   applied,
	}
	if err := c.notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		logger.Warn("notification failed", "records", len(applied), "error", err)
	}
}
