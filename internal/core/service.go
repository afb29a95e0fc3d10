package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultChangesLimit is the page size for incremental pulls.
const DefaultChangesLimit = 100

// ServiceConfig holds the tunables of the sync service.
type ServiceConfig struct {
	ChunkSize     int
	StripFields   []string
	MaxConcurrent int
	MaxWait       time.Duration
	ChangesLimit  int
	Logger        *slog.Logger
}

// Service is the entry point for terminals: batch sync and incremental pull.
type Service struct {
	store        Store
	coordinator  *Coordinator
	limiter      *BatchLimiter
	changesLimit int
}

// NewService creates a Service over store. notifier may be nil.
func NewService(store Store, notifier Notifier, cfg ServiceConfig) *Service {
	if cfg.ChangesLimit <= 0 {
		cfg.ChangesLimit = DefaultChangesLimit
	}
	coordinator := NewCoordinator(store, notifier, CoordinatorConfig{
		ChunkSize:   cfg.ChunkSize,
		StripFields: cfg.StripFields,
	}, cfg.Logger)

	return &Service{
		store:        store,
		coordinator:  coordinator,
		limiter:      NewBatchLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		changesLimit: cfg.ChangesLimit,
	}
}

// Sync reconciles one batch into the store.
//
// The batch is detached from the caller's cancellation: once admitted it runs
// to completion so a dropped terminal connection cannot abort a chunk halfway.
// The error is non-nil when the batch was rejected before running, or when a
// chunk aborted on a fatal store error; in the latter case the report is
// still returned.
func (s *Service) Sync(ctx context.Context, req BatchRequest) (*BatchReport, error) {
	def, ok := Get(req.Entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, req.Entity)
	}
	if len(req.Records) == 0 {
		return nil, ErrEmptyBatch
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	return s.coordinator.Run(context.WithoutCancel(ctx), &def, req)
}

// ChangesPage is one page of an incremental pull.
type ChangesPage struct {
	Entity  string    `json:"entity"`
	Since   string    `json:"since,omitempty"`
	Records []*Record `json:"data"`
	Count   int       `json:"count"`
	HasMore bool      `json:"hasMore"`

	// Next resumes after the last row of this page. It is set whenever the
	// page has rows, so a caller can poll again later from the same place.
	Next string `json:"next,omitempty"`

	// Until is the stored timestamp of the last row.
	Until string `json:"until,omitempty"`
}

// Changes returns rows modified after req.Since, or after req.Cursor, in
// (timestamp, primary key) order.
func (s *Service) Changes(ctx context.Context, req ChangesRequest) (*ChangesPage, error) {
	def, ok := Get(req.Entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, req.Entity)
	}
	limit := req.Limit
	if limit <= 0 || limit > s.changesLimit {
		limit = s.changesLimit
	}

	q := ChangesQuery{Limit: limit + 1}
	if req.Cursor != "" {
		pos, err := DecodeCursor(req.Cursor, &def)
		if err != nil {
			return nil, err
		}
		q.After = pos
	} else {
		q.Since, _ = CanonicalTimestamp(req.Since)
	}

	rows, err := s.store.ChangesSince(ctx, &def, q)
	if err != nil {
		return nil, fmt.Errorf("changes %s: %w", req.Entity, err)
	}

	page := &ChangesPage{Entity: req.Entity, Since: q.Since}
	if len(rows) > limit {
		rows = rows[:limit]
		page.HasMore = true
	}
	page.Records = rows
	page.Count = len(rows)
	if len(rows) > 0 {
		last := PositionOf(&def, rows[len(rows)-1])
		page.Until = last.Timestamp
		if page.Next, err = EncodeCursor(last); err != nil {
			return nil, err
		}
	}
	return page, nil
}

// EntitySummary describes a registered entity for listing.
type EntitySummary struct {
	Key          string     `json:"key"`
	Table        string     `json:"table"`
	Group        string     `json:"group"`
	Label        string     `json:"label"`
	Fields       []string   `json:"fields"`
	IdentityKeys [][]string `json:"identityKeys"`
	Timestamp    string     `json:"timestampField"`
	Mode         string     `json:"mode"`
}

// SummaryOf describes def for listing.
func SummaryOf(def EntityDefinition) EntitySummary {
	keys := make([][]string, len(def.IdentityKeys))
	for i, k := range def.IdentityKeys {
		keys[i] = []string(k)
	}
	return EntitySummary{
		Key:          def.Info.Key,
		Table:        def.TableName(),
		Group:        def.Info.Group,
		Label:        def.Info.Label,
		Fields:       def.FieldNames(),
		IdentityKeys: keys,
		Timestamp:    def.Timestamp(),
		Mode:         def.Mode.String(),
	}
}

// Entities lists registered entities, grouped and sorted.
func (s *Service) Entities() []EntitySummary {
	defs := All()
	out := make([]EntitySummary, len(defs))
	for i, def := range defs {
		out[i] = SummaryOf(def)
	}
	return out
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// LimiterStatus returns the batch limiter state.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForBatches blocks until running batches finish or ctx ends.
func (s *Service) WaitForBatches(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// ChunkSize returns the configured chunk size.
func (s *Service) ChunkSize() int {
	return s.coordinator.ChunkSize()
}
