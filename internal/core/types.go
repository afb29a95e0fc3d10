package core

import (
	"fmt"
	"strings"
)

// Operation is the caller's hint for what a batch is meant to do.
type Operation string

const (
	OpUnspecified Operation = ""
	OpInsert      Operation = "INSERT"
	OpUpdate      Operation = "UPDATE"
	OpCreate      Operation = "CREATE"
	OpDelete      Operation = "DELETE"
)

// ParseOperation normalizes an operation hint. Unknown hints (including the
// terminals' BATCH_SYNC marker) are treated as unspecified.
func ParseOperation(s string) Operation {
	switch Operation(strings.ToUpper(strings.TrimSpace(s))) {
	case OpInsert:
		return OpInsert
	case OpUpdate:
		return OpUpdate
	case OpCreate:
		return OpCreate
	case OpDelete:
		return OpDelete
	default:
		return OpUnspecified
	}
}

// Action is the outcome of applying one record.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped"
	ActionDeleted Action = "deleted"
	ActionFailed  Action = "failed"
)

// Skip and failure reasons reported on ApplyResult.
const (
	ReasonServerNewer      = "server_utime_newer"
	ReasonForeignKey       = "foreign_key_constraint_violation"
	ReasonUniqueConstraint = "unique_constraint_violation"
	ReasonNotFound         = "not_found"
	ReasonChunkAborted     = "chunk_aborted"
)

// Mode selects how a per-record failure affects its chunk.
type Mode int

const (
	// Lenient isolates classified per-record failures behind checkpoints.
	Lenient Mode = iota
	// Strict aborts and rolls back the whole chunk on any failed record.
	Strict
)

func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "lenient"
}

// ParseMode parses "strict" or "lenient" (default).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lenient":
		return Lenient, nil
	case "strict":
		return Strict, nil
	default:
		return Lenient, fmt.Errorf("unknown failure mode %q", s)
	}
}

// FieldSpec declares one column an entity accepts from terminals.
type FieldSpec struct {
	Name     string
	Required bool // must be non-null when a row is created
}

// ForeignKey declares a column that references another entity.
type ForeignKey struct {
	Column     string
	References string // referenced table
}

// EntityInfo contains display information about an entity.
type EntityInfo struct {
	Key   string // Route identifier: "clientes"
	Table string // Store table name, defaults to Key
	Group string // Functional area: "ventas", "stock", "caja"
	Label string // Display name: "Clientes"
}

// IdentityKey is one field combination that uniquely identifies a row.
type IdentityKey []string

func (k IdentityKey) String() string {
	return strings.Join(k, "+")
}

// DefaultTimestampField is the modification timestamp column used by terminals.
const DefaultTimestampField = "utime"

// EntityDefinition contains everything the engine needs to reconcile an entity.
type EntityDefinition struct {
	Info   EntityInfo
	Fields []FieldSpec

	// IdentityKeys lists the primary key first, then alternate unique
	// combinations in declaration order.
	IdentityKeys []IdentityKey

	TimestampField      string
	ForeignKeys         []ForeignKey
	Mode                Mode
	SkipUniqueConflicts bool
}

// TableName returns the store table for the entity.
func (d EntityDefinition) TableName() string {
	if d.Info.Table != "" {
		return d.Info.Table
	}
	return d.Info.Key
}

// Timestamp returns the modification timestamp field name.
func (d EntityDefinition) Timestamp() string {
	if d.TimestampField != "" {
		return d.TimestampField
	}
	return DefaultTimestampField
}

// PrimaryKey returns the first identity key.
func (d EntityDefinition) PrimaryKey() IdentityKey {
	if len(d.IdentityKeys) == 0 {
		return nil
	}
	return d.IdentityKeys[0]
}

// HasField reports whether name is on the entity's allow-list.
func (d EntityDefinition) HasField(name string) bool {
	for _, f := range d.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// FieldNames returns the declared columns in order.
func (d EntityDefinition) FieldNames() []string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return names
}

// ForeignKeyFor returns the declared foreign key on column, if any.
func (d EntityDefinition) ForeignKeyFor(column string) (ForeignKey, bool) {
	for _, fk := range d.ForeignKeys {
		if fk.Column == column {
			return fk, true
		}
	}
	return ForeignKey{}, false
}

// Validate checks that the definition is internally consistent.
func (d EntityDefinition) Validate() error {
	var errs []string
	if d.Info.Key == "" {
		errs = append(errs, "key is required")
	}
	if len(d.Fields) == 0 {
		errs = append(errs, "at least one field is required")
	}
	seen := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		if f.Name == "" {
			errs = append(errs, "field with empty name")
			continue
		}
		if seen[f.Name] {
			errs = append(errs, fmt.Sprintf("duplicate field %q", f.Name))
		}
		seen[f.Name] = true
	}
	if len(d.IdentityKeys) == 0 {
		errs = append(errs, "at least one identity key is required")
	}
	for _, key := range d.IdentityKeys {
		if len(key) == 0 {
			errs = append(errs, "empty identity key")
		}
		for _, col := range key {
			if !seen[col] {
				errs = append(errs, fmt.Sprintf("identity key %s references undeclared field %q", key, col))
			}
		}
	}
	for _, fk := range d.ForeignKeys {
		if !seen[fk.Column] {
			errs = append(errs, fmt.Sprintf("foreign key references undeclared field %q", fk.Column))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("entity %q: %s", d.Info.Key, strings.Join(errs, "; "))
	}
	return nil
}

// BatchRequest is one caller-submitted batch for a single entity.
type BatchRequest struct {
	Entity    string
	Operation Operation
	Records   []*Record
}

// ApplyResult is the outcome of one record, indexed by its position in the
// original batch.
type ApplyResult struct {
	Index           int     `json:"index"`
	Action          Action  `json:"action"`
	Record          *Record `json:"data,omitempty"`
	Reason          string  `json:"reason,omitempty"`
	ServerTimestamp string  `json:"serverUtime,omitempty"`
	ClientTimestamp string  `json:"clientUtime,omitempty"`
	Constraint      string  `json:"constraint,omitempty"`
	Column          string  `json:"column,omitempty"`
	Value           any     `json:"value,omitempty"`
	ReferencedTable string  `json:"referencedTable,omitempty"`
	Error           string  `json:"error,omitempty"`

	err *StoreError
}

// Cause returns the classified store error behind the result, if any.
func (r ApplyResult) Cause() *StoreError {
	return r.err
}

// Applied reports whether the record changed the store.
func (r ApplyResult) Applied() bool {
	switch r.Action {
	case ActionCreated, ActionUpdated, ActionDeleted:
		return true
	}
	return false
}

// ApplyError is the machine-readable detail for a failed record.
type ApplyError struct {
	Index      int     `json:"index"`
	Error      string  `json:"error"`
	ErrorType  string  `json:"errorType"`
	Source     string  `json:"source"`
	ErrorCode  string  `json:"errorCode,omitempty"`
	Constraint string  `json:"constraintName,omitempty"`
	Data       *Record `json:"data,omitempty"`
}

// BatchReport aggregates every ApplyResult of a batch in input order.
type BatchReport struct {
	BatchID   string        `json:"batchId"`
	Entity    string        `json:"entity"`
	Success   bool          `json:"success"`
	Message   string        `json:"message"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Total     int           `json:"total"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Deleted   int           `json:"deleted"`
	Skipped   int           `json:"skipped"`
	Chunks    int           `json:"batches"`
	ChunkSize int           `json:"batchSize"`
	Results   []ApplyResult `json:"results"`
	Errors    []ApplyError  `json:"errors,omitempty"`
}

// Notification carries applied records to downstream subscribers.
type Notification struct {
	BatchID   string    `json:"batchId"`
	Entity    string    `json:"entity"`
	Operation Operation `json:"operation"`
	Terminal  string    `json:"terminal,omitempty"`
	Records   []*Record `json:"records"`
}
