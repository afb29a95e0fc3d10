package core

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Position is a row's place in change order: its timestamp as stored, then
// its primary key values. Pages are ordered by (Timestamp, Key...).
type Position struct {
	Timestamp string
	Key       []any
}

// ChangesQuery selects rows for an incremental pull. After, when set, takes
// precedence over Since and resumes strictly after that row, so rows sharing
// a timestamp across a page boundary are neither lost nor repeated.
type ChangesQuery struct {
	Since string
	After *Position
	Limit int
}

// ChangesRequest is a caller's incremental pull. Cursor is the Next value of
// a previous page; Since is a timestamp in any form CanonicalTimestamp reads.
type ChangesRequest struct {
	Entity string
	Since  string
	Cursor string
	Limit  int
}

type cursorJSON struct {
	Timestamp string            `json:"t"`
	Key       []json.RawMessage `json:"k"`
}

// EncodeCursor renders pos as an opaque URL-safe token.
func EncodeCursor(pos Position) (string, error) {
	c := cursorJSON{Timestamp: pos.Timestamp, Key: make([]json.RawMessage, len(pos.Key))}
	for i, v := range pos.Key {
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode cursor key: %w", err)
		}
		c.Key[i] = b
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeCursor parses a token from EncodeCursor. Key values come back in the
// form StoreValue hands to drivers.
func DecodeCursor(token string, def *EntityDefinition) (*Position, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", ErrInvalidPayload)
	}
	var c cursorJSON
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", ErrInvalidPayload)
	}
	if c.Timestamp == "" || len(c.Key) != len(def.PrimaryKey()) {
		return nil, fmt.Errorf("%w: cursor does not match entity %s", ErrInvalidPayload, def.Info.Key)
	}

	pos := &Position{Timestamp: c.Timestamp, Key: make([]any, len(c.Key))}
	for i, k := range c.Key {
		dec := json.NewDecoder(bytes.NewReader(k))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: malformed cursor", ErrInvalidPayload)
		}
		pos.Key[i] = StoreValue(v)
	}
	return pos, nil
}

// PositionOf returns rec's place in change order. Stores return the
// timestamp field as text, which is kept verbatim.
func PositionOf(def *EntityDefinition, rec *Record) Position {
	v, _ := rec.Get(def.Timestamp())
	pos := Position{Timestamp: fmt.Sprint(StoreValue(v))}
	for _, col := range def.PrimaryKey() {
		k, _ := rec.Get(col)
		pos.Key = append(pos.Key, StoreValue(k))
	}
	return pos
}
