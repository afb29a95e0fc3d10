package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrInvalidPayload is returned for a request body that is not a batch.
var ErrInvalidPayload = errors.New("invalid payload")

// DecodeBatch accepts the body shapes terminals send:
//
//	{"operation": "INSERT", "data": [{...}, ...]}
//	{"operation": "UPDATE", "data": {...}}
//	{"new_data": {...}}
//	[{...}, ...]
//	{...}
//
// An object is an envelope when it carries a data or new_data key; any other
// object is a single record.
func DecodeBatch(body []byte) (Operation, []*Record, error) {
	body = bytes.TrimSpace(sanitizeBody(body))
	if len(body) == 0 {
		return "", nil, fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}

	switch body[0] {
	case '[':
		records, err := decodeRecords(body)
		return OpUnspecified, records, err
	case '{':
	default:
		return "", nil, fmt.Errorf("%w: body must be a JSON object or array", ErrInvalidPayload)
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	data, ok := env["data"]
	if !ok {
		data, ok = env["new_data"]
	}
	if !ok {
		records, err := decodeRecords(body)
		return OpUnspecified, records, err
	}

	var op Operation
	if raw, ok := env["operation"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", nil, fmt.Errorf("%w: operation must be a string", ErrInvalidPayload)
		}
		op = ParseOperation(s)
	}

	records, err := decodeRecords(data)
	return op, records, err
}

// decodeRecords reads one record or an array of records. Array elements that
// are null stay nil and are reported per record by the engine.
func decodeRecords(raw json.RawMessage) ([]*Record, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '[' {
		var records []*Record
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return records, nil
	}

	rec := NewRecord()
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return []*Record{rec}, nil
}

// sanitizeBody drops a leading UTF-8 BOM and replaces invalid UTF-8 with
// U+FFFD. Older Windows terminals emit both.
func sanitizeBody(body []byte) []byte {
	body = bytes.TrimPrefix(body, utf8BOM)
	if utf8.Valid(body) {
		return body
	}
	return bytes.ToValidUTF8(body, []byte("\uFFFD"))
}
