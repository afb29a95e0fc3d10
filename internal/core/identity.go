package core

// FieldValue is one equality condition.
type FieldValue struct {
	Field string
	Value any
}

// Filter is an ordered set of equality conditions, combined with AND.
type Filter []FieldValue

// Fields returns the filter's column names.
func (f Filter) Fields() []string {
	out := make([]string, len(f))
	for i, fv := range f {
		out[i] = fv.Field
	}
	return out
}

// Identity is a usable identity key together with the record's values for it.
type Identity struct {
	Key    IdentityKey
	Filter Filter
}

// Contains reports whether field is one of the identity's components.
func (id Identity) Contains(field string) bool {
	for _, k := range id.Key {
		if k == field {
			return true
		}
	}
	return false
}

// ResolveIdentity returns the first identity key whose components are all
// present and non-null in rec. The primary key wins because it is declared
// first.
func ResolveIdentity(rec *Record, keys []IdentityKey) (Identity, bool) {
	for _, key := range keys {
		if id, ok := identityFor(rec, key); ok {
			return id, true
		}
	}
	return Identity{}, false
}

// AllIdentities returns every usable identity key of rec, in declared order.
func AllIdentities(rec *Record, keys []IdentityKey) []Identity {
	var out []Identity
	for _, key := range keys {
		if id, ok := identityFor(rec, key); ok {
			out = append(out, id)
		}
	}
	return out
}

func identityFor(rec *Record, key IdentityKey) (Identity, bool) {
	if len(key) == 0 {
		return Identity{}, false
	}
	filter := make(Filter, 0, len(key))
	for _, field := range key {
		v, ok := rec.Get(field)
		if !ok || v == nil {
			return Identity{}, false
		}
		filter = append(filter, FieldValue{Field: field, Value: StoreValue(v)})
	}
	return Identity{Key: key, Filter: filter}, true
}
