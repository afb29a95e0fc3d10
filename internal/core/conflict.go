package core

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// TimestampLayout is the canonical modification timestamp form.
// Canonical values sort lexicographically in time order.
const TimestampLayout = "2006-01-02 15:04:05.000"

var (
	tzOffsetPattern = regexp.MustCompile(`[+-]\d{2}(?::?\d{2})?$`)
	wallClock       = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})(?:\.(\d+))?$`)
)

// CanonicalTimestamp converts a modification timestamp to its canonical
// string. The wall-clock digits are never reinterpreted: time zone markers
// are dropped, not applied. Returns false when the value is absent.
func CanonicalTimestamp(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case time.Time:
		if t.IsZero() {
			return "", false
		}
		return t.Format(TimestampLayout), true
	case *time.Time:
		if t == nil || t.IsZero() {
			return "", false
		}
		return t.Format(TimestampLayout), true
	case string:
		return canonicalString(t)
	case json.Number:
		return canonicalString(t.String())
	case []byte:
		return canonicalString(string(t))
	default:
		return canonicalString(fmt.Sprint(t))
	}
}

func canonicalString(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	s = strings.Replace(s, "T", " ", 1)
	s = strings.TrimRight(s, "Zz")
	// Offsets only ever follow the time of day.
	if len(s) > 10 {
		if loc := tzOffsetPattern.FindStringIndex(s[10:]); loc != nil {
			s = s[:10+loc[0]]
		}
	}
	s = strings.TrimSpace(s)

	// Pad or truncate fractional seconds to milliseconds so values read back
	// from stores that drop trailing zeros stay comparable.
	if m := wallClock.FindStringSubmatch(s); m != nil {
		frac := m[2]
		switch {
		case len(frac) > 3:
			frac = frac[:3]
		case len(frac) < 3:
			frac += strings.Repeat("0", 3-len(frac))
		}
		s = m[1] + "." + frac
	}

	if s == "" {
		return "", false
	}
	return s, true
}

// ShouldApply decides whether an incoming mutation supersedes the stored row.
//
//	client  server  apply
//	absent  absent  yes
//	present absent  yes
//	absent  present no
//	present present client > server
//
// Equal timestamps do not apply.
func ShouldApply(client string, hasClient bool, server string, hasServer bool) bool {
	switch {
	case !hasClient && !hasServer:
		return true
	case hasClient && !hasServer:
		return true
	case !hasClient && hasServer:
		return false
	default:
		return client > server
	}
}
