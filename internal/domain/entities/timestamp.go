package entities

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTimestampAbsent  = errors.New("timestamp is absent")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

// Timestamp is an instant stored as epoch seconds (UTC).
//
// Documents written by different producers encode instants as integers,
// floats or numeric strings; all of them decode to the same value. A value
// that cannot be decoded is kept verbatim and reported by Time, so one bad
// field never makes the whole document unreadable.
type Timestamp struct {
	seconds int64
	valid   bool
	raw     json.RawMessage
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{seconds: t.Unix(), valid: true}
}

func TimestampFromUnix(sec int64) Timestamp {
	return Timestamp{seconds: sec, valid: true}
}

// IsSet reports whether the document carries a usable value. Zero and empty
// strings are treated as unset, matching how producers clear a due date.
func (ts *Timestamp) IsSet() bool {
	if ts == nil {
		return false
	}
	if ts.valid {
		return ts.seconds != 0
	}
	return len(ts.raw) > 0
}

// Time returns the UTC instant.
func (ts *Timestamp) Time() (time.Time, error) {
	if !ts.IsSet() {
		return time.Time{}, ErrTimestampAbsent
	}
	if !ts.valid {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidTimestamp, string(ts.raw))
	}
	return time.Unix(ts.seconds, 0).UTC(), nil
}

// Unix returns epoch seconds, or 0 when the value is absent or invalid.
func (ts *Timestamp) Unix() int64 {
	if ts == nil || !ts.valid {
		return 0
	}
	return ts.seconds
}

// Raw returns the value as it appeared in the document.
func (ts *Timestamp) Raw() string {
	if ts == nil {
		return ""
	}
	if ts.valid {
		return strconv.FormatInt(ts.seconds, 10)
	}
	return string(ts.raw)
}

// Equal compares decoded values, falling back to the raw text for invalid ones.
func (ts *Timestamp) Equal(other *Timestamp) bool {
	if ts.IsSet() != other.IsSet() {
		return false
	}
	if !ts.IsSet() {
		return true
	}
	if ts.valid != other.valid {
		return false
	}
	if ts.valid {
		return ts.seconds == other.seconds
	}
	return bytes.Equal(ts.raw, other.raw)
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if !ts.valid {
		if len(ts.raw) == 0 {
			return []byte("null"), nil
		}
		return ts.raw, nil
	}
	return []byte(strconv.FormatInt(ts.seconds, 10)), nil
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*ts = Timestamp{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			ts.raw = append(json.RawMessage(nil), data...)
			return nil
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		if sec, ok := parseEpoch(s); ok {
			ts.seconds, ts.valid = sec, true
			return nil
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			ts.seconds, ts.valid = t.Unix(), true
			return nil
		}
		ts.raw = append(json.RawMessage(nil), data...)
		return nil
	}

	if sec, ok := parseEpoch(string(data)); ok {
		ts.seconds, ts.valid = sec, true
		return nil
	}
	ts.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (ts *Timestamp) clone() *Timestamp {
	if ts == nil {
		return nil
	}
	out := *ts
	out.raw = append(json.RawMessage(nil), ts.raw...)
	return &out
}

// parseEpoch accepts integer or fractional seconds; fractions are truncated.
func parseEpoch(s string) (int64, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}
