package model

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

// ErrMalformed marks post records that cannot be decoded or carry an invalid timestamp.
var ErrMalformed = errors.New("malformed post record")

// TimestampLayout is the string encoding used by post files.
const TimestampLayout = "2006-01-02 15:04:05"

// ParseTimestamp normalizes the two accepted timestamp encodings (layout string or epoch
// seconds) to a UTC instant.
func ParseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, fmt.Errorf("empty timestamp")
		}
		if ts, err := time.ParseInLocation(TimestampLayout, s, time.UTC); err == nil {
			return ts, nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(n, 0).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return time.Unix(n, 0).UTC(), nil
		}
		f, err := t.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("unparsable timestamp %q", t.String())
		}
		return epochFloat(f)
	case int:
		return time.Unix(int64(t), 0).UTC(), nil
	case int64:
		return time.Unix(t, 0).UTC(), nil
	case float64:
		return epochFloat(t)
	case nil:
		return time.Time{}, fmt.Errorf("missing timestamp")
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func epochFloat(f float64) (time.Time, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("non-finite timestamp %v", f)
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

// DecodePostRecords decodes a per-user post file of the form [[timestamp, text], ...].
// Failures wrap ErrMalformed.
func DecodePostRecords(b []byte) ([]Post, error) {
	posts, err := decodeRecords(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return posts, nil
}

func decodeRecords(b []byte) ([]Post, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw [][]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}
	out := make([]Post, 0, len(raw))
	for i, rec := range raw {
		if len(rec) < 2 {
			return nil, fmt.Errorf("record %d: expected [timestamp, text], got %d fields", i, len(rec))
		}
		ts, err := ParseTimestamp(rec[0])
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		text, ok := rec[1].(string)
		if !ok && rec[1] != nil {
			return nil, fmt.Errorf("record %d: text is %T, want string", i, rec[1])
		}
		out = append(out, Post{Timestamp: ts, Text: text})
	}
	return out, nil
}
