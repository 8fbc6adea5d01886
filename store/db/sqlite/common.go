package sqlite

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// placeholder returns a placeholder for SQLite (uses ?)
func placeholder(int) string {
	return "?"
}

func placeholders(n int) string {
	list := make([]string, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}

// encodeTimestamps stores an edge's mention history as a JSON array.
func encodeTimestamps(ts []int64) (string, error) {
	if ts == nil {
		ts = []int64{}
	}
	bytes, err := json.Marshal(ts)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal edge timestamps")
	}
	return string(bytes), nil
}

func decodeTimestamps(raw string) ([]int64, error) {
	ts := []int64{}
	if raw == "" {
		return ts, nil
	}
	if err := json.Unmarshal([]byte(raw), &ts); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal edge timestamps")
	}
	return ts, nil
}
