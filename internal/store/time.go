package store

import (
	"fmt"
	"strings"
	"time"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// Timestamps are written as UTC RFC 3339 text. The driver may hand them back
// as text, bytes or time.Time depending on how the column was declared.
var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"}

func timestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// scanTime converts a scanned column value; NULL and "" give the zero time
func scanTime(value any) (time.Time, error) {
	var s string
	switch v := value.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return v, nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return time.Time{}, fmt.Errorf("unsupported time value type %T", value)
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time format: %q", s)
}

// nullString maps "" to NULL. UNIQUE(checksum) ignores NULLs, so documents
// without a checksum never collide.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
