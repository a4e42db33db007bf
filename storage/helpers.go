package storage

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// nullString returns a sql.NullString for optional string values.
// Empty strings are stored as NULL.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullTime returns a sql.NullTime for time.Time values.
// Zero times are stored as NULL.
func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// nullTimePtr returns a sql.NullTime for optional *time.Time values.
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// timePtr converts a scanned sql.NullTime back to an optional pointer.
func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// encodeParams converts a parameter map to a JSON NullString for storage.
func encodeParams(params map[string]any) (sql.NullString, error) {
	if len(params) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// decodeParams parses a JSON NullString back to a parameter map.
func decodeParams(raw sql.NullString) map[string]any {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal([]byte(raw.String), &result); err != nil {
		return nil
	}
	return result
}

// GetDefaultDBPath returns the default database path.
// On Windows this lives under ProgramData, elsewhere under /var/lib.
func GetDefaultDBPath() string {
	if runtime.GOOS == "windows" {
		pd := os.Getenv("PROGRAMDATA")
		if pd == "" {
			pd = "C:\\ProgramData"
		}
		return filepath.Join(pd, "Rakuda", "server", "rakuda.db")
	}
	return "/var/lib/rakuda/rakuda.db"
}
