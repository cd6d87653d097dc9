package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/BTreeMap/MemberFlow/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// toMillis converts t to the unix-millisecond form used by the SQLite schema.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func encodeContent(c models.Content) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode artifact content: %w", err)
	}
	return string(b), nil
}

func decodeContent(raw []byte) (models.Content, error) {
	var c models.Content
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("decode artifact content: %w", err)
	}
	return c, nil
}

func encodeProfile(p models.Profile) (string, error) {
	if p == nil {
		p = models.Profile{}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode profile: %w", err)
	}
	return string(b), nil
}

func decodeProfile(raw []byte) (models.Profile, error) {
	p := models.Profile{}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return p, nil
}
