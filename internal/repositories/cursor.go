package repositories

import (
	"strconv"
	"strings"
	"time"
)

// Cursor is the keyset position of the last message of a page.
type Cursor struct {
	CreatedAt time.Time
	ID        int64
}

// String serialises c as "<RFC3339Nano>_<id>".
func (c Cursor) String() string {
	return c.CreatedAt.UTC().Format(time.RFC3339Nano) + "_" + strconv.FormatInt(c.ID, 10)
}

// CursorOf returns the cursor positioned at t/id.
func CursorOf(createdAt time.Time, id int64) Cursor {
	return Cursor{CreatedAt: createdAt, ID: id}
}

var cursorLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// ParseCursor parses a cursor. A bare timestamp is accepted and selects rows
// strictly older than it. The empty string means "from the newest row".
func ParseCursor(raw string) (*Cursor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	stamp, idPart := raw, ""
	if i := strings.LastIndex(raw, "_"); i >= 0 {
		stamp, idPart = raw[:i], raw[i+1:]
	}

	var c Cursor
	if idPart != "" {
		id, err := strconv.ParseInt(idPart, 10, 64)
		if err != nil || id < 0 {
			return nil, ErrInvalidCursor
		}
		c.ID = id
	}
	for _, layout := range cursorLayouts {
		if t, err := time.Parse(layout, stamp); err == nil {
			c.CreatedAt = t.UTC()
			return &c, nil
		}
	}
	return nil, ErrInvalidCursor
}
