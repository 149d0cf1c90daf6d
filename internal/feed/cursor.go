package feed

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shinyyama/musclecat-chat/internal/model"
)

// Cursor marks a position in the (timestamp, id) order. It is opaque to
// callers outside this package and travels over HTTP in its encoded form.
type Cursor struct {
	Timestamp time.Time `json:"ts"`
	ID        string    `json:"id"`
}

// CursorOf returns the position of a committed message, or nil for a pending one.
func CursorOf(m model.Message) *Cursor {
	if m.Timestamp == nil {
		return nil
	}
	return &Cursor{Timestamp: *m.Timestamp, ID: m.ID}
}

// Before reports whether m sorts strictly before c.
func (c Cursor) Before(m model.Message) bool {
	if m.Timestamp == nil {
		return false
	}
	return compare(*m.Timestamp, m.ID, c.Timestamp, c.ID) < 0
}

// Older reports whether c sorts strictly before o.
func (c Cursor) Older(o Cursor) bool {
	return compare(c.Timestamp, c.ID, o.Timestamp, o.ID) < 0
}

func (c Cursor) Encode() string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

func (c Cursor) String() string {
	return fmt.Sprintf("%s/%s", c.Timestamp.UTC().Format(time.RFC3339Nano), c.ID)
}

// DecodeCursor parses the output of Encode. An empty string yields a nil cursor.
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	if c.ID == "" || c.Timestamp.IsZero() {
		return nil, ErrBadCursor
	}
	return &c, nil
}
