package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cursor is a (timestamp, id) position in a session's message stream. The
// zero Cursor sits before the first message.
type Cursor struct {
	At time.Time
	ID uint
}

// IsZero reports whether c is the start-of-session cursor.
func (c Cursor) IsZero() bool {
	return c.At.IsZero() && c.ID == 0
}

// Compare returns -1, 0 or +1 depending on whether c sorts before, equal to
// or after o. Timestamps compare first; ids break ties.
func (c Cursor) Compare(o Cursor) int {
	if cmp := c.At.Compare(o.At); cmp != 0 {
		return cmp
	}
	switch {
	case c.ID < o.ID:
		return -1
	case c.ID > o.ID:
		return 1
	}
	return 0
}

// After reports whether c sorts strictly after o.
func (c Cursor) After(o Cursor) bool {
	return c.Compare(o) > 0
}

// String encodes the cursor as "<unix-micro>-<id>", the form used for SSE
// event ids and the --since flag.
func (c Cursor) String() string {
	if c.IsZero() {
		return "0-0"
	}
	return fmt.Sprintf("%d-%d", c.At.UnixMicro(), c.ID)
}

// ParseCursor decodes the String form of a cursor.
func ParseCursor(s string) (Cursor, error) {
	at, id, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Cursor{}, fmt.Errorf("models: invalid cursor %q", s)
	}
	micros, err := strconv.ParseInt(at, 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("models: invalid cursor %q: %w", s, err)
	}
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("models: invalid cursor %q: %w", s, err)
	}
	if micros == 0 && n == 0 {
		return Cursor{}, nil
	}
	return Cursor{At: time.UnixMicro(micros).UTC(), ID: uint(n)}, nil
}
