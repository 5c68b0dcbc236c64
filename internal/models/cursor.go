package models

import (
	"strconv"
	"strings"
)

// Cursor is an opaque, monotonically increasing position in a mailbox's change history
// (a Gmail historyId or an IMAP UID).
type Cursor string

// Uint parses the cursor as an unsigned integer
func (c Cursor) Uint() (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(string(c)), 10, 64)
}

// After reports whether c is strictly newer than other. Non-numeric cursors
// fall back to inequality so they are never treated as stale.
func (c Cursor) After(other Cursor) bool {
	a, errA := c.Uint()
	b, errB := other.Uint()
	if errA != nil || errB != nil {
		return c != other
	}
	return a > b
}

// CursorFromUint formats a numeric cursor
func CursorFromUint(v uint64) Cursor {
	return Cursor(strconv.FormatUint(v, 10))
}
