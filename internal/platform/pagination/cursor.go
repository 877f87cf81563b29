package pagination

import "errors"

// DefaultPageSize defines the fallback number of items returned when the caller omits pageSize.
const DefaultPageSize = 50

// DefaultMaxPageSize caps the supported pageSize to prevent unbounded queries.
const DefaultMaxPageSize = 100

// Cursor represents the Firestore pagination cursor payload.
type Cursor struct {
	StartAfter []any `json:"startAfter,omitempty"`
	StartAt    []any `json:"startAt,omitempty"`
}

// ErrInvalidPageToken is returned when a page token cannot be decoded.
var ErrInvalidPageToken = errors.New("pagination: invalid pageToken")

// ClampPageSize normalises a requested page size against the defaults.
func ClampPageSize(requested int) int {
	if requested <= 0 {
		return DefaultPageSize
	}
	if requested > DefaultMaxPageSize {
		return DefaultMaxPageSize
	}
	return requested
}
