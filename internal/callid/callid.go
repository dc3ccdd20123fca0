// Package callid keeps tool call identifiers within the length the
// Responses API accepts while preserving the pairing between a function
// call and its output inside one request.
package callid

import (
	"crypto/sha256"
	"encoding/hex"
)

// MaxLength is the longest call id the upstream accepts.
const MaxLength = 64

// Map records the ids that had to be rewritten during one request
// translation. Entries are never replaced. A Map is not safe for
// concurrent use; create one per request.
type Map struct {
	ids map[string]string
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{ids: make(map[string]string)}
}

// Normalize returns an id of at most MaxLength characters for original.
// Ids that already fit are returned unchanged. Longer ids are replaced by
// the hex SHA-256 of the original, and the same original always resolves to
// the same value.
func (m *Map) Normalize(original string) string {
	if original == "" {
		return original
	}
	if norm, ok := m.ids[original]; ok {
		return norm
	}
	if len(original) <= MaxLength {
		return original
	}

	sum := sha256.Sum256([]byte(original))
	norm := hex.EncodeToString(sum[:])
	if m.ids == nil {
		m.ids = make(map[string]string)
	}
	m.ids[original] = norm
	return norm
}
