// Package share groups uploaded files under one addressable identifier, resolves
// that identifier back to its member objects, and streams individual files.
//
// A group has no record of its own. It exists while at least one object is stored
// under the "{group}/" key prefix and silently disappears with its last object.
package share

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidGroupID is returned when a string is not a canonical group identifier.
var ErrInvalidGroupID = errors.New("invalid group identifier")

// GroupID is an opaque 128-bit random token addressing one upload batch.
type GroupID uuid.UUID

// NewGroupID draws a fresh identifier from crypto/rand. Uniqueness is probabilistic;
// no registry is consulted.
func NewGroupID() (GroupID, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return GroupID{}, fmt.Errorf("generate group id: %w", err)
	}
	return GroupID(id), nil
}

// ParseGroupID accepts only the canonical 36-character hyphenated form
// (either letter case). Braced, URN and unhyphenated renderings are rejected.
func ParseGroupID(s string) (GroupID, error) {
	id, err := uuid.Parse(s)
	if err != nil || !strings.EqualFold(id.String(), s) {
		return GroupID{}, fmt.Errorf("%w: %q", ErrInvalidGroupID, s)
	}
	return GroupID(id), nil
}

// String renders the canonical lowercase form used in object keys and links.
func (g GroupID) String() string {
	return uuid.UUID(g).String()
}

// Prefix is the key prefix shared by every object in the group.
func (g GroupID) Prefix() string {
	return g.String() + "/"
}

// Key builds the object key for a file in the group. The name is kept verbatim.
func (g GroupID) Key(name string) string {
	return g.Prefix() + name
}
