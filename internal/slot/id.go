// SPDX-License-Identifier: MIT

package slot

import (
	"bytes"

	"github.com/google/uuid"
)

// ID identifies one admission request for its whole lifetime.
type ID uuid.UUID

// NewID returns a fresh random slot identity.
func NewID() ID {
	return ID(uuid.New())
}

// ParseID parses the canonical textual form produced by ID.String.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, err
	}
	return ID(u), nil
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}

// Compare orders identities bytewise. It returns -1, 0 or +1.
func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}

// IsZero reports whether id is the zero identity.
func (id ID) IsZero() bool {
	return id == ID{}
}
