// README: Opaque identifiers shared across modules.
package types

import "github.com/google/uuid"

// ID is an opaque session or message identifier.
type ID string

// NewID returns a random identifier for callers that did not supply one.
func NewID() ID {
	return ID(uuid.NewString())
}
