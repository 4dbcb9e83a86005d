// README: Error taxonomy surfaced by the trip interpretation pipeline.
package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrParseFailure        = errors.New("all parsing strategies failed")
	ErrAmbiguousInput      = errors.New("ambiguous input")
	ErrBackendUnavailable  = errors.New("AI parser not available")
	ErrInvalidModification = errors.New("invalid modification")
)

// InvalidModificationError names the offending value and, when relevant, the current destinations.
type InvalidModificationError struct {
	Value   string
	Current []string
	Reason  string
}

func (e *InvalidModificationError) Error() string {
	var b strings.Builder
	if e.Value != "" {
		fmt.Fprintf(&b, "%q: ", e.Value)
	}
	b.WriteString(e.Reason)
	if len(e.Current) > 0 {
		fmt.Fprintf(&b, " (current destinations: %s)", strings.Join(e.Current, ", "))
	}
	return b.String()
}

func (e *InvalidModificationError) Is(target error) bool {
	return target == ErrInvalidModification
}
