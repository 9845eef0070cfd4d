package wire

import "github.com/google/uuid"

// NewCorrelationID returns a fresh, globally-unique, opaque correlation
// identifier. Callers must never parse or attach meaning to its contents.
func NewCorrelationID() string {
	return uuid.NewString()
}
