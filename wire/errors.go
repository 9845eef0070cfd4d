package wire

import "errors"

// ErrInvalidEnvelope is returned by Decode for malformed JSON or an action
// outside the closed tag set. Receive paths drop such envelopes silently,
// without logging them, and never crash.
var ErrInvalidEnvelope = errors.New("invalid envelope")
