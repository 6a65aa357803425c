package wire

import "errors"

// ErrPadding is returned when a PADDED frame's pad length is invalid (equal
// to or larger than the remaining payload) or the padding bytes aren't all
// zero. Callers translate this into a stream-scoped PROTOCOL_ERROR.
var ErrPadding = errors.New("wire: invalid padding")
