package tier

import "errors"

// ErrUnknownTier is returned for names or values outside the ladder.
var ErrUnknownTier = errors.New("unknown tier")
