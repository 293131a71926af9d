package codec

import (
	"errors"
	"fmt"
)

// Sentinel kinds for decoding persisted values.
var (
	ErrStorageParse = errors.New("stored value could not be parsed")

	// ErrUnsupportedVersion also matches ErrStorageParse.
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported schema version", ErrStorageParse)
)
