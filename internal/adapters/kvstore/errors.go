package kvstore

import "errors"

// Sentinel kinds for store errors.
var (
	ErrEmptyKey = errors.New("kvstore: key cannot be empty")
	ErrClosed   = errors.New("kvstore: store is closed")
	ErrConnect  = errors.New("kvstore: connection failed")
)

var errNullDocument = errors.New("state document is null")
