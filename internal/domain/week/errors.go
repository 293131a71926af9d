package week

import "errors"

// ErrInvalidKey marks a string that is not a Monday in YYYY-MM-DD form.
var ErrInvalidKey = errors.New("invalid week key")
