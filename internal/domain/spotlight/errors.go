package spotlight

import "errors"

// ErrInvalidWeekKey is returned for week keys that are not a Monday in
// YYYY-MM-DD form.
var ErrInvalidWeekKey = errors.New("invalid week key")
