package spotlight

import (
	"time"

	"github.com/okian/ladder/pkg/logger"
)

// Option configures a Log.
type Option func(*Log)

// WithLocation sets the zone whose calendar defines weeks. Defaults to
// time.Local.
func WithLocation(loc *time.Location) Option {
	return func(l *Log) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithLogger sets the log's logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Log) {
		if lg != nil {
			l.log = lg
		}
	}
}
