package ledger

import "github.com/okian/ladder/pkg/logger"

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the ledger's logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Ledger) {
		if l != nil {
			g.log = l
		}
	}
}
