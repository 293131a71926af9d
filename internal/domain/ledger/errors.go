package ledger

import (
	"errors"
	"fmt"

	"github.com/okian/ladder/internal/domain/tier"
)

// ErrTransitionRejected is matched by every *TransitionRejected.
var ErrTransitionRejected = errors.New("transition rejected")

// Rejection reasons, also used as metric labels.
const (
	ReasonSkip     = "skip"
	ReasonBackward = "backward"
	ReasonTerminal = "terminal"
)

// TransitionRejected describes a transition that broke the forward-only rule.
// The ledger is unchanged when it is returned.
type TransitionRejected struct {
	From      tier.Tier
	Requested tier.Tier
	// Expected is the only tier the student may move to next. Meaningless
	// when Terminal is set.
	Expected tier.Tier
	Terminal bool
	Backward bool
}

// Reason returns one of the Reason constants.
func (e *TransitionRejected) Reason() string {
	switch {
	case e.Terminal:
		return ReasonTerminal
	case e.Backward:
		return ReasonBackward
	default:
		return ReasonSkip
	}
}

func (e *TransitionRejected) Error() string {
	switch {
	case e.Terminal:
		return fmt.Sprintf("student is already at %s, the top tier", e.From)
	case e.Backward:
		return fmt.Sprintf("forward only: cannot move from %s back to %s", e.From, e.Requested)
	default:
		return fmt.Sprintf("cannot move from %s to %s, next tier is %s", e.From, e.Requested, e.Expected)
	}
}

// Is makes errors.Is(err, ErrTransitionRejected) hold.
func (e *TransitionRejected) Is(target error) bool {
	return target == ErrTransitionRejected
}

func newRejection(from, to tier.Tier) *TransitionRejected {
	next, ok := from.Next()
	return &TransitionRejected{
		From:      from,
		Requested: to,
		Expected:  next,
		Terminal:  !ok,
		Backward:  to.Index() <= from.Index(),
	}
}
