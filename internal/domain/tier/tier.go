// Package tier defines the achievement ladder and its forward-only rule.
package tier

import (
	"fmt"
	"strings"
)

// Tier is one step on the ladder. The zero value is None.
type Tier int

// Ladder order. Every comparison reasons about the index, not the name.
const (
	None Tier = iota
	Green
	Bronze
	Silver
	Gold
)

var names = [...]string{"none", "green", "bronze", "silver", "gold"}

// All returns the ladder in order, None first.
func All() []Tier {
	return []Tier{None, Green, Bronze, Silver, Gold}
}

// Parse resolves a tier name case-insensitively.
func Parse(s string) (Tier, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for i, n := range names {
		if n == key {
			return Tier(i), nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownTier, s)
}

// Valid reports whether t is on the ladder.
func (t Tier) Valid() bool {
	return t >= None && t <= Gold
}

// Index returns the ladder position, 0 for None.
func (t Tier) Index() int { return int(t) }

func (t Tier) String() string {
	if !t.Valid() {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return names[t]
}

// Label is the upper-cased name used in reports and messages.
func (t Tier) Label() string {
	return strings.ToUpper(t.String())
}

// Next returns the tier immediately after t. ok is false at Gold.
func (t Tier) Next() (next Tier, ok bool) {
	if !t.Valid() || t == Gold {
		return t, false
	}
	return t + 1, true
}

// Terminal reports whether t is the top of the ladder.
func (t Tier) Terminal() bool { return t == Gold }

// CanAdvance reports whether moving from -> to is allowed: exactly one step
// forward, or the None -> None re-placement. Regression and skipping are
// never allowed.
func CanAdvance(from, to Tier) bool {
	if from == None && to == None {
		return true
	}
	next, ok := from.Next()
	return ok && to == next
}

// MarshalText encodes the tier by name.
func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTier, int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tier name.
func (t *Tier) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
