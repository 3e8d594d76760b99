// Package game implements a heads-up no-limit hold'em hand as an explicit
// state machine. States are cheap to clone so that tree search can branch
// on actions without mutating the parent.
package game

// Street identifies a betting round.
type Street int

const (
	Preflop Street = iota
	Flop
	Turn
	River
	Showdown
)

// String returns the street name.
func (s Street) String() string {
	switch s {
	case Preflop:
		return "preflop"
	case Flop:
		return "flop"
	case Turn:
		return "turn"
	case River:
		return "river"
	case Showdown:
		return "showdown"
	default:
		return "unknown"
	}
}

// Action is a player move category.
type Action int

const (
	Fold Action = iota
	Check
	Call
	Raise
	AllIn
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case Fold:
		return "fold"
	case Check:
		return "check"
	case Call:
		return "call"
	case Raise:
		return "raise"
	case AllIn:
		return "all-in"
	default:
		return "unknown"
	}
}

// Move pairs an action with its sizing. Amount is the total a raise brings
// the player's current-street bet to; it is ignored for other actions.
type Move struct {
	Action Action
	Amount int
}
