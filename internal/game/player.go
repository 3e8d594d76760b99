package game

import "github.com/dmallory/deepcfr/internal/deck"

// Player holds one seat's hand state.
type Player struct {
	Chips     int // remaining stack
	Hole      []deck.Card
	Folded    bool
	AllIn     bool
	StreetBet int // committed this street
	TotalBet  int // committed this hand
	Acted     bool
}

// commit moves chips from the stack into the pot, clamping at the stack.
// It returns the amount actually committed.
func (p *Player) commit(amount int) int {
	if amount >= p.Chips {
		amount = p.Chips
		p.AllIn = true
	}
	p.Chips -= amount
	p.StreetBet += amount
	p.TotalBet += amount
	return amount
}

// canAct reports whether the player still has decisions to make.
func (p *Player) canAct() bool {
	return !p.Folded && !p.AllIn
}
