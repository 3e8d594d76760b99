package game

import (
	"fmt"
	rand "math/rand/v2"

	"github.com/dmallory/deepcfr/internal/deck"
	"github.com/dmallory/deepcfr/internal/evaluator"
)

// HandState is a heads-up hand in progress. Seat indices are 0 and 1; the
// button posts the small blind and acts first preflop, the other seat acts
// first on every later street.
type HandState struct {
	Players    [2]Player
	Button     int
	Street     Street
	Board      []deck.Card
	Active     int
	SmallBlind int
	BigBlind   int

	// CurrentBet is the per-street amount each player must match.
	// MinRaise is the increment a full raise must add on top of it.
	CurrentBet int
	MinRaise   int

	deck     *deck.Deck
	complete bool
	payoffs  [2]int
}

// NewHand deals a fresh hand. The deck is shuffled with rng so hands are
// reproducible from a seed.
func NewHand(rng *rand.Rand, button int, stacks [2]int, smallBlind, bigBlind int) (*HandState, error) {
	d := deck.New()
	d.Shuffle(rng)
	return newHandFromDeck(d, button, stacks, smallBlind, bigBlind)
}

// NewHandWithDeck deals from a caller-supplied deck. The first four cards
// become hole cards (button first, one at a time alternating), the rest the
// board. Used by tests and best-response evaluation over fixed deals.
func NewHandWithDeck(d *deck.Deck, button int, stacks [2]int, smallBlind, bigBlind int) (*HandState, error) {
	return newHandFromDeck(d, button, stacks, smallBlind, bigBlind)
}

func newHandFromDeck(d *deck.Deck, button int, stacks [2]int, smallBlind, bigBlind int) (*HandState, error) {
	if button != 0 && button != 1 {
		return nil, fmt.Errorf("game: invalid button seat %d", button)
	}
	if smallBlind <= 0 || bigBlind < smallBlind {
		return nil, fmt.Errorf("game: invalid blinds %d/%d", smallBlind, bigBlind)
	}
	if stacks[0] <= 0 || stacks[1] <= 0 {
		return nil, fmt.Errorf("game: invalid stacks %v", stacks)
	}
	if d.Remaining() < 9 {
		return nil, fmt.Errorf("game: deck has %d cards, need 9", d.Remaining())
	}

	h := &HandState{
		Button:     button,
		Street:     Preflop,
		SmallBlind: smallBlind,
		BigBlind:   bigBlind,
		deck:       d,
	}
	h.Players[0].Chips = stacks[0]
	h.Players[1].Chips = stacks[1]

	bb := 1 - button
	for i := 0; i < 2; i++ {
		h.Players[button].Hole = append(h.Players[button].Hole, mustDeal(d))
		h.Players[bb].Hole = append(h.Players[bb].Hole, mustDeal(d))
	}

	h.Players[button].commit(smallBlind)
	h.Players[bb].commit(bigBlind)
	h.CurrentBet = bigBlind
	h.MinRaise = bigBlind
	h.Active = button

	// Short stacks can be all-in from the blinds alone.
	if h.bettingComplete() {
		h.advanceStreet()
	} else if !h.Players[h.Active].canAct() {
		h.Active = 1 - h.Active
	}
	return h, nil
}

func mustDeal(d *deck.Deck) deck.Card {
	c, ok := d.Deal()
	if !ok {
		panic("game: deck exhausted")
	}
	return c
}

// Complete reports whether the hand is over.
func (h *HandState) Complete() bool { return h.complete }

// Payoff returns the net chips won (or lost) by seat. Zero until the hand
// completes. Uncalled bets are returned to the bettor, so the two payoffs
// always sum to zero.
func (h *HandState) Payoff(seat int) int { return h.payoffs[seat] }

// Pot returns the total chips committed by both players.
func (h *HandState) Pot() int {
	return h.Players[0].TotalBet + h.Players[1].TotalBet
}

// ToCall returns the amount seat must add to match the current bet.
func (h *HandState) ToCall(seat int) int {
	tc := h.CurrentBet - h.Players[seat].StreetBet
	if tc < 0 {
		return 0
	}
	return tc
}

// MinRaiseTo returns the smallest legal full-raise target for the active
// player, before stack capping.
func (h *HandState) MinRaiseTo() int {
	return h.CurrentBet + h.MinRaise
}

// MaxRaiseTo returns the largest raise target for seat, i.e. all-in.
func (h *HandState) MaxRaiseTo(seat int) int {
	return h.Players[seat].StreetBet + h.Players[seat].Chips
}

// CanRaise reports whether the active player may raise at all: they need
// chips beyond a call and an opponent who can still respond or has not yet
// matched.
func (h *HandState) CanRaise() bool {
	if h.complete {
		return false
	}
	seat := h.Active
	opp := 1 - seat
	if !h.Players[opp].canAct() {
		return false
	}
	return h.MaxRaiseTo(seat) > h.CurrentBet
}

// Apply advances the hand by one move from the active player.
func (h *HandState) Apply(m Move) error {
	if h.complete {
		return fmt.Errorf("game: hand is complete")
	}
	seat := h.Active
	p := &h.Players[seat]
	toCall := h.ToCall(seat)

	switch m.Action {
	case Fold:
		if toCall == 0 {
			return fmt.Errorf("game: cannot fold when checking is free")
		}
		p.Folded = true
		h.settleFold(1 - seat)
		return nil

	case Check:
		if toCall != 0 {
			return fmt.Errorf("game: cannot check facing a bet of %d", toCall)
		}
		p.Acted = true

	case Call:
		if toCall == 0 {
			return fmt.Errorf("game: nothing to call")
		}
		p.commit(toCall)
		p.Acted = true

	case AllIn:
		target := h.MaxRaiseTo(seat)
		if target > h.CurrentBet && h.Players[1-seat].canAct() {
			return h.applyRaise(target)
		}
		// Jamming for no more than the current bet is a call.
		p.commit(toCall)
		p.Acted = true

	case Raise:
		return h.applyRaise(m.Amount)

	default:
		return fmt.Errorf("game: unknown action %d", m.Action)
	}

	h.advance()
	return nil
}

func (h *HandState) applyRaise(target int) error {
	seat := h.Active
	p := &h.Players[seat]
	opp := &h.Players[1-seat]

	if !opp.canAct() {
		return fmt.Errorf("game: cannot raise an all-in opponent")
	}
	maxTo := h.MaxRaiseTo(seat)
	if target <= h.CurrentBet {
		return fmt.Errorf("game: raise to %d does not exceed current bet %d", target, h.CurrentBet)
	}
	if target > maxTo {
		return fmt.Errorf("game: raise to %d exceeds stack (max %d)", target, maxTo)
	}
	if target < h.MinRaiseTo() && target != maxTo {
		return fmt.Errorf("game: raise to %d below minimum %d", target, h.MinRaiseTo())
	}

	fullRaise := target >= h.MinRaiseTo()
	p.commit(target - p.StreetBet)
	if fullRaise {
		h.MinRaise = target - h.CurrentBet
	}
	h.CurrentBet = target
	p.Acted = true
	if opp.canAct() {
		opp.Acted = false
	}

	h.advance()
	return nil
}

// advance moves the turn or the street forward after an action.
func (h *HandState) advance() {
	if h.bettingComplete() {
		h.advanceStreet()
		return
	}
	next := 1 - h.Active
	if h.Players[next].canAct() {
		h.Active = next
	}
}

// bettingComplete reports whether the current street's action is closed:
// every player who can still act has acted and matched the current bet.
func (h *HandState) bettingComplete() bool {
	for i := range h.Players {
		p := &h.Players[i]
		if !p.canAct() {
			continue
		}
		if !p.Acted || p.StreetBet < h.CurrentBet {
			return false
		}
	}
	return true
}

// advanceStreet deals the next board cards and resets betting. When a
// player is all-in the remaining streets run out automatically.
func (h *HandState) advanceStreet() {
	for {
		if h.Street == River {
			h.settleShowdown()
			return
		}
		h.Street++
		switch h.Street {
		case Flop:
			h.Board = append(h.Board, h.deck.DealN(3)...)
		case Turn, River:
			h.Board = append(h.Board, mustDeal(h.deck))
		}
		h.CurrentBet = 0
		h.MinRaise = h.BigBlind
		for i := range h.Players {
			h.Players[i].StreetBet = 0
			h.Players[i].Acted = false
		}
		if h.Players[0].canAct() && h.Players[1].canAct() {
			// First to act postflop is the non-button seat.
			h.Active = 1 - h.Button
			return
		}
	}
}

func (h *HandState) settleFold(winner int) {
	matched := min(h.Players[0].TotalBet, h.Players[1].TotalBet)
	h.payoffs[winner] = matched
	h.payoffs[1-winner] = -matched
	h.complete = true
	h.Street = Showdown
}

func (h *HandState) settleShowdown() {
	matched := min(h.Players[0].TotalBet, h.Players[1].TotalBet)
	cmp, err := evaluator.Compare(h.Players[0].Hole, h.Players[1].Hole, h.Board)
	if err != nil {
		// Only reachable with a malformed board; treat as a chop.
		cmp = 0
	}
	switch {
	case cmp > 0:
		h.payoffs[0] = matched
		h.payoffs[1] = -matched
	case cmp < 0:
		h.payoffs[0] = -matched
		h.payoffs[1] = matched
	}
	h.complete = true
	h.Street = Showdown
}

// Clone returns an independent deep copy of the hand, including the
// undealt portion of the deck.
func (h *HandState) Clone() *HandState {
	c := *h
	c.Board = append([]deck.Card(nil), h.Board...)
	for i := range c.Players {
		c.Players[i].Hole = append([]deck.Card(nil), h.Players[i].Hole...)
	}
	c.deck = h.deck.Clone()
	return &c
}
