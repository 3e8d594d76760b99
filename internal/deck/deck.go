package deck

import (
	rand "math/rand/v2"
)

// Deck is an ordered set of cards dealt from the top. Shuffling requires an
// explicit generator so that hands are reproducible from a seed.
type Deck struct {
	cards []Card
}

// New creates a standard 52-card deck in canonical order.
func New() *Deck {
	d := &Deck{cards: make([]Card, 0, 52)}
	for suit := Spades; suit <= Clubs; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			d.cards = append(d.cards, NewCard(suit, rank))
		}
	}
	return d
}

// NewWithout creates a deck with the given cards removed, preserving
// canonical order. Used when board or hole cards are already fixed.
func NewWithout(removed ...Card) *Deck {
	var mask uint64
	for _, c := range removed {
		mask |= 1 << uint(c.Index())
	}
	d := &Deck{cards: make([]Card, 0, 52-len(removed))}
	for suit := Spades; suit <= Clubs; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			c := NewCard(suit, rank)
			if mask&(1<<uint(c.Index())) == 0 {
				d.cards = append(d.cards, c)
			}
		}
	}
	return d
}

// FromCards returns a deck containing exactly the given cards in order.
// Used where the deal must be fixed, such as replaying known hands.
func FromCards(cards []Card) *Deck {
	return &Deck{cards: append([]Card(nil), cards...)}
}

// Shuffle randomizes the order of the remaining cards.
func (d *Deck) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Deal removes and returns the top card.
func (d *Deck) Deal() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}
	card := d.cards[0]
	d.cards = d.cards[1:]
	return card, true
}

// DealN deals up to n cards from the top.
func (d *Deck) DealN(n int) []Card {
	if n > len(d.cards) {
		n = len(d.cards)
	}
	cards := make([]Card, n)
	for i := range cards {
		cards[i], _ = d.Deal()
	}
	return cards
}

// Remaining returns the number of cards left.
func (d *Deck) Remaining() int {
	return len(d.cards)
}

// Clone returns an independent copy of the deck.
func (d *Deck) Clone() *Deck {
	cards := make([]Card, len(d.cards))
	copy(cards, d.cards)
	return &Deck{cards: cards}
}
