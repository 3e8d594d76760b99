// Package evaluator scores poker hands and estimates equities. Hand
// strength comes from the paulhankin/poker lookup tables; equity is
// estimated by Monte Carlo rollouts against a uniform random opponent.
package evaluator

import (
	"fmt"

	poker "github.com/paulhankin/poker"

	"github.com/dmallory/deepcfr/internal/deck"
)

// toPH converts our card representation into the library's. The library
// numbers aces low (1) where we use 14.
func toPH(c deck.Card) poker.Card {
	var s poker.Suit
	switch c.Suit {
	case deck.Clubs:
		s = poker.Club
	case deck.Diamonds:
		s = poker.Diamond
	case deck.Hearts:
		s = poker.Heart
	default:
		s = poker.Spade
	}
	r := poker.Rank(c.Rank)
	if c.Rank == deck.Ace {
		r = poker.Rank(1)
	}
	card, _ := poker.MakeCard(s, r)
	return card
}

// Rank scores the best five card hand from hole plus board. Higher scores
// beat lower scores. It accepts 5, 6 or 7 total cards.
func Rank(hole, board []deck.Card) (int16, error) {
	n := len(hole) + len(board)
	pcs := make([]poker.Card, 0, n)
	for _, c := range hole {
		pcs = append(pcs, toPH(c))
	}
	for _, c := range board {
		pcs = append(pcs, toPH(c))
	}
	switch n {
	case 7:
		var a7 [7]poker.Card
		copy(a7[:], pcs)
		return poker.Eval7(&a7), nil
	case 6:
		return best5of6(pcs), nil
	case 5:
		var a5 [5]poker.Card
		copy(a5[:], pcs)
		return poker.Eval5(&a5), nil
	default:
		return 0, fmt.Errorf("evaluator: cannot rank %d cards", n)
	}
}

func best5of6(pcs []poker.Card) int16 {
	var five [5]poker.Card
	var best int16 = -1
	for skip := 0; skip < 6; skip++ {
		k := 0
		for i, c := range pcs {
			if i == skip {
				continue
			}
			five[k] = c
			k++
		}
		if score := poker.Eval5(&five); score > best {
			best = score
		}
	}
	return best
}

// Compare returns +1 if hand a beats hand b on the given board, -1 if it
// loses and 0 on a chop.
func Compare(a, b, board []deck.Card) (int, error) {
	ra, err := Rank(a, board)
	if err != nil {
		return 0, err
	}
	rb, err := Rank(b, board)
	if err != nil {
		return 0, err
	}
	switch {
	case ra > rb:
		return 1, nil
	case ra < rb:
		return -1, nil
	default:
		return 0, nil
	}
}

// Describe returns a human readable description of the best hand, e.g.
// "two pair". Used by the CLI for hand playback.
func Describe(hole, board []deck.Card) string {
	pcs := make([]poker.Card, 0, len(hole)+len(board))
	for _, c := range hole {
		pcs = append(pcs, toPH(c))
	}
	for _, c := range board {
		pcs = append(pcs, toPH(c))
	}
	d, err := poker.Describe(pcs)
	if err != nil {
		return "unknown"
	}
	return d
}
