package solver

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/dmallory/deepcfr/internal/deck"
	"github.com/dmallory/deepcfr/internal/evaluator"
	"github.com/dmallory/deepcfr/internal/game"
)

// Mapper collapses concrete cards into strength buckets. Preflop hands map
// through a fixed strength ordering of the 169 canonical classes; postflop
// hands map through Monte Carlo equity percentiles. The same inputs always
// produce the same bucket: equity rollouts are seeded from the cards.
type Mapper struct {
	cfg AbstractionConfig

	// preflop[class] is the bucket for each canonical starting class.
	preflop [169]int

	// equity bucket cache, keyed by a hash of street and cards.
	cache sync.Map
}

// NewMapper validates the config and precomputes the preflop tiering.
func NewMapper(cfg AbstractionConfig) (*Mapper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAbstraction, err)
	}
	m := &Mapper{cfg: cfg}

	// Order the 169 classes by a static strength score, then split the
	// ordering into equal tiers. Bucket 0 is the weakest tier.
	type scored struct {
		class int
		score float64
	}
	all := make([]scored, 169)
	for class := 0; class < 169; class++ {
		all[class] = scored{class: class, score: classScore(class)}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score < all[j].score })
	for pos, s := range all {
		m.preflop[s.class] = pos * cfg.PreflopBuckets / 169
	}
	return m, nil
}

// Config returns the abstraction this mapper was built from.
func (m *Mapper) Config() AbstractionConfig { return m.cfg }

// HoleBucket maps hole cards (plus board, postflop) to a strength bucket.
func (m *Mapper) HoleBucket(ctx context.Context, street game.Street, hole, board []deck.Card) (int, error) {
	if err := validateCards(street, hole, board); err != nil {
		return 0, err
	}
	if street == game.Preflop {
		return m.preflop[classIndex(hole[0], hole[1])], nil
	}

	key := cardsHash(street, hole, board)
	if v, ok := m.cache.Load(key); ok {
		return v.(int), nil
	}
	eq, err := evaluator.EquityVsRandom(ctx, hole, board, m.cfg.EquitySamples, int64(key))
	if err != nil {
		return 0, fmt.Errorf("%w: equity: %v", ErrAbstraction, err)
	}
	b := int(eq * float64(m.cfg.PostflopBuckets))
	if b >= m.cfg.PostflopBuckets {
		b = m.cfg.PostflopBuckets - 1
	}
	m.cache.Store(key, b)
	return b, nil
}

// PotBucket buckets a pot size given in chips.
func (m *Mapper) PotBucket(potChips, bigBlind int) int {
	return thresholdBucket(potChips/bigBlind, m.cfg.PotThresholds)
}

// ToCallBucket buckets a call amount given in chips.
func (m *Mapper) ToCallBucket(toCallChips, bigBlind int) int {
	return thresholdBucket(toCallChips/bigBlind, m.cfg.ToCallThresholds)
}

func thresholdBucket(valueBB int, thresholds []int) int {
	for i, t := range thresholds {
		if valueBB < t {
			return i
		}
	}
	return len(thresholds)
}

func validateCards(street game.Street, hole, board []deck.Card) error {
	if len(hole) != 2 {
		return fmt.Errorf("%w: need 2 hole cards, got %d", ErrAbstraction, len(hole))
	}
	var want int
	switch street {
	case game.Preflop:
		want = 0
	case game.Flop:
		want = 3
	case game.Turn:
		want = 4
	case game.River, game.Showdown:
		want = 5
	default:
		return fmt.Errorf("%w: unknown street %d", ErrAbstraction, street)
	}
	if len(board) != want {
		return fmt.Errorf("%w: %s needs %d board cards, got %d", ErrAbstraction, street, want, len(board))
	}
	var mask uint64
	for _, c := range append(append([]deck.Card{}, hole...), board...) {
		bit := uint64(1) << uint(c.Index())
		if mask&bit != 0 {
			return fmt.Errorf("%w: duplicate card %s", ErrAbstraction, c)
		}
		mask |= bit
	}
	return nil
}

// classIndex returns the canonical 0..168 index of a starting hand:
// 13 pairs, then 78 suited combos, then 78 offsuit combos.
func classIndex(a, b deck.Card) int {
	hi, lo := int(a.Rank), int(b.Rank)
	if hi < lo {
		hi, lo = lo, hi
	}
	if hi == lo {
		return hi - 2
	}
	combo := (hi-3)*(hi-2)/2 + (lo - 2)
	if a.Suit == b.Suit {
		return 13 + combo
	}
	return 13 + 78 + combo
}

// classScore rates a starting class for tiering, adapted from the Chen
// formula: high-card points, pair doubling, suited and connector bonuses,
// gap penalties.
func classScore(class int) float64 {
	hi, lo, suited := classCards(class)
	points := func(r int) float64 {
		switch r {
		case 14:
			return 10
		case 13:
			return 8
		case 12:
			return 7
		case 11:
			return 6
		default:
			return float64(r) / 2
		}
	}
	score := points(hi)
	if hi == lo {
		score *= 2
		if score < 5 {
			score = 5
		}
		return score
	}
	if suited {
		score += 2
	}
	switch gap := hi - lo - 1; {
	case gap == 0:
		// connectors keep full value
	case gap == 1:
		score--
	case gap == 2:
		score -= 2
	case gap == 3:
		score -= 4
	default:
		score -= 5
	}
	if hi < 12 && hi-lo <= 2 {
		score++
	}
	return score
}

// classCards is the inverse of classIndex, returning ranks and suitedness.
func classCards(class int) (hi, lo int, suited bool) {
	if class < 13 {
		return class + 2, class + 2, false
	}
	combo := class - 13
	suited = true
	if combo >= 78 {
		combo -= 78
		suited = false
	}
	hi = 3
	for (hi-3)*(hi-2)/2+(hi-2) <= combo {
		hi++
	}
	lo = combo - (hi-3)*(hi-2)/2 + 2
	return hi, lo, suited
}

// cardsHash derives a stable 64-bit key from street and cards, used both
// for the bucket cache and as the equity sampling seed.
func cardsHash(street game.Street, hole, board []deck.Card) uint64 {
	idx := make([]int, 0, 7)
	for _, c := range hole {
		idx = append(idx, c.Index())
	}
	sort.Ints(idx[:len(hole)])
	bidx := make([]int, 0, 5)
	for _, c := range board {
		bidx = append(bidx, c.Index())
	}
	sort.Ints(bidx)
	idx = append(idx, bidx...)

	h := fnv.New64a()
	h.Write([]byte{byte(street)})
	for _, i := range idx {
		h.Write([]byte{byte(i)})
	}
	return h.Sum64()
}
