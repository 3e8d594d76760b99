package solver

import (
	"context"
	"errors"
	"testing"

	"github.com/dmallory/deepcfr/internal/deck"
	"github.com/dmallory/deepcfr/internal/game"
)

func cards(t *testing.T, s string) []deck.Card {
	t.Helper()
	cs, err := deck.ParseCards(s)
	if err != nil {
		t.Fatalf("ParseCards(%q): %v", s, err)
	}
	return cs
}

func TestClassIndexCoversAllClasses(t *testing.T) {
	for class := 0; class < 169; class++ {
		hi, lo, suited := classCards(class)
		a := deck.Card{Suit: deck.Spades, Rank: deck.Rank(hi)}
		b := deck.Card{Suit: deck.Hearts, Rank: deck.Rank(lo)}
		if suited {
			b.Suit = deck.Spades
		}
		if hi == lo {
			b.Suit = deck.Hearts
		}
		if got := classIndex(a, b); got != class {
			t.Fatalf("class %d (%d/%d suited=%v): classIndex = %d", class, hi, lo, suited, got)
		}
		// Card order must not matter.
		if got := classIndex(b, a); got != class {
			t.Fatalf("class %d: classIndex order-sensitive", class)
		}
	}
}

func TestPreflopBucketOrdering(t *testing.T) {
	m, err := NewMapper(DefaultAbstraction())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	aa, err := m.HoleBucket(ctx, game.Preflop, cards(t, "As Ah"), nil)
	if err != nil {
		t.Fatal(err)
	}
	junk, err := m.HoleBucket(ctx, game.Preflop, cards(t, "7d 2c"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if aa <= junk {
		t.Errorf("AA bucket %d not above 72o bucket %d", aa, junk)
	}
	if aa != m.Config().PreflopBuckets-1 {
		t.Errorf("AA in bucket %d, want top bucket %d", aa, m.Config().PreflopBuckets-1)
	}
}

func TestPreflopBucketSuitIsolation(t *testing.T) {
	m, err := NewMapper(DefaultAbstraction())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	a, err := m.HoleBucket(ctx, game.Preflop, cards(t, "Kd Qd"), nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.HoleBucket(ctx, game.Preflop, cards(t, "Ks Qs"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("KQs buckets differ by suit: %d vs %d", a, b)
	}
}

func TestPostflopBucketDeterministic(t *testing.T) {
	cfg := FastAbstraction()
	m, err := NewMapper(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	hole := cards(t, "As Ks")
	board := cards(t, "Qs Js 2d")

	first, err := m.HoleBucket(ctx, game.Flop, hole, board)
	if err != nil {
		t.Fatal(err)
	}
	if first < 0 || first >= cfg.PostflopBuckets {
		t.Fatalf("bucket %d out of range [0,%d)", first, cfg.PostflopBuckets)
	}
	// Second lookup hits the cache; a fresh mapper recomputes. Both must
	// agree because sampling is seeded from the cards.
	again, err := m.HoleBucket(ctx, game.Flop, hole, board)
	if err != nil {
		t.Fatal(err)
	}
	fresh, err := NewMapper(cfg)
	if err != nil {
		t.Fatal(err)
	}
	recomputed, err := fresh.HoleBucket(ctx, game.Flop, hole, board)
	if err != nil {
		t.Fatal(err)
	}
	if again != first || recomputed != first {
		t.Errorf("bucket unstable: %d, %d, %d", first, again, recomputed)
	}
}

func TestPostflopBucketReflectsStrength(t *testing.T) {
	m, err := NewMapper(DefaultAbstraction())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	board := cards(t, "Ah Kh 2d 7c 9s")

	nuts, err := m.HoleBucket(ctx, game.River, cards(t, "As Ad"), board)
	if err != nil {
		t.Fatal(err)
	}
	air, err := m.HoleBucket(ctx, game.River, cards(t, "3s 4d"), board)
	if err != nil {
		t.Fatal(err)
	}
	if nuts <= air {
		t.Errorf("top set bucket %d not above busted low cards bucket %d", nuts, air)
	}
}

func TestHoleBucketValidation(t *testing.T) {
	m, err := NewMapper(FastAbstraction())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	cases := []struct {
		name   string
		street game.Street
		hole   []deck.Card
		board  []deck.Card
	}{
		{"one hole card", game.Preflop, cards(t, "As"), nil},
		{"board on preflop", game.Preflop, cards(t, "As Ah"), cards(t, "2d 3d 4d")},
		{"short flop", game.Flop, cards(t, "As Ah"), cards(t, "2d 3d")},
		{"duplicate card", game.Flop, cards(t, "As Ah"), cards(t, "As 3d 4d")},
	}
	for _, c := range cases {
		if _, err := m.HoleBucket(ctx, c.street, c.hole, c.board); !errors.Is(err, ErrAbstraction) {
			t.Errorf("%s: err = %v, want ErrAbstraction", c.name, err)
		}
	}
}

func TestChipBuckets(t *testing.T) {
	m, err := NewMapper(DefaultAbstraction())
	if err != nil {
		t.Fatal(err)
	}
	// Thresholds are in big blinds: [4 8 16 32 64].
	bb := 2
	cases := []struct {
		chips int
		want  int
	}{
		{0, 0},
		{7, 0},    // 3bb
		{8, 1},    // 4bb
		{30, 2},   // 15bb
		{128, 5},  // 64bb
		{1000, 5}, // above the last threshold
	}
	for _, c := range cases {
		if got := m.PotBucket(c.chips, bb); got != c.want {
			t.Errorf("PotBucket(%d chips) = %d, want %d", c.chips, got, c.want)
		}
	}
}

func TestNewMapperRejectsBadConfig(t *testing.T) {
	cfg := DefaultAbstraction()
	cfg.PreflopBuckets = 0
	if _, err := NewMapper(cfg); !errors.Is(err, ErrAbstraction) {
		t.Errorf("err = %v, want ErrAbstraction", err)
	}
}
