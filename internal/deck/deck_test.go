package deck

import (
	"testing"

	"github.com/dmallory/deepcfr/internal/randutil"
)

func TestParseRoundTrip(t *testing.T) {
	for _, s := range []string{"As", "2c", "Td", "Kh", "9s"} {
		c, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if c.String() != s {
			t.Errorf("Parse(%q).String() = %q", s, c.String())
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, s := range []string{"", "A", "Ax", "1s", "AsKs"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) should fail", s)
		}
	}
}

func TestIndexRoundTrip(t *testing.T) {
	for i := 0; i < 52; i++ {
		if got := FromIndex(i).Index(); got != i {
			t.Fatalf("FromIndex(%d).Index() = %d", i, got)
		}
	}
}

func TestNewWithout(t *testing.T) {
	removed := []Card{MustParse("As"), MustParse("Kd")}
	d := NewWithout(removed...)
	if d.Remaining() != 50 {
		t.Fatalf("Remaining() = %d, want 50", d.Remaining())
	}
	for d.Remaining() > 0 {
		c, _ := d.Deal()
		for _, r := range removed {
			if c == r {
				t.Fatalf("dealt removed card %s", c)
			}
		}
	}
}

func TestShuffleDeterministic(t *testing.T) {
	a := New()
	b := New()
	a.Shuffle(randutil.New(7))
	b.Shuffle(randutil.New(7))
	for a.Remaining() > 0 {
		ca, _ := a.Deal()
		cb, _ := b.Deal()
		if ca != cb {
			t.Fatalf("same seed produced different orders: %s vs %s", ca, cb)
		}
	}
}

func TestParseCards(t *testing.T) {
	cards, err := ParseCards("AsKd 2c")
	if err != nil {
		t.Fatalf("ParseCards: %v", err)
	}
	if len(cards) != 3 {
		t.Fatalf("len = %d, want 3", len(cards))
	}
	if cards[1].String() != "Kd" {
		t.Errorf("cards[1] = %s, want Kd", cards[1])
	}
}
