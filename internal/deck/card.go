package deck

import "fmt"

// Suit represents a card suit
type Suit int

const (
	Spades Suit = iota
	Hearts
	Diamonds
	Clubs
)

// String returns the string representation of a suit
func (s Suit) String() string {
	switch s {
	case Spades:
		return "s"
	case Hearts:
		return "h"
	case Diamonds:
		return "d"
	case Clubs:
		return "c"
	default:
		return "?"
	}
}

// Rank represents a card rank
type Rank int

const (
	Two Rank = iota + 2
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

// String returns the string representation of a rank
func (r Rank) String() string {
	switch r {
	case Two:
		return "2"
	case Three:
		return "3"
	case Four:
		return "4"
	case Five:
		return "5"
	case Six:
		return "6"
	case Seven:
		return "7"
	case Eight:
		return "8"
	case Nine:
		return "9"
	case Ten:
		return "T"
	case Jack:
		return "J"
	case Queen:
		return "Q"
	case King:
		return "K"
	case Ace:
		return "A"
	default:
		return "?"
	}
}

// Card represents a playing card
type Card struct {
	Suit Suit
	Rank Rank
}

// NewCard creates a new card
func NewCard(suit Suit, rank Rank) Card {
	return Card{Suit: suit, Rank: rank}
}

// String returns the string representation of a card (e.g., "As")
func (c Card) String() string {
	return fmt.Sprintf("%s%s", c.Rank, c.Suit)
}

// Index returns the card's position in a canonical 52-card ordering,
// suitable for bitsets and hashing.
func (c Card) Index() int {
	return int(c.Suit)*13 + int(c.Rank-Two)
}

// FromIndex is the inverse of Index.
func FromIndex(i int) Card {
	return Card{Suit: Suit(i / 13), Rank: Rank(i%13) + Two}
}

// Parse converts a two character string like "As" or "Td" into a Card.
func Parse(s string) (Card, error) {
	if len(s) != 2 {
		return Card{}, fmt.Errorf("deck: invalid card %q", s)
	}
	var rank Rank
	switch s[0] {
	case '2', '3', '4', '5', '6', '7', '8', '9':
		rank = Rank(s[0]-'2') + Two
	case 'T', 't':
		rank = Ten
	case 'J', 'j':
		rank = Jack
	case 'Q', 'q':
		rank = Queen
	case 'K', 'k':
		rank = King
	case 'A', 'a':
		rank = Ace
	default:
		return Card{}, fmt.Errorf("deck: invalid rank %q", s)
	}
	var suit Suit
	switch s[1] {
	case 's', 'S':
		suit = Spades
	case 'h', 'H':
		suit = Hearts
	case 'd', 'D':
		suit = Diamonds
	case 'c', 'C':
		suit = Clubs
	default:
		return Card{}, fmt.Errorf("deck: invalid suit %q", s)
	}
	return Card{Suit: suit, Rank: rank}, nil
}

// MustParse parses a card string and panics on error. Intended for tests
// and fixed tables.
func MustParse(s string) Card {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseCards parses a space separated list of card strings.
func ParseCards(s string) ([]Card, error) {
	var cards []Card
	for start := 0; start < len(s); {
		if s[start] == ' ' {
			start++
			continue
		}
		if start+2 > len(s) {
			return nil, fmt.Errorf("deck: truncated card list %q", s)
		}
		c, err := Parse(s[start : start+2])
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
		start += 2
	}
	return cards, nil
}
