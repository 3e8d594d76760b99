package solver

import (
	"fmt"
	"math"

	"github.com/dmallory/deepcfr/internal/game"
)

// ActionTag indexes the fixed abstract action space defined by an
// AbstractionConfig: fold, check, call, the configured raise sizes, then
// all-in. Network outputs and regret vectors are indexed by tag.
type ActionTag int

const (
	TagFold  ActionTag = 0
	TagCheck ActionTag = 1
	TagCall  ActionTag = 2
	tagRaise ActionTag = 3
)

// preflopRaiseTag returns the tag of the i-th preflop raise size.
func (c AbstractionConfig) preflopRaiseTag(i int) ActionTag {
	return tagRaise + ActionTag(i)
}

// postflopBetTag returns the tag of the i-th postflop bet size.
func (c AbstractionConfig) postflopBetTag(i int) ActionTag {
	return tagRaise + ActionTag(len(c.PreflopRaises)+i)
}

// allInTag returns the tag for the all-in action.
func (c AbstractionConfig) allInTag() ActionTag {
	return ActionTag(c.NumActionTags() - 1)
}

// TagLabel returns the short label used in info-set histories.
func (c AbstractionConfig) TagLabel(t ActionTag) string {
	switch t {
	case TagFold:
		return "f"
	case TagCheck:
		return "x"
	case TagCall:
		return "c"
	}
	if c.IncludeAllIn && t == c.allInTag() {
		return "a"
	}
	return fmt.Sprintf("r%d", int(t-tagRaise))
}

// ClassifyMove maps an observed concrete move to the nearest abstract
// tag under this config, given the betting context it was made in. Bots
// use it to encode opponent actions into their own history vocabulary.
func (c AbstractionConfig) ClassifyMove(street game.Street, currentBet, potAfterCall int, mv game.Move) ActionTag {
	switch mv.Action {
	case game.Fold:
		return TagFold
	case game.Check:
		return TagCheck
	case game.Call:
		return TagCall
	case game.AllIn:
		if c.IncludeAllIn {
			return c.allInTag()
		}
	}

	nearest := func(sizes []float64, value float64, base ActionTag) ActionTag {
		if len(sizes) == 0 {
			if c.IncludeAllIn {
				return c.allInTag()
			}
			return TagCall
		}
		best := 0
		for i, s := range sizes {
			if math.Abs(s-value) < math.Abs(sizes[best]-value) {
				best = i
			}
		}
		return base + ActionTag(best)
	}

	if street == game.Preflop {
		mult := float64(mv.Amount)
		if currentBet > 0 {
			mult = float64(mv.Amount) / float64(currentBet)
		}
		return nearest(c.PreflopRaises, mult, tagRaise)
	}
	frac := 1.0
	if potAfterCall > 0 {
		frac = float64(mv.Amount-currentBet) / float64(potAfterCall)
	}
	return nearest(c.PostflopBets, frac, tagRaise+ActionTag(len(c.PreflopRaises)))
}

// AbstractAction pairs an action tag with the concrete engine move it
// expands to in a particular state.
type AbstractAction struct {
	Tag  ActionTag
	Move game.Move
}

// LegalActions enumerates the abstract actions available to the active
// player. Raise sizes clamp to the legal [min-raise, all-in] window;
// sizes that land on all-in collapse into the all-in tag, and duplicate
// targets are dropped. raisesThisStreet caps tree depth per the config.
func LegalActions(h *game.HandState, cfg *AbstractionConfig, raisesThisStreet int) []AbstractAction {
	if h.Complete() {
		return nil
	}
	seat := h.Active
	toCall := h.ToCall(seat)

	actions := make([]AbstractAction, 0, cfg.NumActionTags())
	if toCall > 0 {
		actions = append(actions,
			AbstractAction{Tag: TagFold, Move: game.Move{Action: game.Fold}},
			AbstractAction{Tag: TagCall, Move: game.Move{Action: game.Call}},
		)
	} else {
		actions = append(actions, AbstractAction{Tag: TagCheck, Move: game.Move{Action: game.Check}})
	}

	if !h.CanRaise() || raisesThisStreet >= cfg.MaxRaisesPerStreet {
		return actions
	}

	minTo := h.MinRaiseTo()
	maxTo := h.MaxRaiseTo(seat)
	seen := make(map[int]bool)
	addRaise := func(tag ActionTag, target int) {
		if target < minTo {
			target = minTo
		}
		if target >= maxTo {
			return // covered by the all-in tag
		}
		if seen[target] {
			return
		}
		seen[target] = true
		actions = append(actions, AbstractAction{
			Tag:  tag,
			Move: game.Move{Action: game.Raise, Amount: target},
		})
	}

	if h.Street == game.Preflop {
		for i, mult := range cfg.PreflopRaises {
			target := int(math.Round(mult * float64(h.CurrentBet)))
			addRaise(cfg.preflopRaiseTag(i), target)
		}
	} else {
		potAfterCall := h.Pot() + toCall
		for i, frac := range cfg.PostflopBets {
			target := h.CurrentBet + int(math.Round(frac*float64(potAfterCall)))
			addRaise(cfg.postflopBetTag(i), target)
		}
	}

	if cfg.IncludeAllIn && maxTo > h.CurrentBet {
		actions = append(actions, AbstractAction{
			Tag:  cfg.allInTag(),
			Move: game.Move{Action: game.AllIn},
		})
	}
	return actions
}
