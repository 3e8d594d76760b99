package evaluator

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/dmallory/deepcfr/internal/deck"
	"github.com/dmallory/deepcfr/internal/randutil"
)

// EquityVsRandom estimates the probability that hole wins at showdown
// against a uniformly random opponent hand, with the remaining board cards
// dealt uniformly. Ties count as half a win. The estimate is deterministic
// for a given seed and sample count.
func EquityVsRandom(ctx context.Context, hole, board []deck.Card, samples int, seed int64) (float64, error) {
	if len(hole) != 2 {
		return 0, fmt.Errorf("evaluator: need 2 hole cards, got %d", len(hole))
	}
	if len(board) > 5 {
		return 0, fmt.Errorf("evaluator: board has %d cards", len(board))
	}
	if samples <= 0 {
		return 0, fmt.Errorf("evaluator: sample count %d", samples)
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > samples {
		workers = samples
	}
	perWorker := samples / workers
	extra := samples % workers

	type tally struct {
		wins float64
		n    int
	}
	results := make([]tally, workers)

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		n := perWorker
		if w < extra {
			n++
		}
		g.Go(func() error {
			rng := randutil.Derive(seed, w)
			base := deck.NewWithout(append(append([]deck.Card{}, hole...), board...)...)
			need := 2 + (5 - len(board))
			var wins float64
			for i := 0; i < n; i++ {
				if i%1024 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}
				d := base.Clone()
				d.Shuffle(rng)
				drawn := d.DealN(need)
				villain := drawn[:2]
				fullBoard := append(append([]deck.Card{}, board...), drawn[2:]...)
				cmp, err := Compare(hole, villain, fullBoard)
				if err != nil {
					return err
				}
				switch cmp {
				case 1:
					wins++
				case 0:
					wins += 0.5
				}
			}
			results[w] = tally{wins: wins, n: n}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var wins float64
	var total int
	for _, r := range results {
		wins += r.wins
		total += r.n
	}
	return wins / float64(total), nil
}
