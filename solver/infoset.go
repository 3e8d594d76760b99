package solver

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

const storeShards = 64

// errNonFinite marks a NaN or Inf contribution. Callers discard the
// offending sample instead of failing the run.
var errNonFinite = fmt.Errorf("non-finite contribution")

// InfoSetKey identifies a decision point after abstraction: whose turn it
// is, the street, the hand-strength bucket, bucketed pot and call sizes,
// and the abstract action history so far.
type InfoSetKey struct {
	Player       int    `json:"player"`
	Street       int    `json:"street"`
	Bucket       int    `json:"bucket"`
	PotBucket    int    `json:"pot_bucket"`
	ToCallBucket int    `json:"to_call_bucket"`
	History      string `json:"history"`
}

// String renders the canonical form used for storage and artifacts.
func (k InfoSetKey) String() string {
	return fmt.Sprintf("p%d|s%d|b%d|pot%d|tc%d|%s",
		k.Player, k.Street, k.Bucket, k.PotBucket, k.ToCallBucket, k.History)
}

// ParseInfoSetKey is the inverse of String.
func ParseInfoSetKey(s string) (InfoSetKey, error) {
	parts := strings.SplitN(s, "|", 6)
	if len(parts) != 6 {
		return InfoSetKey{}, fmt.Errorf("malformed info set key %q", s)
	}
	var k InfoSetKey
	if _, err := fmt.Sscanf(parts[0]+" "+parts[1]+" "+parts[2]+" "+parts[3]+" "+parts[4],
		"p%d s%d b%d pot%d tc%d",
		&k.Player, &k.Street, &k.Bucket, &k.PotBucket, &k.ToCallBucket); err != nil {
		return InfoSetKey{}, fmt.Errorf("malformed info set key %q: %v", s, err)
	}
	k.History = parts[5]
	return k, nil
}

// Entry accumulates regret and strategy sums for one information set. The
// slices are indexed by position in the legal action list at that node,
// with Tags recording the abstract tag of each slot.
type Entry struct {
	Tags        []ActionTag
	RegretSum   []float64
	StrategySum []float64
	VisitCount  int64

	mu sync.Mutex
}

// NewEntry creates an entry for a node with the given legal action tags.
func NewEntry(tags []ActionTag) *Entry {
	return &Entry{
		Tags:        append([]ActionTag(nil), tags...),
		RegretSum:   make([]float64, len(tags)),
		StrategySum: make([]float64, len(tags)),
	}
}

// Strategy computes the current strategy by regret matching: positive
// regrets normalized, uniform when no action has positive regret.
func (e *Entry) Strategy() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return matchRegrets(e.RegretSum)
}

// matchRegrets normalizes the positive part of a regret vector into a
// distribution, falling back to uniform.
func matchRegrets(regrets []float64) []float64 {
	strategy := make([]float64, len(regrets))
	var total float64
	for i, r := range regrets {
		if r > 0 {
			strategy[i] = r
			total += r
		}
	}
	if total <= 0 {
		uniform(strategy)
		return strategy
	}
	for i := range strategy {
		strategy[i] /= total
	}
	return strategy
}

func uniform(p []float64) {
	u := 1.0 / float64(len(p))
	for i := range p {
		p[i] = u
	}
}

// Update folds one traversal's instantaneous regrets and strategy into the
// sums. reachWeight is the acting player's own reach probability;
// iterWeight scales the strategy contribution (linear averaging passes
// the iteration number, plain averaging passes 1). Non-finite
// contributions return errNonFinite without touching the accumulators so
// the caller can discard the sample and keep running.
func (e *Entry) Update(regrets, strategy []float64, reachWeight, iterWeight float64) error {
	if len(regrets) != len(e.RegretSum) || len(strategy) != len(e.StrategySum) {
		return fmt.Errorf("update size mismatch: %d/%d actions, entry has %d",
			len(regrets), len(strategy), len(e.RegretSum))
	}
	for _, v := range regrets {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: regret %v", errNonFinite, v)
		}
	}
	for _, v := range strategy {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: strategy weight %v", errNonFinite, v)
		}
	}
	if math.IsNaN(reachWeight) || math.IsInf(reachWeight, 0) {
		return fmt.Errorf("%w: reach weight %v", errNonFinite, reachWeight)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range regrets {
		e.RegretSum[i] += regrets[i]
	}
	for i := range strategy {
		e.StrategySum[i] += strategy[i] * reachWeight * iterWeight
	}
	e.VisitCount++
	return nil
}

// AddStrategyWeight accumulates only the strategy average, used at nodes
// where the player acts but regrets are not updated this traversal.
func (e *Entry) AddStrategyWeight(strategy []float64, reachWeight, iterWeight float64) error {
	if len(strategy) != len(e.StrategySum) {
		return fmt.Errorf("strategy size mismatch: %d, entry has %d", len(strategy), len(e.StrategySum))
	}
	for _, v := range strategy {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: strategy weight %v", errNonFinite, v)
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range strategy {
		e.StrategySum[i] += strategy[i] * reachWeight * iterWeight
	}
	e.VisitCount++
	return nil
}

// AverageStrategy normalizes the accumulated strategy sum. Before any
// visits it is uniform.
func (e *Entry) AverageStrategy() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	avg := make([]float64, len(e.StrategySum))
	var total float64
	for _, v := range e.StrategySum {
		total += v
	}
	if total <= 0 {
		uniform(avg)
		return avg
	}
	for i, v := range e.StrategySum {
		avg[i] = v / total
	}
	return avg
}

// snapshot copies the sums for serialization.
func (e *Entry) snapshot() entrySnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return entrySnapshot{
		Tags:        append([]ActionTag(nil), e.Tags...),
		RegretSum:   append([]float64(nil), e.RegretSum...),
		StrategySum: append([]float64(nil), e.StrategySum...),
		VisitCount:  e.VisitCount,
	}
}

type entrySnapshot struct {
	Tags        []ActionTag `json:"tags"`
	RegretSum   []float64   `json:"regret_sum"`
	StrategySum []float64   `json:"strategy_sum"`
	VisitCount  int64       `json:"visit_count"`
}

// Store is a sharded map from info set keys to entries. Shard locks guard
// the maps; entries carry their own mutex for accumulator updates.
type Store struct {
	shards [storeShards]struct {
		mu      sync.RWMutex
		entries map[string]*Entry
	}
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*Entry)
	}
	return s
}

func shardFor(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % storeShards)
}

// Get returns the entry for key, creating it with the given action tags on
// first sight. Tags must be stable per key; the abstraction guarantees
// that identical keys see identical legal actions.
func (s *Store) Get(key InfoSetKey, tags []ActionTag) *Entry {
	ks := key.String()
	shard := &s.shards[shardFor(ks)]

	shard.mu.RLock()
	e, ok := shard.entries[ks]
	shard.mu.RUnlock()
	if ok {
		return e
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()
	if e, ok = shard.entries[ks]; ok {
		return e
	}
	e = NewEntry(tags)
	shard.entries[ks] = e
	return e
}

// Lookup returns the entry for key without creating it.
func (s *Store) Lookup(key InfoSetKey) (*Entry, bool) {
	ks := key.String()
	shard := &s.shards[shardFor(ks)]
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	e, ok := shard.entries[ks]
	return e, ok
}

// Len returns the number of stored information sets.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		s.shards[i].mu.RLock()
		n += len(s.shards[i].entries)
		s.shards[i].mu.RUnlock()
	}
	return n
}

// Range calls fn for every entry until it returns false. Iteration order
// is unspecified.
func (s *Store) Range(fn func(key string, e *Entry) bool) {
	for i := range s.shards {
		s.shards[i].mu.RLock()
		for k, e := range s.shards[i].entries {
			if !fn(k, e) {
				s.shards[i].mu.RUnlock()
				return
			}
		}
		s.shards[i].mu.RUnlock()
	}
}

// restore installs a deserialized entry, replacing any existing one.
func (s *Store) restore(key string, e *Entry) {
	shard := &s.shards[shardFor(key)]
	shard.mu.Lock()
	shard.entries[key] = e
	shard.mu.Unlock()
}
