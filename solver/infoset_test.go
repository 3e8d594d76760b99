package solver

import (
	"fmt"
	"math"
	rand "math/rand/v2"
	"sync"
	"testing"
)

func TestRegretMatchingNormalizes(t *testing.T) {
	e := NewEntry([]ActionTag{TagFold, TagCall, 3})
	if err := e.Update([]float64{-2, 6, 2}, []float64{0.2, 0.5, 0.3}, 1, 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	s := e.Strategy()
	if s[0] != 0 {
		t.Errorf("negative regret got probability %v", s[0])
	}
	if math.Abs(s[1]-0.75) > 1e-9 || math.Abs(s[2]-0.25) > 1e-9 {
		t.Errorf("strategy = %v, want [0 0.75 0.25]", s)
	}
}

func TestRegretMatchingUniformFallback(t *testing.T) {
	e := NewEntry([]ActionTag{TagFold, TagCall, 3})
	if err := e.Update([]float64{-1, -5, -2}, []float64{1, 0, 0}, 1, 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	for i, p := range e.Strategy() {
		if math.Abs(p-1.0/3) > 1e-9 {
			t.Errorf("action %d: p = %v, want uniform", i, p)
		}
	}
}

func TestStrategySumsToOne(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 0))
	e := NewEntry([]ActionTag{TagFold, TagCall, 3, 4})
	for i := 0; i < 200; i++ {
		regrets := make([]float64, 4)
		strategy := make([]float64, 4)
		for j := range regrets {
			regrets[j] = rng.Float64()*20 - 10
			strategy[j] = rng.Float64()
		}
		if err := e.Update(regrets, strategy, rng.Float64(), float64(i+1)); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		var total float64
		for _, p := range e.Strategy() {
			if p < 0 {
				t.Fatalf("negative probability after update %d", i)
			}
			total += p
		}
		if math.Abs(total-1) > 1e-9 {
			t.Fatalf("strategy sums to %v after update %d", total, i)
		}
	}
}

func TestUpdateRejectsNonFinite(t *testing.T) {
	e := NewEntry([]ActionTag{TagFold, TagCall})
	cases := []struct {
		regrets  []float64
		strategy []float64
	}{
		{[]float64{math.NaN(), 0}, []float64{0.5, 0.5}},
		{[]float64{math.Inf(1), 0}, []float64{0.5, 0.5}},
		{[]float64{1, 0}, []float64{math.NaN(), 0.5}},
	}
	for i, c := range cases {
		if err := e.Update(c.regrets, c.strategy, 1, 1); err == nil {
			t.Errorf("case %d: accepted non-finite update", i)
		}
	}
	if e.RegretSum[0] != 0 || e.StrategySum[0] != 0 {
		t.Error("rejected update mutated the sums")
	}
}

func TestUpdateSizeMismatch(t *testing.T) {
	e := NewEntry([]ActionTag{TagFold, TagCall})
	if err := e.Update([]float64{1, 2, 3}, []float64{1, 2, 3}, 1, 1); err == nil {
		t.Error("accepted update with wrong action count")
	}
}

func TestAverageStrategyWeighting(t *testing.T) {
	e := NewEntry([]ActionTag{TagFold, TagCall})
	// Early iteration plays fold, late iteration plays call. Linear
	// weighting must tilt the average toward the later play.
	if err := e.AddStrategyWeight([]float64{1, 0}, 1, 1); err != nil {
		t.Fatal(err)
	}
	if err := e.AddStrategyWeight([]float64{0, 1}, 1, 9); err != nil {
		t.Fatal(err)
	}
	avg := e.AverageStrategy()
	if math.Abs(avg[0]-0.1) > 1e-9 || math.Abs(avg[1]-0.9) > 1e-9 {
		t.Errorf("average = %v, want [0.1 0.9]", avg)
	}
}

func TestStoreGetStableAcrossGoroutines(t *testing.T) {
	store := NewStore()
	key := InfoSetKey{Player: 1, Street: 2, Bucket: 3, History: "c,r0"}
	tags := []ActionTag{TagFold, TagCall, 3}

	var wg sync.WaitGroup
	entries := make([]*Entry, 16)
	for i := range entries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries[i] = store.Get(key, tags)
		}(i)
	}
	wg.Wait()
	for i := 1; i < len(entries); i++ {
		if entries[i] != entries[0] {
			t.Fatal("concurrent Get returned distinct entries for one key")
		}
	}
	if store.Len() != 1 {
		t.Errorf("store has %d entries, want 1", store.Len())
	}
}

func TestStoreLookupDoesNotCreate(t *testing.T) {
	store := NewStore()
	if _, ok := store.Lookup(InfoSetKey{Bucket: 7}); ok {
		t.Error("lookup reported a missing key")
	}
	if store.Len() != 0 {
		t.Error("lookup created an entry")
	}
}

func TestStoreRangeCoversShards(t *testing.T) {
	store := NewStore()
	for i := 0; i < 500; i++ {
		store.Get(InfoSetKey{Bucket: i, History: fmt.Sprintf("h%d", i)}, []ActionTag{TagFold, TagCall})
	}
	seen := 0
	store.Range(func(key string, e *Entry) bool {
		seen++
		return true
	})
	if seen != 500 {
		t.Errorf("range visited %d entries, want 500", seen)
	}
}

func TestInfoSetKeyRoundTrip(t *testing.T) {
	k := InfoSetKey{Player: 1, Street: 2, Bucket: 17, PotBucket: 3, ToCallBucket: 2, History: "c,r1,a"}
	got, err := ParseInfoSetKey(k.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != k {
		t.Errorf("round trip: got %+v, want %+v", got, k)
	}

	empty := InfoSetKey{Player: 0, Street: 0, Bucket: 5}
	got, err = ParseInfoSetKey(empty.String())
	if err != nil {
		t.Fatalf("parse empty history: %v", err)
	}
	if got != empty {
		t.Errorf("round trip empty history: got %+v, want %+v", got, empty)
	}

	if _, err := ParseInfoSetKey("not-a-key"); err == nil {
		t.Error("parsed a malformed key")
	}
}
