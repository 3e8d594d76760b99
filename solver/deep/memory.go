package deep

import (
	"encoding/json"
	rand "math/rand/v2"
	"sync"

	"github.com/dmallory/deepcfr/internal/randutil"
)

// Reservoir keeps a fixed-capacity uniform sample of everything ever
// added to it. Once full, the n-th addition replaces a random slot with
// probability capacity/n, which keeps every sample seen so far equally
// likely to be retained.
type Reservoir struct {
	mu       sync.Mutex
	capacity int
	seen     int64
	samples  []Sample
	rng      *rand.Rand
}

// NewReservoir creates an empty reservoir. Capacity must be positive.
func NewReservoir(capacity int, seed int64) *Reservoir {
	if capacity < 1 {
		capacity = 1
	}
	return &Reservoir{
		capacity: capacity,
		samples:  make([]Sample, 0, capacity),
		rng:      randutil.New(seed),
	}
}

// Add offers a sample to the reservoir.
func (r *Reservoir) Add(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen++
	if len(r.samples) < r.capacity {
		r.samples = append(r.samples, s)
		return
	}
	if j := r.rng.Int64N(r.seen); j < int64(r.capacity) {
		r.samples[j] = s
	}
}

// Len returns the number of retained samples.
func (r *Reservoir) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// Seen returns how many samples have ever been offered.
func (r *Reservoir) Seen() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen
}

// Capacity returns the maximum retained sample count.
func (r *Reservoir) Capacity() int { return r.capacity }

// Batch returns up to n retained samples drawn uniformly without
// replacement. The returned slice is safe to hold across later Adds.
func (r *Reservoir) Batch(n int) []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > len(r.samples) {
		n = len(r.samples)
	}
	batch := make([]Sample, 0, n)
	for _, idx := range r.rng.Perm(len(r.samples))[:n] {
		batch = append(batch, r.samples[idx])
	}
	return batch
}

// reservoirState is the serialized form. The generator is reseeded on
// load from the sample count, so restored runs stay deterministic without
// persisting generator internals.
type reservoirState struct {
	Capacity int      `json:"capacity"`
	Seen     int64    `json:"seen"`
	Samples  []Sample `json:"samples"`
}

// MarshalJSON serializes the reservoir contents.
func (r *Reservoir) MarshalJSON() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return json.Marshal(reservoirState{
		Capacity: r.capacity,
		Seen:     r.seen,
		Samples:  r.samples,
	})
}

// UnmarshalJSON restores reservoir contents.
func (r *Reservoir) UnmarshalJSON(data []byte) error {
	var st reservoirState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capacity = st.Capacity
	if r.capacity < 1 {
		r.capacity = 1
	}
	r.seen = st.Seen
	r.samples = st.Samples
	r.rng = randutil.New(st.Seen)
	return nil
}
