// Package deep holds the function-approximation side of the solver:
// training samples, reservoir memories and the small fully-connected
// networks that regress advantages and the average policy.
package deep

// Sample is one regression example: an encoded decision point, a target
// vector over the abstract action space, and a weight (the iteration the
// sample was collected on, so later samples count more under linear
// weighting).
type Sample struct {
	Features []float64 `json:"features"`
	Targets  []float64 `json:"targets"`
	Weight   float64   `json:"weight"`
}
