package solver

import (
	"github.com/dmallory/deepcfr/internal/game"
)

// FeatureDim is the fixed length of the encoded decision-point vector fed
// to the networks.
const FeatureDim = 13

// encodeFeatures flattens a decision point into normalized inputs: street
// one-hot, strength bucket, pot and stack scale, pot odds, position and
// betting pressure.
func encodeFeatures(cfg *AbstractionConfig, street game.Street, bucket, potChips, stackChips, toCallChips, startStack int, isButton bool, raisesThisStreet, historyLen int) []float64 {
	f := make([]float64, FeatureDim)
	if street >= game.Preflop && street <= game.River {
		f[int(street)] = 1
	}

	maxBuckets := cfg.PostflopBuckets
	if street == game.Preflop {
		maxBuckets = cfg.PreflopBuckets
	}
	f[4] = float64(bucket) / float64(maxBuckets)
	f[5] = float64(potChips) / float64(2*startStack)
	f[6] = float64(stackChips) / float64(startStack)
	if potChips+toCallChips > 0 {
		f[7] = float64(toCallChips) / float64(potChips+toCallChips)
	}
	spr := float64(stackChips) / float64(potChips+1)
	if spr > 20 {
		spr = 20
	}
	f[8] = spr / 20
	if isButton {
		f[9] = 1
	}
	if cfg.MaxRaisesPerStreet > 0 {
		f[10] = float64(raisesThisStreet) / float64(cfg.MaxRaisesPerStreet)
	}
	f[11] = float64(historyLen) / float64(cfg.MaxHistory)
	f[12] = 1 // bias
	return f
}
