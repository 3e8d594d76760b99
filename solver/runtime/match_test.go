package runtime

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayMatchRunsToCompletion(t *testing.T) {
	bp := toyBlueprint(t)
	policy, err := NewPolicy(bp, 5)
	require.NoError(t, err)

	hero := &PolicyAgent{Label: "trained", Policy: policy}
	baseline, err := NewRandomAgent("uniform", bp.Abstraction, 6)
	require.NoError(t, err)

	res, err := PlayMatch(context.Background(), hero, baseline, MatchConfig{
		Hands:      100,
		SmallBlind: bp.SmallBlind,
		BigBlind:   bp.BigBlind,
		StackDepth: bp.StackDepth,
		Seed:       42,
		Mirror:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, 200, res.HandsPlayed, "mirror plays each deal twice")
	assert.False(t, math.IsNaN(res.BBPerHandA))
	assert.InDelta(t, res.BBPerHandA*100, res.BBPer100A, 1e-9)
	assert.GreaterOrEqual(t, res.CI95, 0.0)
}

func TestPlayMatchTrainedBeatsUniformOverManyHands(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping long match in short mode")
	}
	bp := toyBlueprint(t)
	policy, err := NewPolicy(bp, 5)
	require.NoError(t, err)

	hero := &PolicyAgent{Label: "trained", Policy: policy}
	baseline, err := NewRandomAgent("uniform", bp.Abstraction, 6)
	require.NoError(t, err)

	res, err := PlayMatch(context.Background(), hero, baseline, MatchConfig{
		Hands:      2000,
		SmallBlind: bp.SmallBlind,
		BigBlind:   bp.BigBlind,
		StackDepth: bp.StackDepth,
		Seed:       42,
		Mirror:     true,
	})
	require.NoError(t, err)
	assert.Greater(t, res.BBPerHandA, 0.0,
		"trained strategy lost to a uniform baseline: %.3f bb/hand", res.BBPerHandA)
}

func TestPlayMatchMirrorCancelsDealLuck(t *testing.T) {
	bp := toyBlueprint(t)
	policyA, err := NewPolicy(bp, 5)
	require.NoError(t, err)
	policyB, err := NewPolicy(bp, 5)
	require.NoError(t, err)

	// The same deterministic strategy on both sides of mirrored deals
	// plays identical hands from each seat, so chips cancel exactly.
	a := &deterministicAgent{inner: &PolicyAgent{Label: "a", Policy: policyA}}
	b := &deterministicAgent{inner: &PolicyAgent{Label: "b", Policy: policyB}}

	res, err := PlayMatch(context.Background(), a, b, MatchConfig{
		Hands:      50,
		SmallBlind: bp.SmallBlind,
		BigBlind:   bp.BigBlind,
		StackDepth: bp.StackDepth,
		Seed:       9,
		Mirror:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.NetChipsA)
	assert.InDelta(t, 0.0, res.BBPerHandA, 1e-9)
}

func TestPlayMatchValidatesConfig(t *testing.T) {
	bp := toyBlueprint(t)
	policy, err := NewPolicy(bp, 5)
	require.NoError(t, err)
	hero := &PolicyAgent{Label: "a", Policy: policy}

	_, err = PlayMatch(context.Background(), hero, hero, MatchConfig{Hands: 0})
	require.Error(t, err)
}

// deterministicAgent forces argmax decisions for reproducible matches.
type deterministicAgent struct {
	inner *PolicyAgent
}

func (d *deterministicAgent) Name() string { return d.inner.Name() }

func (d *deterministicAgent) Act(ctx context.Context, state RawState) (Decision, error) {
	state.Deterministic = true
	return d.inner.Act(ctx, state)
}
