package qlearning

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"snake-dqn/game"
)

func testStates(n int) []game.State {
	states := make([]game.State, n)
	for i := range states {
		states[i] = game.State{
			Height: 3,
			Width:  3,
			Snake:  []game.Point{{X: i % 3, Y: (i / 3) % 3}},
			Fruits: []game.Point{{X: 2 - i%3, Y: 2}},
		}
	}
	return states
}

func newTestNetwork(t *testing.T, trainable bool, dropout float64) *QNetwork {
	t.Helper()
	n, err := NewQNetwork(NetworkConfig{
		Height:      3,
		Width:       3,
		NumActions:  game.NumActions,
		HiddenUnits: 8,
		Dropout:     dropout,
		Trainable:   trainable,
	})
	require.NoError(t, err)
	t.Cleanup(func() { n.Close() })
	return n
}

func TestQNetworkPredictShape(t *testing.T) {
	n := newTestNetwork(t, false, 0.25)

	for _, batch := range []int{1, 5} {
		qs, err := n.Predict(testStates(batch))
		require.NoError(t, err)
		require.Len(t, qs, batch)
		for _, row := range qs {
			require.Len(t, row, game.NumActions)
		}
	}

	// Inference is deterministic.
	a, err := n.Predict(testStates(4))
	require.NoError(t, err)
	b, err := n.Predict(testStates(4))
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestQNetworkRejectsWrongBoard(t *testing.T) {
	n := newTestNetwork(t, false, 0)
	_, err := n.Predict([]game.State{{Height: 4, Width: 4}})
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestFrozenNetworkRejectsFit(t *testing.T) {
	n := newTestNetwork(t, false, 0)
	before := n.Weights()

	_, err := n.Fit(testStates(2), []game.Action{0, 1}, []float64{1, 2}, NewAdamSolver(0.1, 0))
	require.ErrorIs(t, err, ErrFrozen)
	requireWeightsEqual(t, before, n.Weights())
}

func TestFitReducesLoss(t *testing.T) {
	n := newTestNetwork(t, true, 0)
	states := testStates(6)
	actions := []game.Action{0, 1, 2, 0, 1, 2}
	targets := []float64{1, -1, 2, 0.5, 3, -2}
	solver := NewAdamSolver(1e-2, 0)

	first, err := n.Fit(states, actions, targets, solver)
	require.NoError(t, err)
	last := first
	for i := 0; i < 100; i++ {
		last, err = n.Fit(states, actions, targets, solver)
		require.NoError(t, err)
	}
	require.Less(t, last, first)
}

func TestFitMatchesPredictedLoss(t *testing.T) {
	n := newTestNetwork(t, true, 0)
	states := testStates(3)
	actions := []game.Action{2, 0, 1}
	targets := []float64{0.3, -0.7, 1.1}

	qs, err := n.Predict(states)
	require.NoError(t, err)
	var want float64
	for i, a := range actions {
		d := targets[i] - qs[i][a]
		want += d * d
	}
	want /= float64(len(actions))

	loss, err := n.Fit(states, actions, targets, NewAdamSolver(1e-3, 0))
	require.NoError(t, err)
	require.InDelta(t, want, loss, 1e-9)
}

func TestCopyWeights(t *testing.T) {
	online := newTestNetwork(t, true, 0)
	target := newTestNetwork(t, false, 0)

	require.NoError(t, CopyWeights(target, online))
	requireWeightsEqual(t, online.Weights(), target.Weights())

	a, err := online.Predict(testStates(3))
	require.NoError(t, err)
	b, err := target.Predict(testStates(3))
	require.NoError(t, err)
	require.Equal(t, a, b)

	// Training the online network leaves the copy untouched.
	synced := target.Weights()
	_, err = online.Fit(testStates(3), []game.Action{0, 1, 2}, []float64{5, 5, 5}, NewAdamSolver(1e-2, 0))
	require.NoError(t, err)
	requireWeightsEqual(t, synced, target.Weights())
}

func TestWeightsAreCopies(t *testing.T) {
	n := newTestNetwork(t, true, 0)
	w := n.Weights()
	w[0].Float64s()[0] = 42
	require.NotEqual(t, 42.0, n.Weights()[0].Float64s()[0])
}

func TestSetWeightsShapeMismatch(t *testing.T) {
	n := newTestNetwork(t, true, 0)
	err := n.SetWeights(Weights{tensor.New(tensor.WithShape(2, 2), tensor.WithBacking([]float64{1, 2, 3, 4}))})
	require.ErrorIs(t, err, ErrShapeMismatch)

	w := n.Weights()
	w[1] = tensor.New(tensor.WithShape(1, 3), tensor.WithBacking([]float64{1, 2, 3}))
	require.ErrorIs(t, n.SetWeights(w), ErrShapeMismatch)
}

func TestSaveAndLoadQNetwork(t *testing.T) {
	n := newTestNetwork(t, true, 0.25)
	dir := t.TempDir() + "/nested/dqn"
	require.NoError(t, n.Save(dir))

	restored, err := LoadQNetwork(dir, false)
	require.NoError(t, err)
	require.False(t, restored.Trainable())
	require.Equal(t, n.Config().HiddenUnits, restored.Config().HiddenUnits)
	requireWeightsEqual(t, n.Weights(), restored.Weights())

	_, err = LoadQNetwork(t.TempDir(), false)
	require.Error(t, err)
}

func TestNewQNetworkValidation(t *testing.T) {
	_, err := NewQNetwork(NetworkConfig{Height: 0, Width: 3, NumActions: 3})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	_, err = NewQNetwork(NetworkConfig{Height: 3, Width: 3, NumActions: 3, Dropout: 1})
	require.Error(t, err)
}
