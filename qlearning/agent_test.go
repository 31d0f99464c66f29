package qlearning

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"snake-dqn/game"
)

type scriptedEnv struct {
	results []game.StepResult
	i       int
	resets  int
	actions []game.Action
}

func (e *scriptedEnv) Reset()      { e.resets++ }
func (e *scriptedEnv) Height() int { return 2 }
func (e *scriptedEnv) Width() int  { return 2 }

// State encodes the frame index in the head position.
func (e *scriptedEnv) State() game.State {
	return game.State{Height: 2, Width: 2, Snake: []game.Point{{X: e.i % 2, Y: e.i / 2 % 2}}}
}

func (e *scriptedEnv) Step(a game.Action) game.StepResult {
	e.actions = append(e.actions, a)
	r := e.results[e.i%len(e.results)]
	e.i++
	r.State = e.State()
	return r
}

type stubNet struct {
	out         []float64
	trainable   bool
	weights     Weights
	fits        int
	sets        int
	lastTargets []float64
	lastActions []game.Action
}

func newStubNet(trainable bool, out ...float64) *stubNet {
	return &stubNet{
		out:       out,
		trainable: trainable,
		weights:   Weights{tensor.New(tensor.WithShape(1, 2), tensor.WithBacking([]float64{0, 0}))},
	}
}

func (s *stubNet) Predict(states []game.State) ([][]float64, error) {
	out := make([][]float64, len(states))
	for i := range states {
		out[i] = s.out
	}
	return out, nil
}

func (s *stubNet) Weights() Weights { return s.weights.Clone() }
func (s *stubNet) Trainable() bool  { return s.trainable }

func (s *stubNet) SetWeights(w Weights) error {
	s.sets++
	s.weights = w.Clone()
	return nil
}

func (s *stubNet) Fit(states []game.State, actions []game.Action, targets []float64, _ gorgonia.Solver) (float64, error) {
	s.fits++
	s.lastTargets = targets
	s.lastActions = actions
	copy(s.weights[0].Float64s(), []float64{float64(s.fits), float64(s.fits)})
	return 0.5, nil
}

func greedyConfig() AgentConfig {
	return AgentConfig{
		ReplayBufferSize:   10,
		EpsilonInit:        0,
		EpsilonFinal:       0,
		EpsilonDecayFrames: 10,
		Seed:               42,
	}
}

func TestGreedyActionPrefersLowestIndexOnTies(t *testing.T) {
	for _, tc := range []struct {
		out  []float64
		want game.Action
	}{
		{[]float64{1, 3, 3}, game.Straight},
		{[]float64{5, 5, 5}, game.TurnLeft},
		{[]float64{-2, -3, -1}, game.TurnRight},
	} {
		env := &scriptedEnv{results: []game.StepResult{{Reward: 0}}}
		agent, err := NewAgent(env, greedyConfig(), WithNetworks(newStubNet(true, tc.out...), newStubNet(false)))
		require.NoError(t, err)

		out, err := agent.PlayStep()
		require.NoError(t, err)
		require.Equal(t, tc.want, out.Action, "%v", tc.out)
		require.Equal(t, []game.Action{tc.want}, env.actions)

		action, err := GreedyAction(newStubNet(false, tc.out...), game.State{})
		require.NoError(t, err)
		require.Equal(t, tc.want, action)
	}
}

func TestPlayStepReportsEpisodeTotalsBeforeReset(t *testing.T) {
	env := &scriptedEnv{results: []game.StepResult{
		{Reward: 1, FruitEaten: true},
		{Reward: -0.5},
		{Reward: 2, FruitEaten: true, Done: true},
	}}
	agent, err := NewAgent(env, greedyConfig(), WithNetworks(newStubNet(true, 0, 0, 0), newStubNet(false)))
	require.NoError(t, err)
	require.Equal(t, 1, env.resets)

	var outs []StepOutput
	for i := 0; i < 4; i++ {
		out, err := agent.PlayStep()
		require.NoError(t, err)
		outs = append(outs, out)
	}

	require.Equal(t, 1.0, outs[0].CumulativeReward)
	require.Equal(t, 1, outs[0].FruitsEaten)
	require.Equal(t, 0.5, outs[1].CumulativeReward)
	require.False(t, outs[1].Done)

	require.True(t, outs[2].Done)
	require.Equal(t, 2.5, outs[2].CumulativeReward)
	require.Equal(t, 2, outs[2].FruitsEaten)
	require.Equal(t, 2, env.resets)

	// New episode starts from zero.
	require.Equal(t, 1.0, outs[3].CumulativeReward)
	require.Equal(t, 1, outs[3].FruitsEaten)

	require.Equal(t, 4, agent.FrameCount())
	require.Equal(t, 4, agent.Memory().Len())

	stored := agent.Memory().Contents()
	require.True(t, stored[2].Done)
	require.Equal(t, 2.0, stored[2].Reward)
	require.Equal(t, game.Point{X: 0, Y: 1}, stored[2].State.Snake[0])
	require.Equal(t, game.Point{X: 1, Y: 1}, stored[2].NextState.Snake[0])
}

func TestEpsilonFollowsFrameCount(t *testing.T) {
	env := &scriptedEnv{results: []game.StepResult{{}}}
	cfg := AgentConfig{
		ReplayBufferSize:   10,
		EpsilonInit:        1,
		EpsilonFinal:       0.5,
		EpsilonDecayFrames: 4,
		Seed:               1,
	}
	agent, err := NewAgent(env, cfg, WithNetworks(newStubNet(true, 0, 0, 0), newStubNet(false)))
	require.NoError(t, err)

	require.Equal(t, 1.0, agent.Epsilon())
	_, err = agent.PlayStep()
	require.NoError(t, err)
	require.Equal(t, 1.0, agent.Epsilon())
	_, err = agent.PlayStep()
	require.NoError(t, err)
	require.Equal(t, 0.875, agent.Epsilon())
	for i := 0; i < 5; i++ {
		_, err = agent.PlayStep()
		require.NoError(t, err)
	}
	require.Equal(t, 0.5, agent.Epsilon())
}

func TestTargetValues(t *testing.T) {
	batch := []Transition{
		{Reward: 1, Done: false},
		{Reward: 1, Done: true},
	}
	nextQs := [][]float64{
		{0.5, 2, -1},
		{0.5, 2, -1},
	}
	targets := TargetValues(batch, nextQs, 0.9)
	require.InDelta(t, 2.8, targets[0], 1e-12)
	require.Equal(t, 1.0, targets[1])
}

func TestTrainOnReplayBatchUsesTargetNetworkOnly(t *testing.T) {
	env := &scriptedEnv{results: []game.StepResult{{Reward: 1}, {Reward: 1, Done: true}}}
	online := newStubNet(true, 100, 100, 100)
	target := newStubNet(false, 0.5, 2, -1)
	agent, err := NewAgent(env, greedyConfig(), WithNetworks(online, target))
	require.NoError(t, err)

	_, err = agent.TrainOnReplayBatch(1, 0.9, nil)
	require.ErrorIs(t, err, ErrInsufficientData)

	for i := 0; i < 4; i++ {
		_, err := agent.PlayStep()
		require.NoError(t, err)
	}

	loss, err := agent.TrainOnReplayBatch(4, 0.9, nil)
	require.NoError(t, err)
	require.Equal(t, 0.5, loss)
	require.Equal(t, 1, online.fits)
	require.Zero(t, target.sets)
	require.Len(t, online.lastTargets, 4)
	for _, v := range online.lastTargets {
		require.True(t, v == 1 || math.Abs(v-2.8) < 1e-9, "target %v", v)
	}
	before := target.Weights()[0].Float64s()
	_, err = agent.TrainOnReplayBatch(4, 0.9, nil)
	require.NoError(t, err)
	require.Equal(t, before, target.Weights()[0].Float64s())

	require.NoError(t, agent.SyncTarget())
	require.Equal(t, 1, target.sets)
	require.Equal(t, online.Weights()[0].Float64s(), target.Weights()[0].Float64s())
}

func TestNewAgentValidation(t *testing.T) {
	env := &scriptedEnv{results: []game.StepResult{{}}}
	var cfgErr *ConfigurationError

	cfg := greedyConfig()
	cfg.ReplayBufferSize = 0
	_, err := NewAgent(env, cfg)
	require.ErrorAs(t, err, &cfgErr)

	cfg = greedyConfig()
	cfg.EpsilonDecayFrames = -1
	_, err = NewAgent(env, cfg)
	require.ErrorAs(t, err, &cfgErr)

	_, err = NewAgent(env, greedyConfig(), WithNetworks(newStubNet(true), newStubNet(true)))
	require.Error(t, err)
}

func TestAgentWithQNetworks(t *testing.T) {
	g, err := game.NewGame(game.Config{Height: 4, Width: 4, NumFruits: 1, InitLen: 2}, nil)
	require.NoError(t, err)
	cfg := AgentConfig{
		ReplayBufferSize:   50,
		EpsilonInit:        0.5,
		EpsilonFinal:       0.1,
		EpsilonDecayFrames: 100,
		HiddenUnits:        16,
		Dropout:            0.25,
		Seed:               9,
	}
	agent, err := NewAgent(g, cfg)
	require.NoError(t, err)
	require.True(t, agent.Online().Trainable())
	require.False(t, agent.Target().Trainable())

	for i := 0; i < cfg.ReplayBufferSize; i++ {
		_, err := agent.PlayStep()
		require.NoError(t, err)
	}

	targetBefore := agent.Target().Weights()
	onlineBefore := agent.Online().Weights()
	solver := NewAdamSolver(1e-3, 0)
	for i := 0; i < 3; i++ {
		_, err := agent.TrainOnReplayBatch(8, 0.99, solver)
		require.NoError(t, err)
	}
	requireWeightsEqual(t, targetBefore, agent.Target().Weights())
	require.NotEqual(t, onlineBefore[0].Float64s(), agent.Online().Weights()[0].Float64s())

	require.NoError(t, agent.SyncTarget())
	requireWeightsEqual(t, agent.Online().Weights(), agent.Target().Weights())

	dir := t.TempDir()
	require.NoError(t, agent.SaveOnline(dir))
	restored, err := LoadQNetwork(dir, false)
	require.NoError(t, err)
	requireWeightsEqual(t, agent.Online().Weights(), restored.Weights())
}

func requireWeightsEqual(t *testing.T, want, got Weights) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, want[i].Shape(), got[i].Shape())
		require.Equal(t, want[i].Float64s(), got[i].Float64s())
	}
}
