package qlearning

import (
	"fmt"
	"time"

	"golang.org/x/exp/rand"
	"gorgonia.org/gorgonia"

	"snake-dqn/game"
)

// Environment is the game the agent plays.
type Environment interface {
	Reset()
	State() game.State
	Step(action game.Action) game.StepResult
	Height() int
	Width() int
}

// AgentConfig holds the agent's hyperparameters.
type AgentConfig struct {
	ReplayBufferSize   int
	EpsilonInit        float64
	EpsilonFinal       float64
	EpsilonDecayFrames int
	HiddenUnits        int
	Dropout            float64
	Seed               uint64
}

// StepOutput is returned by PlayStep. On the last frame of an episode it
// carries that episode's totals.
type StepOutput struct {
	Action           game.Action
	CumulativeReward float64
	Done             bool
	FruitsEaten      int
}

// Agent plays the game epsilon-greedily and learns from replayed experience.
// The online network is trained by gradient descent; the target network is
// frozen and only changes through SyncTarget.
type Agent struct {
	env      Environment
	online   TrainableApproximator
	target   Approximator
	memory   *ReplayMemory
	schedule EpsilonSchedule
	rng      *rand.Rand

	replayBufferSize int
	frameCount       int
	cumulativeReward float64
	fruitsEaten      int
}

// AgentOption customizes NewAgent.
type AgentOption func(*Agent)

// WithNetworks replaces the default QNetworks.
func WithNetworks(online TrainableApproximator, target Approximator) AgentOption {
	return func(a *Agent) {
		a.online = online
		a.target = target
	}
}

// NewAgent validates cfg, builds the online and target networks and resets
// the environment.
func NewAgent(env Environment, cfg AgentConfig, opts ...AgentOption) (*Agent, error) {
	schedule, err := NewEpsilonSchedule(cfg.EpsilonInit, cfg.EpsilonFinal, cfg.EpsilonDecayFrames)
	if err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewSource(seed))
	memory, err := NewReplayMemory(cfg.ReplayBufferSize, rand.New(rand.NewSource(seed+1)))
	if err != nil {
		return nil, err
	}

	a := &Agent{
		env:              env,
		memory:           memory,
		schedule:         schedule,
		rng:              rng,
		replayBufferSize: cfg.ReplayBufferSize,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.online == nil {
		online, err := NewQNetwork(NetworkConfig{
			Height:      env.Height(),
			Width:       env.Width(),
			NumActions:  game.NumActions,
			HiddenUnits: cfg.HiddenUnits,
			Dropout:     cfg.Dropout,
			Trainable:   true,
		})
		if err != nil {
			return nil, fmt.Errorf("online network: %w", err)
		}
		a.online = online
	}
	if a.target == nil {
		target, err := NewQNetwork(NetworkConfig{
			Height:      env.Height(),
			Width:       env.Width(),
			NumActions:  game.NumActions,
			HiddenUnits: cfg.HiddenUnits,
			Dropout:     cfg.Dropout,
		})
		if err != nil {
			return nil, fmt.Errorf("target network: %w", err)
		}
		a.target = target
	}
	if a.target.Trainable() {
		return nil, fmt.Errorf("qlearning: target network must be frozen")
	}

	a.reset()
	return a, nil
}

func (a *Agent) reset() {
	a.cumulativeReward = 0
	a.fruitsEaten = 0
	a.env.Reset()
}

// FrameCount returns the number of frames played so far.
func (a *Agent) FrameCount() int { return a.frameCount }

// ReplayBufferSize returns the replay memory capacity.
func (a *Agent) ReplayBufferSize() int { return a.replayBufferSize }

// Memory returns the agent's replay memory.
func (a *Agent) Memory() *ReplayMemory { return a.memory }

// Online returns the online network.
func (a *Agent) Online() TrainableApproximator { return a.online }

// Target returns the target network.
func (a *Agent) Target() Approximator { return a.target }

// Epsilon returns the exploration rate used for the most recent frame.
func (a *Agent) Epsilon() float64 {
	if a.frameCount == 0 {
		return a.schedule.At(0)
	}
	return a.schedule.At(a.frameCount - 1)
}

// PlayStep plays one frame. When the episode ends the returned record still
// holds the episode's totals and the environment is reset afterwards.
func (a *Agent) PlayStep() (StepOutput, error) {
	epsilon := a.schedule.At(a.frameCount)
	a.frameCount++

	state := a.env.State()
	var action game.Action
	if a.rng.Float64() < epsilon {
		action = game.AllActions[a.rng.Intn(game.NumActions)]
	} else {
		var err error
		if action, err = GreedyAction(a.online, state); err != nil {
			return StepOutput{}, err
		}
	}

	res := a.env.Step(action)
	a.memory.Append(Transition{
		State:     state,
		Action:    action,
		Reward:    res.Reward,
		Done:      res.Done,
		NextState: res.State,
	})

	a.cumulativeReward += res.Reward
	if res.FruitEaten {
		a.fruitsEaten++
	}
	out := StepOutput{
		Action:           action,
		CumulativeReward: a.cumulativeReward,
		Done:             res.Done,
		FruitsEaten:      a.fruitsEaten,
	}
	if res.Done {
		a.reset()
	}
	return out, nil
}

// TrainOnReplayBatch performs one gradient step on the online network using a
// batch sampled from replay memory, and returns the loss.
func (a *Agent) TrainOnReplayBatch(batchSize int, gamma float64, solver gorgonia.Solver) (float64, error) {
	batch, err := a.memory.Sample(batchSize)
	if err != nil {
		return 0, err
	}

	states := make([]game.State, len(batch))
	nextStates := make([]game.State, len(batch))
	actions := make([]game.Action, len(batch))
	for i, t := range batch {
		states[i] = t.State
		nextStates[i] = t.NextState
		actions[i] = t.Action
	}

	nextQs, err := a.target.Predict(nextStates)
	if err != nil {
		return 0, fmt.Errorf("target network: %w", err)
	}
	targets := TargetValues(batch, nextQs, gamma)

	loss, err := a.online.Fit(states, actions, targets, solver)
	if err != nil {
		return loss, fmt.Errorf("frame %d: %w", a.frameCount, err)
	}
	return loss, nil
}

// SyncTarget overwrites the target network's weights with the online ones.
func (a *Agent) SyncTarget() error {
	return CopyWeights(a.target, a.online)
}

// SaveOnline checkpoints the online network into dir.
func (a *Agent) SaveOnline(dir string) error {
	s, ok := a.online.(interface{ Save(string) error })
	if !ok {
		return fmt.Errorf("qlearning: online network cannot be saved")
	}
	return s.Save(dir)
}

// TargetValues computes reward + gamma * max_a' Q_target(s', a') * (1 - done)
// for each transition. Terminal transitions get exactly their reward.
func TargetValues(batch []Transition, nextQs [][]float64, gamma float64) []float64 {
	targets := make([]float64, len(batch))
	for i, t := range batch {
		targets[i] = t.Reward
		if !t.Done {
			targets[i] += gamma * nextQs[i][argmax(nextQs[i])]
		}
	}
	return targets
}

// GreedyAction returns the action with the highest predicted Q-value.
func GreedyAction(net Approximator, state game.State) (game.Action, error) {
	qs, err := net.Predict([]game.State{state})
	if err != nil {
		return 0, fmt.Errorf("greedy action: %w", err)
	}
	return game.Action(argmax(qs[0])), nil
}

// argmax returns the index of the largest value, preferring the lowest index
// on ties.
func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
