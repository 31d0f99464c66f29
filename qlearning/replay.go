package qlearning

import (
	"fmt"
	"sync"

	"golang.org/x/exp/rand"

	"snake-dqn/game"
)

// Transition is a single step of experience.
type Transition struct {
	State     game.State
	Action    game.Action
	Reward    float64
	Done      bool
	NextState game.State
}

// ReplayMemory is a fixed-capacity ring of transitions. Sampling never changes
// the stored contents. Append and Sample are serialized with each other.
type ReplayMemory struct {
	mu       sync.RWMutex
	buffer   []Transition
	maxSize  int
	position int
	size     int
	rng      *rand.Rand
}

// NewReplayMemory creates an empty memory holding at most maxSize transitions.
func NewReplayMemory(maxSize int, rng *rand.Rand) (*ReplayMemory, error) {
	if err := RequirePositive("replayBufferSize", maxSize); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &ReplayMemory{
		buffer:  make([]Transition, maxSize),
		maxSize: maxSize,
		rng:     rng,
	}, nil
}

// Append stores t, overwriting the oldest transition once the memory is full.
func (m *ReplayMemory) Append(t Transition) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buffer[m.position] = t
	m.position = (m.position + 1) % m.maxSize
	if m.size < m.maxSize {
		m.size++
	}
}

// Sample draws batchSize transitions uniformly at random with replacement.
func (m *ReplayMemory) Sample(batchSize int) ([]Transition, error) {
	if err := RequirePositive("batchSize", batchSize); err != nil {
		return nil, err
	}

	// The write lock also guards the shared rng.
	m.mu.Lock()
	defer m.mu.Unlock()

	if batchSize > m.size {
		return nil, fmt.Errorf("%w: batch of %d requested, %d stored", ErrInsufficientData, batchSize, m.size)
	}
	batch := make([]Transition, batchSize)
	for i := range batch {
		batch[i] = m.buffer[m.rng.Intn(m.size)]
	}
	return batch, nil
}

// Len returns the number of stored transitions.
func (m *ReplayMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Cap returns the capacity.
func (m *ReplayMemory) Cap() int {
	return m.maxSize
}

// Contents returns the stored transitions, oldest first.
func (m *ReplayMemory) Contents() []Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Transition, 0, m.size)
	start := 0
	if m.size == m.maxSize {
		start = m.position
	}
	for i := 0; i < m.size; i++ {
		out = append(out, m.buffer[(start+i)%m.maxSize])
	}
	return out
}
