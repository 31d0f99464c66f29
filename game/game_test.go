package game

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func newTestGame(t *testing.T, cfg Config) *Game {
	t.Helper()
	g, err := NewGame(cfg, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	return g
}

func TestNewGameRejectsBadConfig(t *testing.T) {
	for _, cfg := range []Config{
		{Height: 1, Width: 5, NumFruits: 1, InitLen: 2},
		{Height: 5, Width: 5, NumFruits: 1, InitLen: 6},
		{Height: 5, Width: 5, NumFruits: 0, InitLen: 2},
		{Height: 2, Width: 2, NumFruits: 3, InitLen: 2},
	} {
		_, err := NewGame(cfg, nil)
		require.ErrorIs(t, err, ErrInvalidConfig, "%+v", cfg)
	}
}

func TestResetPlacesSnakeAndFruits(t *testing.T) {
	g := newTestGame(t, Config{Height: 5, Width: 5, NumFruits: 2, InitLen: 3})
	for i := 0; i < 20; i++ {
		g.Reset()
		s := g.State()
		require.Len(t, s.Snake, 3)
		require.Len(t, s.Fruits, 2)
		require.Equal(t, Right, g.Direction())
		require.False(t, g.Done())
		for j := 1; j < len(s.Snake); j++ {
			require.Equal(t, s.Snake[j-1].X-1, s.Snake[j].X)
			require.Equal(t, s.Snake[0].Y, s.Snake[j].Y)
		}
		for _, f := range s.Fruits {
			require.NotContains(t, s.Snake, f)
		}
		require.NotEqual(t, s.Fruits[0], s.Fruits[1])
	}
}

func TestStepIntoWallEndsEpisode(t *testing.T) {
	g := newTestGame(t, Config{Height: 5, Width: 5, NumFruits: 1, InitLen: 2})
	g.snake = []Point{{X: 4, Y: 2}, {X: 3, Y: 2}}
	g.direction = Right
	g.fruits = []Point{{X: 0, Y: 0}}

	res := g.Step(Straight)
	require.True(t, res.Done)
	require.Equal(t, DeathReward, res.Reward)
	require.False(t, res.FruitEaten)

	again := g.Step(Straight)
	require.True(t, again.Done)
	require.Zero(t, again.Reward)
}

func TestStepEatsFruitAndGrows(t *testing.T) {
	g := newTestGame(t, Config{Height: 5, Width: 5, NumFruits: 1, InitLen: 2})
	g.snake = []Point{{X: 2, Y: 2}, {X: 1, Y: 2}}
	g.direction = Right
	g.fruits = []Point{{X: 2, Y: 1}}

	res := g.Step(TurnLeft)
	require.False(t, res.Done)
	require.True(t, res.FruitEaten)
	require.Equal(t, FruitReward, res.Reward)
	require.Equal(t, Up, g.Direction())
	require.Equal(t, []Point{{X: 2, Y: 1}, {X: 2, Y: 2}, {X: 1, Y: 2}}, res.State.Snake)
	require.Len(t, res.State.Fruits, 1)
	require.NotContains(t, res.State.Snake, res.State.Fruits[0])
}

func TestStepWithoutFruitMovesTail(t *testing.T) {
	g := newTestGame(t, Config{Height: 5, Width: 5, NumFruits: 1, InitLen: 2})
	g.snake = []Point{{X: 2, Y: 2}, {X: 1, Y: 2}}
	g.direction = Right
	g.fruits = []Point{{X: 0, Y: 0}}

	res := g.Step(TurnRight)
	require.Equal(t, NoFruitReward, res.Reward)
	require.Equal(t, Down, g.Direction())
	require.Equal(t, []Point{{X: 2, Y: 3}, {X: 2, Y: 2}}, res.State.Snake)
}

func TestHeadMayFollowTail(t *testing.T) {
	g := newTestGame(t, Config{Height: 5, Width: 5, NumFruits: 1, InitLen: 4})
	// A 2x2 loop: the head moves into the cell the tail is leaving.
	g.snake = []Point{{X: 1, Y: 1}, {X: 2, Y: 1}, {X: 2, Y: 2}, {X: 1, Y: 2}}
	g.direction = Left
	g.fruits = []Point{{X: 4, Y: 4}}

	res := g.Step(TurnLeft)
	require.False(t, res.Done)
	require.Equal(t, Point{X: 1, Y: 2}, res.State.Snake[0])
}

func TestSelfCollision(t *testing.T) {
	g := newTestGame(t, Config{Height: 5, Width: 5, NumFruits: 1, InitLen: 5})
	g.snake = []Point{{X: 1, Y: 1}, {X: 2, Y: 1}, {X: 2, Y: 2}, {X: 1, Y: 2}, {X: 0, Y: 2}}
	g.direction = Left
	g.fruits = []Point{{X: 4, Y: 4}}

	res := g.Step(TurnLeft)
	require.True(t, res.Done)
	require.Equal(t, DeathReward, res.Reward)
}

func TestStateSnapshotIsIndependent(t *testing.T) {
	g := newTestGame(t, Config{Height: 5, Width: 5, NumFruits: 1, InitLen: 2})
	s := g.State()
	head := s.Snake[0]
	g.Step(Straight)
	require.Equal(t, head, s.Snake[0])
}

func TestEncode(t *testing.T) {
	s := State{
		Height: 2,
		Width:  3,
		Snake:  []Point{{X: 1, Y: 0}, {X: 0, Y: 0}},
		Fruits: []Point{{X: 2, Y: 1}},
	}
	require.Equal(t, 12, s.Size())
	require.Equal(t, []float64{
		1, 0, 2, 0, 0, 0,
		0, 0, 0, 0, 0, 1,
	}, s.Encoded())
}

func TestActionApply(t *testing.T) {
	require.Equal(t, Left, TurnLeft.Apply(Up))
	require.Equal(t, Up, TurnLeft.Apply(Right))
	require.Equal(t, Right, TurnRight.Apply(Up))
	require.Equal(t, Up, TurnRight.Apply(Left))
	require.Equal(t, Down, Straight.Apply(Down))
}
