package game

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/rand"
)

// Rewards returned by Step.
const (
	FruitReward   = 10.0
	DeathReward   = -10.0
	NoFruitReward = -0.2
)

// ErrInvalidConfig is returned by NewGame for impossible board settings.
var ErrInvalidConfig = errors.New("game: invalid config")

// Config describes the board.
type Config struct {
	Height    int `yaml:"height"`
	Width     int `yaml:"width"`
	NumFruits int `yaml:"numFruits"`
	InitLen   int `yaml:"initLen"`
}

// Validate checks that a snake and its fruits fit on the board.
func (c Config) Validate() error {
	if c.Height < 2 || c.Width < 2 {
		return fmt.Errorf("%w: board %dx%d is smaller than 2x2", ErrInvalidConfig, c.Height, c.Width)
	}
	if c.InitLen < 1 || c.InitLen > c.Width {
		return fmt.Errorf("%w: initLen %d must be in [1, %d]", ErrInvalidConfig, c.InitLen, c.Width)
	}
	if c.NumFruits < 1 || c.NumFruits > c.Height*c.Width-c.InitLen {
		return fmt.Errorf("%w: numFruits %d does not fit the board", ErrInvalidConfig, c.NumFruits)
	}
	return nil
}

// StepResult is the outcome of a single Step.
type StepResult struct {
	State      State
	Reward     float64
	Done       bool
	FruitEaten bool
}

// Game is a single-snake grid game. It is not safe for concurrent use.
type Game struct {
	cfg       Config
	rng       *rand.Rand
	snake     []Point // head first
	direction Direction
	fruits    []Point
	done      bool
	Steps     int
	StartTime time.Time
}

// NewGame creates a game and resets it to an initial state. A nil rng gets a
// time-seeded source.
func NewGame(cfg Config, rng *rand.Rand) (*Game, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	}
	g := &Game{cfg: cfg, rng: rng}
	g.Reset()
	return g, nil
}

// Height returns the number of rows.
func (g *Game) Height() int { return g.cfg.Height }

// Width returns the number of columns.
func (g *Game) Width() int { return g.cfg.Width }

// Done reports whether the current episode has ended.
func (g *Game) Done() bool { return g.done }

// Direction returns the snake's heading.
func (g *Game) Direction() Direction { return g.direction }

// Reset places a new snake facing right with its body trailing to the left,
// and spawns the fruits.
func (g *Game) Reset() {
	head := Point{
		X: g.cfg.InitLen - 1 + g.rng.Intn(g.cfg.Width-g.cfg.InitLen+1),
		Y: g.rng.Intn(g.cfg.Height),
	}
	g.snake = g.snake[:0]
	for i := 0; i < g.cfg.InitLen; i++ {
		g.snake = append(g.snake, Point{X: head.X - i, Y: head.Y})
	}
	g.direction = Right
	g.fruits = g.fruits[:0]
	for len(g.fruits) < g.cfg.NumFruits {
		f, ok := g.generateFruit()
		if !ok {
			break
		}
		g.fruits = append(g.fruits, f)
	}
	g.done = false
	g.Steps = 0
	g.StartTime = time.Now()
}

// State returns a snapshot of the board.
func (g *Game) State() State {
	snake := make([]Point, len(g.snake))
	copy(snake, g.snake)
	fruits := make([]Point, len(g.fruits))
	copy(fruits, g.fruits)
	return State{
		Height: g.cfg.Height,
		Width:  g.cfg.Width,
		Snake:  snake,
		Fruits: fruits,
	}
}

// Step applies a relative action and advances the snake by one cell. Stepping
// a finished game is a no-op that reports Done again with zero reward.
func (g *Game) Step(action Action) StepResult {
	if g.done {
		return StepResult{State: g.State(), Done: true}
	}
	g.Steps++

	g.direction = action.Apply(g.direction)
	newHead := g.snake[0].Add(g.direction.ToPoint())

	fruit := g.fruitIndex(newHead)
	if g.checkCollision(newHead, fruit >= 0) {
		g.done = true
		return StepResult{State: g.State(), Reward: DeathReward, Done: true}
	}

	if fruit < 0 {
		// Move the tail forward.
		copy(g.snake[1:], g.snake[:len(g.snake)-1])
		g.snake[0] = newHead
		return StepResult{State: g.State(), Reward: NoFruitReward}
	}

	g.snake = append(g.snake, Point{})
	copy(g.snake[1:], g.snake[:len(g.snake)-1])
	g.snake[0] = newHead

	g.fruits = append(g.fruits[:fruit], g.fruits[fruit+1:]...)
	if f, ok := g.generateFruit(); ok {
		g.fruits = append(g.fruits, f)
	}
	// A board with no free cell and no fruit left cannot be continued.
	if len(g.fruits) == 0 {
		g.done = true
	}
	return StepResult{State: g.State(), Reward: FruitReward, Done: g.done, FruitEaten: true}
}

// checkCollision reports whether pos is a wall or part of the body. The tail
// cell is free unless the snake grows on this step.
func (g *Game) checkCollision(pos Point, growing bool) bool {
	if pos.X < 0 || pos.X >= g.cfg.Width || pos.Y < 0 || pos.Y >= g.cfg.Height {
		return true
	}
	body := g.snake
	if !growing {
		body = body[:len(body)-1]
	}
	for _, part := range body {
		if pos == part {
			return true
		}
	}
	return false
}

func (g *Game) fruitIndex(pos Point) int {
	for i, f := range g.fruits {
		if f == pos {
			return i
		}
	}
	return -1
}

// generateFruit picks a uniformly random free cell.
func (g *Game) generateFruit() (Point, bool) {
	occupied := make(map[Point]bool, len(g.snake)+len(g.fruits))
	for _, p := range g.snake {
		occupied[p] = true
	}
	for _, p := range g.fruits {
		occupied[p] = true
	}
	free := g.cfg.Height*g.cfg.Width - len(occupied)
	if free <= 0 {
		return Point{}, false
	}
	n := g.rng.Intn(free)
	for y := 0; y < g.cfg.Height; y++ {
		for x := 0; x < g.cfg.Width; x++ {
			p := Point{X: x, Y: y}
			if occupied[p] {
				continue
			}
			if n == 0 {
				return p, true
			}
			n--
		}
	}
	return Point{}, false
}
