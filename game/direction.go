package game

// Point is a cell on the grid. Y grows downwards.
type Point struct {
	X, Y int
}

// Add returns the point moved by d.
func (p Point) Add(d Point) Point {
	return Point{X: p.X + d.X, Y: p.Y + d.Y}
}

// Direction is an absolute heading on the grid.
type Direction int

const (
	Up Direction = iota
	Right
	Down
	Left
)

// ToPoint converts a Direction into a movement vector.
func (d Direction) ToPoint() Point {
	switch d {
	case Up:
		return Point{X: 0, Y: -1}
	case Right:
		return Point{X: 1, Y: 0}
	case Down:
		return Point{X: 0, Y: 1}
	case Left:
		return Point{X: -1, Y: 0}
	default:
		return Point{}
	}
}

// TurnLeft returns the heading after a 90 degree counter-clockwise turn.
func (d Direction) TurnLeft() Direction {
	return (d + 3) % 4
}

// TurnRight returns the heading after a 90 degree clockwise turn.
func (d Direction) TurnRight() Direction {
	return (d + 1) % 4
}

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Right:
		return "right"
	case Down:
		return "down"
	case Left:
		return "left"
	default:
		return "none"
	}
}

// Action is a move relative to the snake's current heading.
//
//	0: turn left
//	1: go straight
//	2: turn right
type Action int

const (
	TurnLeft Action = iota
	Straight
	TurnRight
)

// NumActions is the size of the action set.
const NumActions = 3

// AllActions lists every action in index order.
var AllActions = [NumActions]Action{TurnLeft, Straight, TurnRight}

// Apply converts a relative action into a new absolute heading.
func (a Action) Apply(d Direction) Direction {
	switch a {
	case TurnLeft:
		return d.TurnLeft()
	case TurnRight:
		return d.TurnRight()
	default:
		return d
	}
}

func (a Action) String() string {
	switch a {
	case TurnLeft:
		return "left"
	case Straight:
		return "straight"
	case TurnRight:
		return "right"
	default:
		return "invalid"
	}
}
