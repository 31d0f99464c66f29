package game

// Channels is the number of feature planes in an encoded State.
const Channels = 2

// State is an immutable snapshot of the board.
type State struct {
	Height int
	Width  int
	Snake  []Point // head first
	Fruits []Point
}

// Size returns the length of the encoded state.
func (s State) Size() int {
	return s.Height * s.Width * Channels
}

// Head returns the snake's head, or false for an empty snapshot.
func (s State) Head() (Point, bool) {
	if len(s.Snake) == 0 {
		return Point{}, false
	}
	return s.Snake[0], true
}

// Encode writes the snapshot as a height x width x 2 grid into dst, which must
// have length Size(). Channel 0 marks the snake (1 for body, 2 for head),
// channel 1 marks fruits.
func (s State) Encode(dst []float64) {
	for i := range dst {
		dst[i] = 0
	}
	for i, p := range s.Snake {
		if !s.inside(p) {
			continue
		}
		v := 1.0
		if i == 0 {
			v = 2
		}
		dst[s.offset(p)] = v
	}
	for _, p := range s.Fruits {
		if !s.inside(p) {
			continue
		}
		dst[s.offset(p)+1] = 1
	}
}

// Encoded returns a freshly allocated encoding of the snapshot.
func (s State) Encoded() []float64 {
	dst := make([]float64, s.Size())
	s.Encode(dst)
	return dst
}

func (s State) offset(p Point) int {
	return (p.Y*s.Width + p.X) * Channels
}

func (s State) inside(p Point) bool {
	return p.X >= 0 && p.X < s.Width && p.Y >= 0 && p.Y < s.Height
}
