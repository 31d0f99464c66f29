package training

// MovingAverager keeps the mean of the last n appended values. The window
// starts out with n empty slots, which count as zero until they are
// overwritten, so early averages are scaled down by the unfilled fraction.
type MovingAverager struct {
	buffer []float64
	next   int
	filled int
}

// NewMovingAverager creates a window of length n.
func NewMovingAverager(n int) *MovingAverager {
	return &MovingAverager{buffer: make([]float64, n)}
}

// Append pushes x and evicts the oldest value.
func (m *MovingAverager) Append(x float64) {
	m.buffer[m.next] = x
	m.next = (m.next + 1) % len(m.buffer)
	if m.filled < len(m.buffer) {
		m.filled++
	}
}

// Average returns the sum of the window divided by its length.
func (m *MovingAverager) Average() float64 {
	var sum float64
	for _, v := range m.buffer {
		sum += v
	}
	return sum / float64(len(m.buffer))
}

// Filled returns how many slots hold appended values.
func (m *MovingAverager) Filled() int {
	return m.filled
}

// Values returns the window contents, oldest first. Empty slots are omitted.
func (m *MovingAverager) Values() []float64 {
	out := make([]float64, 0, m.filled)
	start := 0
	if m.filled == len(m.buffer) {
		start = m.next
	}
	for i := 0; i < m.filled; i++ {
		out = append(out, m.buffer[(start+i)%len(m.buffer)])
	}
	return out
}
