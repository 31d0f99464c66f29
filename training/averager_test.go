package training

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMovingAverager(t *testing.T) {
	m := NewMovingAverager(3)
	m.Append(1)
	m.Append(2)
	m.Append(3)
	require.Equal(t, 2.0, m.Average())

	m.Append(4)
	require.Equal(t, []float64{2, 3, 4}, m.Values())
	require.Equal(t, 3.0, m.Average())
	require.Equal(t, 3, m.Filled())
}

func TestMovingAveragerEmptySlotsCountAsZero(t *testing.T) {
	m := NewMovingAverager(4)
	require.Zero(t, m.Average())

	m.Append(8)
	require.Equal(t, 2.0, m.Average())
	require.Equal(t, 1, m.Filled())
	require.Equal(t, []float64{8}, m.Values())
}
