package training

// StopReason says why the training loop ended, or that it should go on.
type StopReason int

const (
	Continue StopReason = iota
	ThresholdReached
	FrameCapReached
	Interrupted
)

func (r StopReason) String() string {
	switch r {
	case Continue:
		return "continue"
	case ThresholdReached:
		return "reward threshold reached"
	case FrameCapReached:
		return "frame cap reached"
	case Interrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Decide is evaluated at the end of every episode. The reward threshold wins
// when both predicates hold.
func Decide(averageReward, threshold float64, frames, maxFrames int) StopReason {
	if averageReward >= threshold {
		return ThresholdReached
	}
	if frames >= maxFrames {
		return FrameCapReached
	}
	return Continue
}
