package qlearning

// EpsilonSchedule decays the exploration rate linearly from Init to Final
// over DecayFrames frames and holds it at Final afterwards.
type EpsilonSchedule struct {
	Init        float64
	Final       float64
	DecayFrames int
}

// NewEpsilonSchedule validates the decay length.
func NewEpsilonSchedule(init, final float64, decayFrames int) (EpsilonSchedule, error) {
	if err := RequirePositive("epsilonDecayFrames", decayFrames); err != nil {
		return EpsilonSchedule{}, err
	}
	return EpsilonSchedule{Init: init, Final: final, DecayFrames: decayFrames}, nil
}

// At returns epsilon for frame f.
func (s EpsilonSchedule) At(f int) float64 {
	if f >= s.DecayFrames {
		return s.Final
	}
	return s.Init + float64(f)*(s.Final-s.Init)/float64(s.DecayFrames)
}
