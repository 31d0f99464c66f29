package qlearning

import "gorgonia.org/gorgonia"

// NewAdamSolver returns the optimizer used for the online network. A positive
// clip bounds every gradient element to [-clip, clip].
func NewAdamSolver(learningRate, clip float64) gorgonia.Solver {
	opts := []gorgonia.SolverOpt{gorgonia.WithLearnRate(learningRate)}
	if clip > 0 {
		opts = append(opts, gorgonia.WithClip(clip))
	}
	return gorgonia.NewAdamSolver(opts...)
}
