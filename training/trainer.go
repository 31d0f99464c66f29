package training

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/logrusorgru/aurora"
	"gorgonia.org/gorgonia"

	"snake-dqn/qlearning"
)

// DefaultWindow is the number of episodes averaged for monitoring and
// termination.
const DefaultWindow = 100

// Learner is the part of the agent the training loop drives.
type Learner interface {
	PlayStep() (qlearning.StepOutput, error)
	TrainOnReplayBatch(batchSize int, gamma float64, solver gorgonia.Solver) (float64, error)
	SyncTarget() error
	SaveOnline(dir string) error
	FrameCount() int
	Epsilon() float64
	ReplayBufferSize() int
}

// Options configures Train.
type Options struct {
	BatchSize                 int
	Gamma                     float64
	LearningRate              float64
	GradClip                  float64
	CumulativeRewardThreshold float64
	MaxNumFrames              int
	SyncEveryFrames           int
	// Window defaults to DefaultWindow.
	Window int
	// SavePath, when set, receives a checkpoint of the online network every
	// time the moving average reward improves.
	SavePath string
	Sink     Sink
	Logger   *log.Logger
	Colors   bool
	RunID    string
	// Solver overrides the Adam solver built from LearningRate.
	Solver gorgonia.Solver
	// Now defaults to time.Now.
	Now func() time.Time
}

func (o *Options) validate(replayBufferSize int) error {
	for _, c := range []struct {
		name string
		v    int
	}{
		{"batchSize", o.BatchSize},
		{"maxNumFrames", o.MaxNumFrames},
		{"syncEveryFrames", o.SyncEveryFrames},
		{"window", o.Window},
		{"replayBufferSize", replayBufferSize},
	} {
		if err := qlearning.RequirePositive(c.name, c.v); err != nil {
			return err
		}
	}
	if o.BatchSize > replayBufferSize {
		return fmt.Errorf("batchSize %d exceeds replayBufferSize %d: %w",
			o.BatchSize, replayBufferSize, qlearning.ErrInsufficientData)
	}
	return nil
}

// Result summarizes a finished run.
type Result struct {
	Reason            StopReason
	Frames            int
	Episodes          int
	AverageReward     float64
	BestAverageReward float64
	Checkpoints       int
}

// Train fills the replay memory, then alternates one gradient step with one
// frame of play until the moving average reward reaches the threshold, the
// frame cap is hit, or ctx is cancelled. Cancellation is only observed
// between iterations.
//
// Checkpoints are written synchronously: the loop waits for each save. A
// failed save is logged and training continues.
func Train(ctx context.Context, learner Learner, o Options) (Result, error) {
	if o.Window == 0 {
		o.Window = DefaultWindow
	}
	if err := o.validate(learner.ReplayBufferSize()); err != nil {
		return Result{}, err
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	solver := o.Solver
	if solver == nil {
		solver = qlearning.NewAdamSolver(o.LearningRate, o.GradClip)
	}
	au := aurora.NewAurora(o.Colors)

	res := Result{BestAverageReward: math.Inf(-1)}

	for i := 0; i < learner.ReplayBufferSize(); i++ {
		if ctx.Err() != nil {
			res.Reason = Interrupted
			res.Frames = learner.FrameCount()
			return res, nil
		}
		if _, err := learner.PlayStep(); err != nil {
			return res, fmt.Errorf("warm-up: %w", err)
		}
	}
	o.Logger.Printf("Replay memory warmed up with %d frames", learner.ReplayBufferSize())

	rewardAverager := NewMovingAverager(o.Window)
	eatenAverager := NewMovingAverager(o.Window)
	tPrev := o.Now()
	frameCountPrev := learner.FrameCount()
	var loss float64

	for {
		if ctx.Err() != nil {
			res.Reason = Interrupted
			res.Frames = learner.FrameCount()
			return res, nil
		}

		l, err := learner.TrainOnReplayBatch(o.BatchSize, o.Gamma, solver)
		switch {
		case errors.Is(err, qlearning.ErrNonFiniteLoss):
			o.Logger.Printf("%s %v", au.Red("Skipped update:"), err)
		case err != nil:
			return res, fmt.Errorf("train step: %w", err)
		default:
			loss = l
		}

		out, err := learner.PlayStep()
		if err != nil {
			return res, fmt.Errorf("play step: %w", err)
		}
		frames := learner.FrameCount()
		res.Frames = frames

		if out.Done {
			res.Episodes++
			t := o.Now()
			var fps float64
			if elapsed := t.Sub(tPrev).Seconds(); elapsed > 0 {
				fps = float64(frames-frameCountPrev) / elapsed
			}
			tPrev = t
			frameCountPrev = frames

			rewardAverager.Append(out.CumulativeReward)
			eatenAverager.Append(float64(out.FruitsEaten))
			averageReward := rewardAverager.Average()
			averageEaten := eatenAverager.Average()
			res.AverageReward = averageReward
			epsilon := learner.Epsilon()

			o.Logger.Printf("Frame #%d: cumulativeReward%d=%s; eaten%d=%s (epsilon=%s) (%s frames/s)",
				frames,
				o.Window, au.Cyan(fmt.Sprintf("%.1f", averageReward)),
				o.Window, au.Green(fmt.Sprintf("%.2f", averageEaten)),
				au.Yellow(fmt.Sprintf("%.3f", epsilon)),
				fmt.Sprintf("%.1f", fps))
			if o.Sink != nil {
				rec := Record{
					RunID:           o.RunID,
					Time:            t,
					Frame:           frames,
					Episode:         res.Episodes,
					Reward100:       averageReward,
					Eaten100:        averageEaten,
					Epsilon:         epsilon,
					FramesPerSecond: fps,
					Loss:            loss,
				}
				if err := o.Sink.Write(rec); err != nil {
					o.Logger.Printf("Failed to write metrics: %v", err)
				}
			}

			if reason := Decide(averageReward, o.CumulativeRewardThreshold, frames, o.MaxNumFrames); reason != Continue {
				res.Reason = reason
				o.Logger.Printf("Training stopped at frame %d: %s", frames, au.Bold(reason))
				return res, nil
			}

			if averageReward > res.BestAverageReward {
				res.BestAverageReward = averageReward
				if o.SavePath != "" {
					if err := learner.SaveOnline(o.SavePath); err != nil {
						o.Logger.Printf("%s %v", au.Red("Failed to save DQN:"), err)
					} else {
						res.Checkpoints++
						o.Logger.Printf("Saved DQN to %s", o.SavePath)
					}
				}
			}
		}

		if frames%o.SyncEveryFrames == 0 {
			if err := learner.SyncTarget(); err != nil {
				return res, fmt.Errorf("sync target network: %w", err)
			}
			o.Logger.Printf("Sync'ed weights from online network to target network")
		}
	}
}
