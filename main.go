package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/google/uuid"
	"golang.org/x/exp/rand"

	"snake-dqn/config"
	"snake-dqn/game"
	"snake-dqn/qlearning"
	"snake-dqn/training"
	"snake-dqn/ui"
)

func main() {
	configPath := flag.String("config", "", "YAML file overriding the default hyperparameters")
	savePath := flag.String("savePath", "", "Directory the best online network is saved to (default ./models/dqn)")
	logDir := flag.String("logDir", "", "Directory for metrics.jsonl and report.html; empty disables metrics")
	seed := flag.Uint64("seed", 0, "Random seed; 0 seeds from the clock")
	play := flag.Bool("play", false, "Watch a saved network play instead of training")
	speed := flag.Int("speed", 100, "Milliseconds between moves in play mode")
	flag.Parse()

	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			logger.Fatalf("Failed to load config: %v", err)
		}
	}
	if *savePath != "" {
		cfg.SavePath = *savePath
	}
	if *logDir != "" {
		cfg.LogDir = *logDir
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	if *play {
		if err := runPlay(cfg, time.Duration(*speed)*time.Millisecond); err != nil {
			logger.Fatalf("Play failed: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := runTraining(ctx, cfg, logger); err != nil {
		logger.Fatalf("Training failed: %v", err)
	}
}

func runTraining(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	g, err := game.NewGame(cfg.Game, rand.New(rand.NewSource(cfg.Seed)))
	if err != nil {
		return err
	}
	agent, err := qlearning.NewAgent(g, cfg.QLearning())
	if err != nil {
		return err
	}

	runID := uuid.New().String()
	opts := cfg.Options()
	opts.Logger = logger
	opts.RunID = runID
	opts.Colors = isTerminal(os.Stdout)
	if cfg.LogDir != "" {
		sink, err := training.NewFileSink(cfg.LogDir, runID)
		if err != nil {
			return err
		}
		defer func() {
			if err := sink.Close(); err != nil {
				logger.Printf("Failed to close metrics: %v", err)
			}
		}()
		opts.Sink = sink
	}

	logger.Printf("Starting run %s on a %dx%d board (seed %d)", runID, cfg.Game.Width, cfg.Game.Height, cfg.Seed)
	res, err := training.Train(ctx, agent, opts)
	if err != nil {
		return err
	}
	logger.Printf("Run %s finished (%s) after %d frames and %d episodes: cumulativeReward%d=%.1f best=%.1f checkpoints=%d",
		runID, res.Reason, res.Frames, res.Episodes, opts.Window, res.AverageReward, res.BestAverageReward, res.Checkpoints)
	return nil
}

func runPlay(cfg config.Config, interval time.Duration) error {
	net, err := qlearning.LoadQNetwork(cfg.SavePath, false)
	if err != nil {
		return err
	}
	defer net.Close()

	nc := net.Config()
	cfg.Game.Height, cfg.Game.Width = nc.Height, nc.Width
	g, err := game.NewGame(cfg.Game, rand.New(rand.NewSource(cfg.Seed)))
	if err != nil {
		return err
	}

	rl.InitWindow(1024, 720, "Snake DQN")
	rl.SetWindowState(rl.FlagWindowResizable)
	defer rl.CloseWindow()
	rl.SetTargetFPS(60)

	session := ui.NewSession(g, net)
	renderer := ui.NewRenderer()
	lastUpdate := time.Now()
	for !rl.WindowShouldClose() {
		if rl.IsKeyPressed(rl.KeyQ) {
			break
		}
		if rl.IsWindowResized() {
			renderer.UpdateDimensions()
		}
		if time.Since(lastUpdate) >= interval {
			if err := session.Step(); err != nil {
				return err
			}
			lastUpdate = time.Now()
		}
		renderer.Draw(session)
	}
	return nil
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
