// Package config holds the run configuration: board, agent and training
// hyperparameters, loaded from defaults, an optional YAML file and flags.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"snake-dqn/game"
	"snake-dqn/qlearning"
	"snake-dqn/training"
)

// Config is the full configuration of a training run.
type Config struct {
	Game     game.Config    `yaml:"game"`
	Agent    AgentConfig    `yaml:"agent"`
	Training TrainingConfig `yaml:"training"`
	SavePath string         `yaml:"savePath"`
	LogDir   string         `yaml:"logDir"`
	Seed     uint64         `yaml:"seed"`
}

// AgentConfig mirrors qlearning.AgentConfig.
type AgentConfig struct {
	ReplayBufferSize   int     `yaml:"replayBufferSize"`
	EpsilonInit        float64 `yaml:"epsilonInit"`
	EpsilonFinal       float64 `yaml:"epsilonFinal"`
	EpsilonDecayFrames int     `yaml:"epsilonDecayFrames"`
	HiddenUnits        int     `yaml:"hiddenUnits"`
	Dropout            float64 `yaml:"dropout"`
}

// TrainingConfig mirrors the numeric fields of training.Options.
type TrainingConfig struct {
	BatchSize                 int     `yaml:"batchSize"`
	Gamma                     float64 `yaml:"gamma"`
	LearningRate              float64 `yaml:"learningRate"`
	GradClip                  float64 `yaml:"gradClip"`
	CumulativeRewardThreshold float64 `yaml:"cumulativeRewardThreshold"`
	MaxNumFrames              int     `yaml:"maxNumFrames"`
	SyncEveryFrames           int     `yaml:"syncEveryFrames"`
	Window                    int     `yaml:"window"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Game: game.Config{
			Height:    5,
			Width:     5,
			NumFruits: 1,
			InitLen:   2,
		},
		Agent: AgentConfig{
			ReplayBufferSize:   5000,
			EpsilonInit:        0.8,
			EpsilonFinal:       0.01,
			EpsilonDecayFrames: 50000,
			HiddenUnits:        qlearning.DefaultHiddenUnits,
			Dropout:            qlearning.DefaultDropout,
		},
		Training: TrainingConfig{
			BatchSize:                 64,
			Gamma:                     0.99,
			LearningRate:              1e-3,
			CumulativeRewardThreshold: 100,
			MaxNumFrames:              50000,
			SyncEveryFrames:           500,
			Window:                    training.DefaultWindow,
		},
		SavePath: "./models/dqn",
	}
}

// Load returns Default overlaid with the YAML file at path. Keys missing from
// the file keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate fails fast on counts that must be positive and on impossible
// combinations.
func (c Config) Validate() error {
	if err := c.Game.Validate(); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"replayBufferSize", c.Agent.ReplayBufferSize},
		{"epsilonDecayFrames", c.Agent.EpsilonDecayFrames},
		{"hiddenUnits", c.Agent.HiddenUnits},
		{"batchSize", c.Training.BatchSize},
		{"maxNumFrames", c.Training.MaxNumFrames},
		{"syncEveryFrames", c.Training.SyncEveryFrames},
		{"window", c.Training.Window},
	} {
		if err := qlearning.RequirePositive(f.name, f.v); err != nil {
			return err
		}
	}
	if c.Training.BatchSize > c.Agent.ReplayBufferSize {
		return fmt.Errorf("batchSize %d exceeds replayBufferSize %d", c.Training.BatchSize, c.Agent.ReplayBufferSize)
	}
	if c.Agent.Dropout < 0 || c.Agent.Dropout >= 1 {
		return fmt.Errorf("dropout %v must be in [0, 1)", c.Agent.Dropout)
	}
	if c.Training.Gamma < 0 || c.Training.Gamma > 1 {
		return fmt.Errorf("gamma %v must be in [0, 1]", c.Training.Gamma)
	}
	if c.Training.LearningRate <= 0 {
		return fmt.Errorf("learningRate %v must be positive", c.Training.LearningRate)
	}
	return nil
}

// QLearning converts to the agent's configuration.
func (c Config) QLearning() qlearning.AgentConfig {
	return qlearning.AgentConfig{
		ReplayBufferSize:   c.Agent.ReplayBufferSize,
		EpsilonInit:        c.Agent.EpsilonInit,
		EpsilonFinal:       c.Agent.EpsilonFinal,
		EpsilonDecayFrames: c.Agent.EpsilonDecayFrames,
		HiddenUnits:        c.Agent.HiddenUnits,
		Dropout:            c.Agent.Dropout,
		Seed:               c.Seed,
	}
}

// Options converts to training.Options. Logger, sink and run id are left to
// the caller.
func (c Config) Options() training.Options {
	return training.Options{
		BatchSize:                 c.Training.BatchSize,
		Gamma:                     c.Training.Gamma,
		LearningRate:              c.Training.LearningRate,
		GradClip:                  c.Training.GradClip,
		CumulativeRewardThreshold: c.Training.CumulativeRewardThreshold,
		MaxNumFrames:              c.Training.MaxNumFrames,
		SyncEveryFrames:           c.Training.SyncEveryFrames,
		Window:                    c.Training.Window,
		SavePath:                  c.SavePath,
	}
}
