package qlearning

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"gorgonia.org/tensor"
)

// WeightsFile is the checkpoint file name inside a save directory.
const WeightsFile = "dqn_weights.gob"

func init() {
	gob.Register(&tensor.Dense{})
	gob.Register(map[string]*tensor.Dense{})
}

type checkpoint struct {
	Height      int
	Width       int
	NumActions  int
	HiddenUnits int
	Dropout     float64
	Weights     map[string]*tensor.Dense
}

// Save writes the network's shape and weights to dir/WeightsFile, creating
// dir if needed. The file is replaced atomically.
func (n *QNetwork) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	cp := checkpoint{
		Height:      n.cfg.Height,
		Width:       n.cfg.Width,
		NumActions:  n.cfg.NumActions,
		HiddenUnits: n.cfg.HiddenUnits,
		Dropout:     n.cfg.Dropout,
		Weights:     make(map[string]*tensor.Dense, len(n.params)),
	}
	for i, w := range n.params {
		cp.Weights[paramNames[i]] = w
	}

	f, err := os.CreateTemp(dir, WeightsFile+".*")
	if err != nil {
		return fmt.Errorf("failed to create weights file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := gob.NewEncoder(f).Encode(cp); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode weights: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write weights file: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, WeightsFile)); err != nil {
		return fmt.Errorf("failed to replace weights file: %w", err)
	}
	return nil
}

// LoadQNetwork restores a network saved with Save. The trainable flag is
// chosen by the caller.
func LoadQNetwork(dir string, trainable bool) (*QNetwork, error) {
	f, err := os.Open(filepath.Join(dir, WeightsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open weights file: %w", err)
	}
	defer f.Close()

	var cp checkpoint
	if err := gob.NewDecoder(f).Decode(&cp); err != nil {
		return nil, fmt.Errorf("failed to decode weights: %w", err)
	}

	n, err := NewQNetwork(NetworkConfig{
		Height:      cp.Height,
		Width:       cp.Width,
		NumActions:  cp.NumActions,
		HiddenUnits: cp.HiddenUnits,
		Dropout:     cp.Dropout,
		Trainable:   trainable,
	})
	if err != nil {
		return nil, err
	}
	w := make(Weights, len(paramNames))
	for i, name := range paramNames {
		t, ok := cp.Weights[name]
		if !ok {
			return nil, fmt.Errorf("%w: checkpoint has no %s", ErrShapeMismatch, name)
		}
		w[i] = t
	}
	if err := n.SetWeights(w); err != nil {
		return nil, err
	}
	return n, nil
}
