package qlearning

import (
	"fmt"
	"math"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"snake-dqn/game"
)

// Network defaults.
const (
	DefaultHiddenUnits = 128
	DefaultDropout     = 0.25
)

// Weights holds the parameters of a network in layer order:
// w1 (in x hidden), b1 (1 x hidden), w2 (hidden x actions), b2 (1 x actions).
type Weights []*tensor.Dense

var paramNames = [...]string{"w1", "b1", "w2", "b2"}

// Clone returns a deep copy.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for i, t := range w {
		out[i] = t.Clone().(*tensor.Dense)
	}
	return out
}

// Approximator maps a batch of board snapshots to per-action scores.
type Approximator interface {
	// Predict evaluates the network in inference mode. No gradients are
	// recorded and dropout is disabled.
	Predict(states []game.State) ([][]float64, error)
	Weights() Weights
	SetWeights(w Weights) error
	Trainable() bool
}

// TrainableApproximator is an Approximator that can take gradient steps.
type TrainableApproximator interface {
	Approximator
	// Fit runs a training-mode forward pass, computes the mean squared error
	// between targets and the scores of the taken actions, and lets solver
	// update the parameters. It returns the loss.
	Fit(states []game.State, actions []game.Action, targets []float64, solver gorgonia.Solver) (float64, error)
}

// NetworkConfig describes a QNetwork.
type NetworkConfig struct {
	Height      int
	Width       int
	NumActions  int
	HiddenUnits int
	Dropout     float64
	Trainable   bool
}

func (c NetworkConfig) inputSize() int {
	return c.Height * c.Width * game.Channels
}

// QNetwork is a two-layer perceptron over the flattened board:
// dense(hidden, relu) -> dropout -> dense(actions).
//
// The canonical parameters live in params. A gorgonia graph is compiled per
// batch size and mode on first use; parameters are copied into the graph
// before every run and copied back after a solver step.
type QNetwork struct {
	cfg       NetworkConfig
	params    Weights
	inference map[int]*program
	training  map[int]*program
}

type program struct {
	g          *gorgonia.ExprGraph
	x          *gorgonia.Node
	mask       *gorgonia.Node
	target     *gorgonia.Node
	learnables gorgonia.Nodes
	q          gorgonia.Value
	loss       gorgonia.Value
	vm         gorgonia.VM
}

// NewQNetwork creates a network with Glorot-initialized weights and zero biases.
func NewQNetwork(cfg NetworkConfig) (*QNetwork, error) {
	if cfg.HiddenUnits == 0 {
		cfg.HiddenUnits = DefaultHiddenUnits
	}
	for _, c := range []struct {
		name string
		v    int
	}{
		{"height", cfg.Height},
		{"width", cfg.Width},
		{"numActions", cfg.NumActions},
		{"hiddenUnits", cfg.HiddenUnits},
	} {
		if err := RequirePositive(c.name, c.v); err != nil {
			return nil, err
		}
	}
	if cfg.Dropout < 0 || cfg.Dropout >= 1 {
		return nil, fmt.Errorf("qlearning: dropout rate %v outside [0, 1)", cfg.Dropout)
	}

	in, hidden, out := cfg.inputSize(), cfg.HiddenUnits, cfg.NumActions
	n := &QNetwork{
		cfg: cfg,
		params: Weights{
			newParam(gorgonia.GlorotU(1.0), in, hidden),
			newParam(gorgonia.Zeroes(), 1, hidden),
			newParam(gorgonia.GlorotU(1.0), hidden, out),
			newParam(gorgonia.Zeroes(), 1, out),
		},
		inference: make(map[int]*program),
		training:  make(map[int]*program),
	}
	return n, nil
}

func newParam(init gorgonia.InitWFn, rows, cols int) *tensor.Dense {
	return tensor.New(
		tensor.WithShape(rows, cols),
		tensor.WithBacking(init(tensor.Float64, rows, cols)),
	)
}

// Config returns the network's shape parameters.
func (n *QNetwork) Config() NetworkConfig {
	return n.cfg
}

// Trainable reports whether Fit may update this network.
func (n *QNetwork) Trainable() bool {
	return n.cfg.Trainable
}

// Weights returns a copy of the parameters.
func (n *QNetwork) Weights() Weights {
	return n.params.Clone()
}

// SetWeights overwrites every parameter with w.
func (n *QNetwork) SetWeights(w Weights) error {
	if len(w) != len(n.params) {
		return fmt.Errorf("%w: got %d tensors, want %d", ErrShapeMismatch, len(w), len(n.params))
	}
	for i, t := range w {
		if !t.Shape().Eq(n.params[i].Shape()) {
			return fmt.Errorf("%w: %s is %v, want %v", ErrShapeMismatch, paramNames[i], t.Shape(), n.params[i].Shape())
		}
	}
	for i, t := range w {
		copy(n.params[i].Float64s(), t.Float64s())
	}
	return nil
}

// CopyWeights hard-copies every parameter of src into dst.
func CopyWeights(dst, src Approximator) error {
	return dst.SetWeights(src.Weights())
}

// Predict implements Approximator.
func (n *QNetwork) Predict(states []game.State) ([][]float64, error) {
	if len(states) == 0 {
		return nil, nil
	}
	x, err := n.encode(states)
	if err != nil {
		return nil, err
	}
	p, err := n.program(len(states), false)
	if err != nil {
		return nil, err
	}
	defer p.vm.Reset()

	p.load(n.params)
	if err := gorgonia.Let(p.x, x); err != nil {
		return nil, fmt.Errorf("qlearning: bind input: %w", err)
	}
	if err := p.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("qlearning: forward pass: %w", err)
	}
	return n.rows(p.q, len(states))
}

// Fit implements TrainableApproximator. Frozen networks return ErrFrozen.
func (n *QNetwork) Fit(states []game.State, actions []game.Action, targets []float64, solver gorgonia.Solver) (float64, error) {
	if !n.cfg.Trainable {
		return 0, ErrFrozen
	}
	if len(states) == 0 || len(actions) != len(states) || len(targets) != len(states) {
		return 0, fmt.Errorf("qlearning: fit batch has %d states, %d actions, %d targets",
			len(states), len(actions), len(targets))
	}
	x, err := n.encode(states)
	if err != nil {
		return 0, err
	}
	mask := make([]float64, len(actions)*n.cfg.NumActions)
	for i, a := range actions {
		if int(a) < 0 || int(a) >= n.cfg.NumActions {
			return 0, fmt.Errorf("qlearning: action %d out of range", a)
		}
		mask[i*n.cfg.NumActions+int(a)] = 1
	}
	tgt := make([]float64, len(targets))
	copy(tgt, targets)

	p, err := n.program(len(states), true)
	if err != nil {
		return 0, err
	}
	defer p.vm.Reset()

	p.load(n.params)
	for _, bind := range []struct {
		node *gorgonia.Node
		val  *tensor.Dense
	}{
		{p.x, x},
		{p.mask, tensor.New(tensor.WithShape(len(actions), n.cfg.NumActions), tensor.WithBacking(mask))},
		{p.target, tensor.New(tensor.WithShape(len(targets)), tensor.WithBacking(tgt))},
	} {
		if err := gorgonia.Let(bind.node, bind.val); err != nil {
			return 0, fmt.Errorf("qlearning: bind %s: %w", bind.node.Name(), err)
		}
	}
	if err := p.vm.RunAll(); err != nil {
		return 0, fmt.Errorf("qlearning: backprop: %w", err)
	}

	loss, err := scalar(p.loss)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return loss, ErrNonFiniteLoss
	}
	if err := solver.Step(gorgonia.NodesToValueGrads(p.learnables)); err != nil {
		return loss, fmt.Errorf("qlearning: solver step: %w", err)
	}
	p.store(n.params)
	return loss, nil
}

// Close releases the compiled graphs.
func (n *QNetwork) Close() error {
	var first error
	for _, progs := range []map[int]*program{n.inference, n.training} {
		for k, p := range progs {
			if err := p.vm.Close(); err != nil && first == nil {
				first = err
			}
			delete(progs, k)
		}
	}
	return first
}

func (n *QNetwork) encode(states []game.State) (*tensor.Dense, error) {
	in := n.cfg.inputSize()
	data := make([]float64, len(states)*in)
	for i, s := range states {
		if s.Height != n.cfg.Height || s.Width != n.cfg.Width {
			return nil, fmt.Errorf("%w: state is %dx%d, network expects %dx%d",
				ErrShapeMismatch, s.Height, s.Width, n.cfg.Height, n.cfg.Width)
		}
		s.Encode(data[i*in : (i+1)*in])
	}
	return tensor.New(tensor.WithShape(len(states), in), tensor.WithBacking(data)), nil
}

func (n *QNetwork) rows(v gorgonia.Value, batch int) ([][]float64, error) {
	if v == nil {
		return nil, fmt.Errorf("qlearning: nil prediction value")
	}
	data, ok := v.Data().([]float64)
	if !ok || len(data) != batch*n.cfg.NumActions {
		return nil, fmt.Errorf("qlearning: invalid prediction tensor")
	}
	out := make([][]float64, batch)
	for i := range out {
		row := make([]float64, n.cfg.NumActions)
		copy(row, data[i*n.cfg.NumActions:(i+1)*n.cfg.NumActions])
		out[i] = row
	}
	return out, nil
}

func (n *QNetwork) program(batch int, training bool) (*program, error) {
	cache := n.inference
	if training {
		cache = n.training
	}
	if p, ok := cache[batch]; ok {
		return p, nil
	}
	p, err := n.build(batch, training)
	if err != nil {
		return nil, err
	}
	cache[batch] = p
	return p, nil
}

// build compiles the graph for one batch size. The training graph adds
// dropout, the masked action-value selection, the loss and its gradients.
func (n *QNetwork) build(batch int, training bool) (p *program, err error) {
	defer func() {
		// gorgonia.Must panics on graph construction errors.
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("qlearning: build graph: %v", r)
		}
	}()

	g := gorgonia.NewGraph()
	p = &program{g: g}
	p.x = gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(batch, n.cfg.inputSize()),
		gorgonia.WithName("x"))
	for i, w := range n.params {
		p.learnables = append(p.learnables, gorgonia.NewMatrix(g, tensor.Float64,
			gorgonia.WithShape(w.Shape()...),
			gorgonia.WithName(paramNames[i]),
			gorgonia.WithValue(w.Clone())))
	}
	w1, b1, w2, b2 := p.learnables[0], p.learnables[1], p.learnables[2], p.learnables[3]

	// Broadcast the biases over the batch with a column of ones.
	ones := make([]float64, batch)
	for i := range ones {
		ones[i] = 1
	}
	onesNode := gorgonia.NodeFromAny(g,
		tensor.New(tensor.WithShape(batch, 1), tensor.WithBacking(ones)),
		gorgonia.WithName("ones"))

	h := gorgonia.Must(gorgonia.Mul(p.x, w1))
	h = gorgonia.Must(gorgonia.Add(h, gorgonia.Must(gorgonia.Mul(onesNode, b1))))
	h = gorgonia.Must(gorgonia.Rectify(h))
	if training && n.cfg.Dropout > 0 {
		h = gorgonia.Must(gorgonia.Dropout(h, n.cfg.Dropout))
	}
	out := gorgonia.Must(gorgonia.Mul(h, w2))
	out = gorgonia.Must(gorgonia.Add(out, gorgonia.Must(gorgonia.Mul(onesNode, b2))))
	gorgonia.Read(out, &p.q)

	if !training {
		p.vm = gorgonia.NewTapeMachine(g)
		return p, nil
	}

	p.mask = gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(batch, n.cfg.NumActions),
		gorgonia.WithName("mask"))
	p.target = gorgonia.NewVector(g, tensor.Float64,
		gorgonia.WithShape(batch),
		gorgonia.WithName("target"))

	qs := gorgonia.Must(gorgonia.Sum(gorgonia.Must(gorgonia.HadamardProd(out, p.mask)), 1))
	diff := gorgonia.Must(gorgonia.Sub(p.target, qs))
	loss := gorgonia.Must(gorgonia.Mean(gorgonia.Must(gorgonia.Square(diff))))
	gorgonia.Read(loss, &p.loss)

	if _, err := gorgonia.Grad(loss, p.learnables...); err != nil {
		return nil, fmt.Errorf("qlearning: symbolic gradient: %w", err)
	}
	p.vm = gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(p.learnables...))
	return p, nil
}

// load copies params into the graph's parameter nodes.
func (p *program) load(params Weights) {
	for i, node := range p.learnables {
		copy(node.Value().(*tensor.Dense).Float64s(), params[i].Float64s())
	}
}

// store copies the graph's parameter nodes back into params.
func (p *program) store(params Weights) {
	for i, node := range p.learnables {
		copy(params[i].Float64s(), node.Value().(*tensor.Dense).Float64s())
	}
}

func scalar(v gorgonia.Value) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("qlearning: nil loss value")
	}
	switch d := v.Data().(type) {
	case float64:
		return d, nil
	case []float64:
		if len(d) == 1 {
			return d[0], nil
		}
	}
	return 0, fmt.Errorf("qlearning: loss is not a scalar")
}
