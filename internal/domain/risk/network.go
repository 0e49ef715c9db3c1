package risk

import (
	"math"
	"math/rand/v2"
)

// Activation names stored in snapshots.
const (
	ActivationReLU    = "relu"
	ActivationSigmoid = "sigmoid"
)

// Layer sizes and dropout of the risk network.
var (
	layerSizes  = []int{7, 128, 64, 32, 4}
	dropoutRate = 0.2
	// dropout follows the first two hidden layers only
	dropoutAfter = map[int]bool{0: true, 1: true}
)

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-7
	bceEpsilon  = 1e-7
)

// Layer is a dense layer. Weights are row-major with Out rows of In columns.
type Layer struct {
	In         int       `json:"in"`
	Out        int       `json:"out"`
	Activation string    `json:"activation"`
	Weights    []float64 `json:"weights"`
	Bias       []float64 `json:"bias"`
}

// Network is a feed-forward stack of dense layers.
type Network struct {
	Layers []Layer `json:"layers"`
}

// newNetwork builds the risk network with Glorot-uniform weights and zero bias.
func newNetwork(rng *rand.Rand) *Network {
	n := &Network{Layers: make([]Layer, len(layerSizes)-1)}
	for i := range n.Layers {
		in, out := layerSizes[i], layerSizes[i+1]
		act := ActivationReLU
		if i == len(n.Layers)-1 {
			act = ActivationSigmoid
		}
		limit := math.Sqrt(6.0 / float64(in+out))
		w := make([]float64, in*out)
		for j := range w {
			w[j] = (rng.Float64()*2 - 1) * limit
		}
		n.Layers[i] = Layer{In: in, Out: out, Activation: act, Weights: w, Bias: make([]float64, out)}
	}
	return n
}

// validate checks that the layer chain is consistent with the risk network shape.
func (n *Network) validate() bool {
	if n == nil || len(n.Layers) != len(layerSizes)-1 {
		return false
	}
	for i, l := range n.Layers {
		if l.In != layerSizes[i] || l.Out != layerSizes[i+1] {
			return false
		}
		if len(l.Weights) != l.In*l.Out || len(l.Bias) != l.Out {
			return false
		}
		if l.Activation != ActivationReLU && l.Activation != ActivationSigmoid {
			return false
		}
		for _, w := range l.Weights {
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return false
			}
		}
	}
	return true
}

func (l *Layer) forward(x, z, a []float64) {
	for o := 0; o < l.Out; o++ {
		sum := l.Bias[o]
		row := l.Weights[o*l.In : (o+1)*l.In]
		for i, xi := range x {
			sum += row[i] * xi
		}
		z[o] = sum
		a[o] = activate(l.Activation, sum)
	}
}

func activate(name string, v float64) float64 {
	if name == ActivationSigmoid {
		return 1 / (1 + math.Exp(-v))
	}
	if v < 0 {
		return 0
	}
	return v
}

// Predict runs an inference pass. Dropout is inactive.
func (n *Network) Predict(x []float64) []float64 {
	cur := x
	for i := range n.Layers {
		l := &n.Layers[i]
		z := make([]float64, l.Out)
		a := make([]float64, l.Out)
		l.forward(cur, z, a)
		cur = a
	}
	return cur
}

// trainer holds per-run optimizer state and scratch buffers.
type trainer struct {
	net  *Network
	rng  *rand.Rand
	lr   float64
	step int

	gradW, gradB [][]float64
	mW, vW       [][]float64
	mB, vB       [][]float64

	z, a, mask [][]float64
	delta      [][]float64
}

func newTrainer(net *Network, lr float64, rng *rand.Rand) *trainer {
	t := &trainer{net: net, rng: rng, lr: lr}
	n := len(net.Layers)
	alloc := func(size func(Layer) int) [][]float64 {
		out := make([][]float64, n)
		for i, l := range net.Layers {
			out[i] = make([]float64, size(l))
		}
		return out
	}
	weights := func(l Layer) int { return len(l.Weights) }
	outs := func(l Layer) int { return l.Out }
	t.gradW, t.mW, t.vW = alloc(weights), alloc(weights), alloc(weights)
	t.gradB, t.mB, t.vB = alloc(outs), alloc(outs), alloc(outs)
	t.z, t.a, t.mask, t.delta = alloc(outs), alloc(outs), alloc(outs), alloc(outs)
	return t
}

// trainBatch runs one Adam step over batch and returns its mean BCE loss.
func (t *trainer) trainBatch(xs [][]float64, ys [][]float64) float64 {
	for i := range t.gradW {
		clear(t.gradW[i])
		clear(t.gradB[i])
	}
	var loss float64
	for k := range xs {
		loss += t.accumulate(xs[k], ys[k])
	}
	scale := 1 / float64(len(xs))
	t.step++
	c1 := 1 - math.Pow(adamBeta1, float64(t.step))
	c2 := 1 - math.Pow(adamBeta2, float64(t.step))
	for i := range t.net.Layers {
		l := &t.net.Layers[i]
		adam(l.Weights, t.gradW[i], t.mW[i], t.vW[i], scale, t.lr, c1, c2)
		adam(l.Bias, t.gradB[i], t.mB[i], t.vB[i], scale, t.lr, c1, c2)
	}
	return loss * scale
}

func adam(params, grad, m, v []float64, scale, lr, c1, c2 float64) {
	for j := range params {
		g := grad[j] * scale
		m[j] = adamBeta1*m[j] + (1-adamBeta1)*g
		v[j] = adamBeta2*v[j] + (1-adamBeta2)*g*g
		params[j] -= lr * (m[j] / c1) / (math.Sqrt(v[j]/c2) + adamEpsilon)
	}
}

// accumulate runs forward and backward for one example, adding into the
// gradient buffers, and returns the example's mean BCE.
func (t *trainer) accumulate(x, y []float64) float64 {
	layers := t.net.Layers
	keep := 1 - dropoutRate
	in := x
	for i := range layers {
		layers[i].forward(in, t.z[i], t.a[i])
		if dropoutAfter[i] {
			for o := range t.a[i] {
				if t.rng.Float64() < dropoutRate {
					t.mask[i][o] = 0
				} else {
					t.mask[i][o] = 1 / keep
				}
				t.a[i][o] *= t.mask[i][o]
			}
		}
		in = t.a[i]
	}

	last := len(layers) - 1
	out := t.a[last]
	var loss float64
	for o := range out {
		p := math.Min(math.Max(out[o], bceEpsilon), 1-bceEpsilon)
		loss -= y[o]*math.Log(p) + (1-y[o])*math.Log(1-p)
		// sigmoid + BCE averaged over outputs
		t.delta[last][o] = (out[o] - y[o]) / float64(len(out))
	}

	for i := last; i >= 0; i-- {
		l := &layers[i]
		prev := x
		if i > 0 {
			prev = t.a[i-1]
		}
		d := t.delta[i]
		for o := 0; o < l.Out; o++ {
			t.gradB[i][o] += d[o]
			row := t.gradW[i][o*l.In : (o+1)*l.In]
			for j, pj := range prev {
				row[j] += d[o] * pj
			}
		}
		if i == 0 {
			break
		}
		pd := t.delta[i-1]
		for j := 0; j < l.In; j++ {
			var sum float64
			for o := 0; o < l.Out; o++ {
				sum += l.Weights[o*l.In+j] * d[o]
			}
			if t.z[i-1][j] <= 0 {
				sum = 0
			}
			if dropoutAfter[i-1] {
				sum *= t.mask[i-1][j]
			}
			pd[j] = sum
		}
	}
	return loss / float64(len(out))
}

// binaryAccuracy is the share of outputs on the right side of 0.5.
func binaryAccuracy(n *Network, xs, ys [][]float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var hit, total int
	for k := range xs {
		out := n.Predict(xs[k])
		for o, p := range out {
			if (p >= 0.5) == (ys[k][o] >= 0.5) {
				hit++
			}
			total++
		}
	}
	return float64(hit) / float64(total)
}
