package ml

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

type TrainOptions struct {
	Trees         int
	MaxSamples    int
	Contamination float64
	Seed          int64
}

func (o *TrainOptions) applyDefaults(n int) {
	if o.Trees <= 0 {
		o.Trees = 100
	}
	if o.MaxSamples <= 0 {
		o.MaxSamples = 256
	}
	if o.MaxSamples > n {
		o.MaxSamples = n
	}
	if o.Contamination <= 0 || o.Contamination >= 1 {
		o.Contamination = 0.1
	}
}

func FitForest(data [][]float64, opts TrainOptions) (*Forest, error) {
	if len(data) < 2 {
		return nil, errors.New("need at least two samples to fit a forest")
	}
	opts.applyDefaults(len(data))
	rng := rand.New(rand.NewSource(opts.Seed))
	heightLimit := int(math.Ceil(math.Log2(float64(opts.MaxSamples))))

	trees := make([]Tree, opts.Trees)
	for i := range trees {
		sample := rng.Perm(len(data))[:opts.MaxSamples]
		trees[i] = buildTree(data, sample, heightLimit, rng)
	}
	forest := &Forest{
		NEstimators: opts.Trees,
		MaxSamples:  opts.MaxSamples,
		Trees:       trees,
	}
	scores := make([]float64, len(data))
	for i, row := range data {
		scores[i] = forest.Score(row)
	}
	forest.Offset = quantile(scores, opts.Contamination)
	return forest, nil
}

func buildTree(data [][]float64, sample []int, heightLimit int, rng *rand.Rand) Tree {
	var nodes []Node
	var build func(idx []int, depth int) int
	build = func(idx []int, depth int) int {
		pos := len(nodes)
		if depth >= heightLimit || len(idx) <= 1 {
			nodes = append(nodes, Node{Feature: -1, Size: len(idx)})
			return pos
		}
		feature, lo, hi, ok := pickFeature(data, idx, rng)
		if !ok {
			nodes = append(nodes, Node{Feature: -1, Size: len(idx)})
			return pos
		}
		split := lo + rng.Float64()*(hi-lo)
		var left, right []int
		for _, i := range idx {
			if data[i][feature] <= split {
				left = append(left, i)
			} else {
				right = append(right, i)
			}
		}
		nodes = append(nodes, Node{Feature: feature, Threshold: split, Size: len(idx)})
		leftPos := build(left, depth+1)
		rightPos := build(right, depth+1)
		nodes[pos].Left = leftPos
		nodes[pos].Right = rightPos
		return pos
	}
	build(sample, 0)
	return Tree{Nodes: nodes}
}

func pickFeature(data [][]float64, idx []int, rng *rand.Rand) (int, float64, float64, bool) {
	nFeatures := len(data[idx[0]])
	for _, f := range rng.Perm(nFeatures) {
		lo, hi := data[idx[0]][f], data[idx[0]][f]
		for _, i := range idx[1:] {
			v := data[i][f]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi > lo {
			return f, lo, hi, true
		}
	}
	return 0, 0, 0, false
}

func FitScaler(data [][]float64) (*Scaler, error) {
	if len(data) == 0 {
		return nil, errors.New("no samples to fit a scaler")
	}
	nf := len(data[0])
	mean := make([]float64, nf)
	for _, row := range data {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(len(data))
	}
	std := make([]float64, nf)
	for _, row := range data {
		for j, v := range row {
			d := v - mean[j]
			std[j] += d * d
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / float64(len(data)))
		if std[j] == 0 {
			std[j] = 1
		}
	}
	return &Scaler{Mean: mean, Scale: std}, nil
}

func SyntheticSamples(n int, seed int64) [][]float64 {
	if n <= 0 {
		n = 2000
	}
	rng := rand.New(rand.NewSource(seed))
	normalCount := n * 9 / 10
	samples := make([][]float64, 0, n)
	for i := 0; i < normalCount; i++ {
		samples = append(samples, []float64{
			clip(rng.NormFloat64()*3+27, 0, 60),
			clip(rng.NormFloat64()*10+50, 0, 100),
			clip(rng.NormFloat64()*50+250, 0, 1023),
		})
	}
	for i := normalCount; i < n; i++ {
		samples = append(samples, []float64{
			rng.Float64() * 60,
			rng.Float64() * 100,
			500 + rng.Float64()*523,
		})
	}
	rng.Shuffle(len(samples), func(i, j int) {
		samples[i], samples[j] = samples[j], samples[i]
	})
	return samples
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
