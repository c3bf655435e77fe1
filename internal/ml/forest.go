package ml

import (
	"errors"
	"fmt"
	"math"
)

const eulerGamma = 0.5772156649015329

type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Size      int     `json:"size"`
}

type Tree struct {
	Nodes []Node `json:"nodes"`
}

type Forest struct {
	NEstimators int     `json:"n_estimators"`
	MaxSamples  int     `json:"max_samples"`
	Offset      float64 `json:"offset"`
	Trees       []Tree  `json:"trees"`
}

func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

func (t *Tree) pathLength(x []float64) float64 {
	depth := 0.0
	i := 0
	for {
		node := t.Nodes[i]
		if node.Feature < 0 {
			return depth + avgPathLength(node.Size)
		}
		if x[node.Feature] <= node.Threshold {
			i = node.Left
		} else {
			i = node.Right
		}
		depth++
	}
}

func (f *Forest) Score(x []float64) float64 {
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].pathLength(x)
	}
	mean := sum / float64(len(f.Trees))
	return -math.Exp2(-mean / avgPathLength(f.MaxSamples))
}

func (f *Forest) Decision(x []float64) float64 {
	return f.Score(x) - f.Offset
}

func (f *Forest) validate(nFeatures int) error {
	if len(f.Trees) == 0 {
		return errors.New("forest has no trees")
	}
	if f.MaxSamples < 2 {
		return fmt.Errorf("max_samples must be at least 2, got %d", f.MaxSamples)
	}
	for ti := range f.Trees {
		nodes := f.Trees[ti].Nodes
		if len(nodes) == 0 {
			return fmt.Errorf("tree %d has no nodes", ti)
		}
		for ni, node := range nodes {
			if node.Feature < 0 {
				continue
			}
			if node.Feature >= nFeatures {
				return fmt.Errorf("tree %d node %d references feature %d beyond %d", ti, ni, node.Feature, nFeatures)
			}
			if node.Left <= ni || node.Left >= len(nodes) || node.Right <= ni || node.Right >= len(nodes) {
				return fmt.Errorf("tree %d node %d children must follow the parent within the node list", ti, ni)
			}
		}
	}
	return nil
}
