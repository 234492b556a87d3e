package sched

import (
	"math"

	"github.com/san-kum/actsched/internal/action"
	"gonum.org/v1/gonum/mat"
)

// ExpWeights returns normalized weights exp(k*i) for i in [0, n). With a
// positive k the oldest entry (i=0) receives the smallest weight.
func ExpWeights(n int, k float64) []float64 {
	w := make([]float64, n)
	// Exponents are shifted so the largest is zero.
	ref := 0.0
	if k > 0 {
		ref = float64(n - 1)
	}
	sum := 0.0
	for i := range w {
		w[i] = math.Exp(k * (float64(i) - ref))
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// Blend computes weightsᵀ · heads, where heads is n×D in queue order.
func Blend(heads []action.Vector, weights []float64) action.Vector {
	n := len(heads)
	d := len(heads[0])
	data := make([]float64, 0, n*d)
	for _, h := range heads {
		data = append(data, h...)
	}

	var out mat.VecDense
	out.MulVec(mat.NewDense(n, d, data).T(), mat.NewVecDense(n, weights))

	v := make(action.Vector, d)
	for i := range v {
		v[i] = out.AtVec(i)
	}
	return v
}
