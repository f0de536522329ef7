// Package colorrange implements the color auto-range adjustment: a
// Deriche recursive Gaussian smoothing pass over a channel's
// histogram followed by a range picker that locates the first local
// maximum and the 99.8th percentile.
package colorrange

import "math"

// FilterGauss applies a two-pass (forward then backward) Deriche
// recursive approximation of a Gaussian blur with standard deviation
// sigma, returning the sum of both passes. Each pass seeds its
// recursion with the first/last sample's edge-extended steady state.
func FilterGauss(in []float64, sigma float64) []float64 {
	n := len(in)
	out := make([]float64, n)
	if n == 0 {
		return out
	}

	alpha := 1.695 / sigma
	e := math.Exp(-alpha)
	e2 := math.Exp(-2 * alpha)
	norm := (1 - e) * (1 - e) / (1 + 2*alpha*e - e2)

	// Forward pass.
	{
		d1 := 2 * e
		d2 := -e2
		n0 := norm
		n1 := norm * (alpha - 1) * e
		n2 := 0.0

		in1, in2 := in[0], in[0]
		steady := (n2 + n1 + n0) * in1 / (1 - d1 - d2)
		out1, out2 := steady, steady

		for i := 0; i < n; i++ {
			in0 := in[i]
			out0 := n2*in2 + n1*in1 + n0*in0 + d1*out1 + d2*out2
			in2, in1 = in1, in0
			out2, out1 = out1, out0
			out[i] = out0
		}
	}

	// Backward pass, added onto the forward pass's output in place.
	{
		d1 := 2 * e
		d2 := -e2
		n0 := 0.0
		n1 := norm * (alpha + 1) * e
		n2 := -norm * e2

		in1, in2 := in[n-1], in[n-1]
		steady := (n2 + n1 + n0) * in1 / (1 - d1 - d2)
		out1, out2 := steady, steady

		for i := n - 1; i >= 0; i-- {
			in0 := in[i]
			out0 := n2*in2 + n1*in1 + n0*in0 + d1*out1 + d2*out2
			in2, in1 = in1, in0
			out2, out1 = out1, out0
			out[i] += out0
		}
	}

	return out
}
