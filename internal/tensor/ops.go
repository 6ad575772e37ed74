package tensor

import (
	"fmt"
	"math"
)

// Add adds src to dst element-wise.
func Add(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// AddTensor adds src into dst element-wise. The shapes must match exactly.
func AddTensor(dst, src *Tensor) error {
	if !dst.ShapeEquals(src) {
		return fmt.Errorf("tensor: add shape mismatch %v vs %v", dst.Shape, src.Shape)
	}
	Add(dst.Data, src.Data)
	return nil
}

// Dot computes the dot product of a and b.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Softmax normalizes x in place into a probability distribution. The maximum
// is subtracted before exponentiating so large scores do not overflow, and
// -Inf entries map to exactly zero.
func Softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	maxv := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > maxv {
			maxv = x[i]
		}
	}
	var sum float64
	for i := range x {
		v := math.Exp(float64(x[i] - maxv))
		x[i] = float32(v)
		sum += v
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / sum)
	for i := range x {
		x[i] *= inv
	}
}

// Gelu applies the tanh approximation of the Gaussian Error Linear Unit to x
// in place: 0.5*x*(1+tanh(sqrt(2/pi)*(x+0.044715*x^3))).
func Gelu(x []float32) {
	const (
		sqrt2OverPi = 0.7978845608028654
		coeff       = 0.044715
	)
	for i, v := range x {
		inner := sqrt2OverPi * (float64(v) + coeff*float64(v)*float64(v)*float64(v))
		x[i] = float32(0.5 * float64(v) * (1 + math.Tanh(inner)))
	}
}

// LayerNorm normalizes src to zero mean and unit variance, then applies the
// per-element affine transform gamma*x+beta into dst. dst and src may alias.
func LayerNorm(dst, src, gamma, beta []float32, eps float32) {
	var sum float64
	for _, v := range src {
		sum += float64(v)
	}
	mean := sum / float64(len(src))

	var varSum float64
	for _, v := range src {
		d := float64(v) - mean
		varSum += d * d
	}
	variance := varSum / float64(len(src))
	inv := 1.0 / math.Sqrt(variance+float64(eps))

	for i, v := range src {
		dst[i] = float32((float64(v)-mean)*inv)*gamma[i] + beta[i]
	}
}

// NegInf is the mask value applied to attention scores at disallowed
// positions before softmax.
var NegInf = float32(math.Inf(-1))
