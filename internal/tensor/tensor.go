package tensor

import (
	"fmt"
	"math/rand"
)

// Tensor is a dense row-major array of float32 values of arbitrary rank.
//
// Shape holds the extent of each axis, outermost first. Data holds the
// flattened values; its length always equals the product of Shape. Tensors do
// not alias each other unless documented otherwise (Reshape shares Data).
type Tensor struct {
	Shape []int
	Data  []float32
}

// New allocates a zero-initialised tensor with the given shape.
func New(shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		if d < 0 {
			panic("tensor: negative dimension")
		}
		n *= d
	}
	return &Tensor{
		Shape: append([]int(nil), shape...),
		Data:  make([]float32, n),
	}
}

// FromData wraps existing data in a tensor of the given shape. The data is
// not copied; the caller must not keep writing through the original slice.
func FromData(data []float32, shape ...int) (*Tensor, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("tensor: negative dimension in shape %v", shape)
		}
		n *= d
	}
	if n != len(data) {
		return nil, fmt.Errorf("tensor: data length %d does not match shape %v", len(data), shape)
	}
	return &Tensor{
		Shape: append([]int(nil), shape...),
		Data:  data,
	}, nil
}

// Rank returns the number of axes.
func (t *Tensor) Rank() int { return len(t.Shape) }

// Dim returns the extent of axis i.
func (t *Tensor) Dim(i int) int { return t.Shape[i] }

// Numel returns the total number of elements.
func (t *Tensor) Numel() int { return len(t.Data) }

// ShapeEquals reports whether t and other have identical shapes.
func (t *Tensor) ShapeEquals(other *Tensor) bool {
	if len(t.Shape) != len(other.Shape) {
		return false
	}
	for i, d := range t.Shape {
		if other.Shape[i] != d {
			return false
		}
	}
	return true
}

// Reshape returns a view of t with a new shape covering the same elements.
// The returned tensor shares Data with t.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("tensor: negative dimension in shape %v", shape)
		}
		n *= d
	}
	if n != len(t.Data) {
		return nil, fmt.Errorf("tensor: cannot reshape %v to %v", t.Shape, shape)
	}
	return &Tensor{
		Shape: append([]int(nil), shape...),
		Data:  t.Data,
	}, nil
}

// Clone returns a deep copy of t.
func (t *Tensor) Clone() *Tensor {
	out := New(t.Shape...)
	copy(out.Data, t.Data)
	return out
}

// Vec returns the innermost vector addressed by the leading indices. For a
// tensor of shape (b, s, h), Vec(i, j) is the length-h slice at batch i,
// position j. The slice aliases t.Data.
func (t *Tensor) Vec(index ...int) []float32 {
	if len(index) != len(t.Shape)-1 {
		panic(fmt.Sprintf("tensor: Vec needs %d indices for shape %v, got %d", len(t.Shape)-1, t.Shape, len(index)))
	}
	off := 0
	for i, idx := range index {
		if idx < 0 || idx >= t.Shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range for axis %d of shape %v", idx, i, t.Shape))
		}
		off = off*t.Shape[i] + idx
	}
	width := t.Shape[len(t.Shape)-1]
	off *= width
	return t.Data[off : off+width]
}

// Narrow returns a copy of t restricted to [start, start+length) along the
// given axis.
func (t *Tensor) Narrow(axis, start, length int) (*Tensor, error) {
	if axis < 0 || axis >= len(t.Shape) {
		return nil, fmt.Errorf("tensor: narrow axis %d out of range for shape %v", axis, t.Shape)
	}
	if start < 0 || length < 0 || start+length > t.Shape[axis] {
		return nil, fmt.Errorf("tensor: narrow [%d, %d) out of range for axis %d of shape %v", start, start+length, axis, t.Shape)
	}

	outer := 1
	for i := 0; i < axis; i++ {
		outer *= t.Shape[i]
	}
	inner := 1
	for i := axis + 1; i < len(t.Shape); i++ {
		inner *= t.Shape[i]
	}

	outShape := append([]int(nil), t.Shape...)
	outShape[axis] = length
	out := New(outShape...)
	for o := 0; o < outer; o++ {
		srcBase := (o*t.Shape[axis] + start) * inner
		dstBase := o * length * inner
		copy(out.Data[dstBase:dstBase+length*inner], t.Data[srcBase:srcBase+length*inner])
	}
	return out, nil
}

// FillRand fills t with reproducible pseudo-random values in a small range
// around zero. The same seed always produces the same tensor.
func (t *Tensor) FillRand(seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := range t.Data {
		t.Data[i] = (rng.Float32() - 0.5) * 0.02
	}
}
