package tensor

import (
	"fmt"

	"golang.org/x/sys/cpu"
)

// Column panel widths for the blocked kernels. Wider panels keep more of the
// right-hand operand in cache per pass over a row; on cores with wide vector
// units the larger working set still fits comfortably.
const (
	panelNarrow = 32
	panelWide   = 64
)

var colPanel = selectPanel()

func selectPanel() int {
	if cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD {
		return panelWide
	}
	return panelNarrow
}

// MatMul computes dst = a * b for 2-D tensors, with a of shape (m, k) and b
// of shape (k, n).
func MatMul(dst, a, b *Tensor) error {
	if a.Rank() != 2 || b.Rank() != 2 || dst.Rank() != 2 {
		return fmt.Errorf("tensor: matmul needs rank-2 operands, got %v x %v -> %v", a.Shape, b.Shape, dst.Shape)
	}
	m, k := a.Shape[0], a.Shape[1]
	n := b.Shape[1]
	if b.Shape[0] != k || dst.Shape[0] != m || dst.Shape[1] != n {
		return fmt.Errorf("tensor: matmul dimension mismatch %v x %v -> %v", a.Shape, b.Shape, dst.Shape)
	}

	for i := range dst.Data {
		dst.Data[i] = 0
	}
	for i := 0; i < m; i++ {
		arow := a.Data[i*k : (i+1)*k]
		drow := dst.Data[i*n : (i+1)*n]
		for p := 0; p < k; p++ {
			av := arow[p]
			if av == 0 {
				continue
			}
			brow := b.Data[p*n : (p+1)*n]
			for j := range brow {
				drow[j] += av * brow[j]
			}
		}
	}
	return nil
}

// MatMulT computes dst = a * b^T for 2-D tensors, with a of shape (m, k) and
// b of shape (n, k). Keeping b in row-major (n, k) layout means every dot
// product walks both operands contiguously, so weight matrices stored as
// (out, in) never need an explicit transpose.
func MatMulT(dst, a, b *Tensor) error {
	if a.Rank() != 2 || b.Rank() != 2 || dst.Rank() != 2 {
		return fmt.Errorf("tensor: matmulT needs rank-2 operands, got %v x %v -> %v", a.Shape, b.Shape, dst.Shape)
	}
	m, k := a.Shape[0], a.Shape[1]
	n := b.Shape[0]
	if b.Shape[1] != k || dst.Shape[0] != m || dst.Shape[1] != n {
		return fmt.Errorf("tensor: matmulT dimension mismatch %v x %v^T -> %v", a.Shape, b.Shape, dst.Shape)
	}

	for j0 := 0; j0 < n; j0 += colPanel {
		j1 := j0 + colPanel
		if j1 > n {
			j1 = n
		}
		for i := 0; i < m; i++ {
			arow := a.Data[i*k : (i+1)*k]
			drow := dst.Data[i*n : (i+1)*n]
			for j := j0; j < j1; j++ {
				drow[j] = Dot(arow, b.Data[j*k:(j+1)*k])
			}
		}
	}
	return nil
}
