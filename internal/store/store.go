// Package store provides read-only access to named model parameters.
//
// A Store is a hierarchical namespace of tensors addressed by dot-separated
// paths (for example "h.3.attn.c_attn.weight"). Model loading code asks for a
// parameter by name together with the shape it expects; the store fails the
// request if the name is absent or the stored shape disagrees.
package store

import (
	"errors"
	"fmt"

	"bigcode/internal/tensor"
)

var (
	// ErrMissingParameter is returned when a requested path is not present.
	ErrMissingParameter = errors.New("missing parameter")
	// ErrShapeMismatch is returned when a stored tensor's shape disagrees
	// with the shape the caller expects.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// Store is a read-only namespace of named tensors.
type Store interface {
	// Get returns the tensor stored at name, which must have exactly the
	// given shape.
	Get(shape []int, name string) (*tensor.Tensor, error)
	// Scope returns a view of the store rooted at prefix.
	Scope(prefix string) Store
}

// Scoped returns a view of s in which every path is prefixed with prefix.
func Scoped(s Store, prefix string) Store {
	if prefix == "" {
		return s
	}
	return scoped{base: s, prefix: prefix}
}

type scoped struct {
	base   Store
	prefix string
}

func (v scoped) Get(shape []int, name string) (*tensor.Tensor, error) {
	return v.base.Get(shape, joinPath(v.prefix, name))
}

func (v scoped) Scope(prefix string) Store {
	return scoped{base: v.base, prefix: joinPath(v.prefix, prefix)}
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	if name == "" {
		return prefix
	}
	return prefix + "." + name
}

func shapeEquals(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func checkShape(name string, want, got []int) error {
	if !shapeEquals(want, got) {
		return fmt.Errorf("%w: %s has shape %v, want %v", ErrShapeMismatch, name, got, want)
	}
	return nil
}
