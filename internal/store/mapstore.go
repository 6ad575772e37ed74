package store

import (
	"fmt"

	"bigcode/internal/tensor"
)

// MapStore is an in-memory Store backed by a flat map of full paths to
// tensors. It is the store used in tests and for synthetic models.
type MapStore struct {
	tensors map[string]*tensor.Tensor
}

// NewMapStore creates an empty MapStore.
func NewMapStore() *MapStore {
	return &MapStore{tensors: make(map[string]*tensor.Tensor)}
}

// Set stores t at the given full path, replacing any previous value.
func (m *MapStore) Set(name string, t *tensor.Tensor) {
	m.tensors[name] = t
}

// Delete removes the tensor at the given full path, if present.
func (m *MapStore) Delete(name string) {
	delete(m.tensors, name)
}

func (m *MapStore) Get(shape []int, name string) (*tensor.Tensor, error) {
	t, ok := m.tensors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingParameter, name)
	}
	if err := checkShape(name, shape, t.Shape); err != nil {
		return nil, err
	}
	return t, nil
}

func (m *MapStore) Scope(prefix string) Store {
	return Scoped(m, prefix)
}
