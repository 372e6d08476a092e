// Package adapters provides the three data-access backends a plan step
// can dispatch to: a REST API, registered in-process services, and a
// graph store. All three expose the same operation surface so the
// executor never branches on access method beyond adapter selection.
package adapters

import (
	"context"
	"fmt"

	"queryforge/internal/models"
)

// Pagination bounds a list operation. Zero values mean backend defaults.
type Pagination struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Result is the uniform response shape: a list of records plus an
// optional total count (set by listAndCount).
type Result struct {
	Data  []map[string]any `json:"data"`
	Count *int64           `json:"count,omitempty"`
}

// Request carries one resolved step operation to an adapter. Filters hold
// concrete values only; back-references are resolved before dispatch.
type Request struct {
	Entity     string
	Operation  models.Operation
	Filters    map[string]any
	Relations  []string
	Pagination Pagination
}

// DataAdapter executes resolved step operations against one backend.
type DataAdapter interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

// Registry maps access methods to their adapters.
type Registry struct {
	adapters map[models.AccessMethod]DataAdapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.AccessMethod]DataAdapter)}
}

// Register binds an adapter to an access method.
func (r *Registry) Register(method models.AccessMethod, adapter DataAdapter) {
	r.adapters[method] = adapter
}

// ForMethod returns the adapter for an access method.
func (r *Registry) ForMethod(method models.AccessMethod) (DataAdapter, error) {
	adapter, ok := r.adapters[method]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for access method %q", method)
	}
	return adapter, nil
}
