package adapters

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// GraphNode is one record in the in-memory graph store. Edges map a
// relation name to the IDs of connected nodes.
type GraphNode struct {
	Entity string
	ID     string
	Fields map[string]any
	Edges  map[string][]string
}

// GraphAdapter serves entities whose data lives in a traversable graph
// rather than behind an API. Relations are answered by walking edges and
// inlining the connected nodes.
type GraphAdapter struct {
	mu     sync.RWMutex
	nodes  map[string]map[string]*GraphNode // entity -> id -> node
	logger *logrus.Logger
}

// NewGraphAdapter creates an empty graph store.
func NewGraphAdapter() *GraphAdapter {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	return &GraphAdapter{
		nodes:  make(map[string]map[string]*GraphNode),
		logger: logger,
	}
}

// AddNode inserts or replaces a node.
func (a *GraphAdapter) AddNode(node *GraphNode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.nodes[node.Entity] == nil {
		a.nodes[node.Entity] = make(map[string]*GraphNode)
	}
	a.nodes[node.Entity][node.ID] = node
}

// Execute lists or retrieves nodes, expanding requested relations by
// edge traversal.
func (a *GraphAdapter) Execute(ctx context.Context, req Request) (*Result, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	byID, ok := a.nodes[req.Entity]
	if !ok {
		return nil, fmt.Errorf("entity %q not present in graph", req.Entity)
	}

	a.logger.WithFields(logrus.Fields{
		"entity":    req.Entity,
		"operation": req.Operation,
		"nodes":     len(byID),
	}).Info("Dispatching graph step")

	var records []map[string]any
	for _, node := range byID {
		if !matchesFilters(node, req.Filters) {
			continue
		}
		records = append(records, a.materialize(node, req.Relations))
	}

	if req.Pagination.Offset > 0 {
		if req.Pagination.Offset >= len(records) {
			records = nil
		} else {
			records = records[req.Pagination.Offset:]
		}
	}
	if req.Pagination.Limit > 0 && len(records) > req.Pagination.Limit {
		records = records[:req.Pagination.Limit]
	}

	result := &Result{Data: records}
	if req.Operation.CountsResults() {
		count := int64(len(records))
		result.Count = &count
	}
	return result, nil
}

// matchesFilters checks every filter against the node's fields. The id
// filter matches the node ID; string comparison is exact.
func matchesFilters(node *GraphNode, filters map[string]any) bool {
	for field, want := range filters {
		if field == "id" {
			if fmt.Sprintf("%v", want) != node.ID {
				return false
			}
			continue
		}
		got, ok := node.Fields[field]
		if !ok || fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

// materialize copies a node's fields and inlines requested relations.
// Caller holds the read lock.
func (a *GraphAdapter) materialize(node *GraphNode, relations []string) map[string]any {
	record := make(map[string]any, len(node.Fields)+len(relations)+1)
	record["id"] = node.ID
	for k, v := range node.Fields {
		record[k] = v
	}

	for _, rel := range relations {
		ids, ok := node.Edges[rel]
		if !ok {
			continue
		}
		var linked []map[string]any
		for _, id := range ids {
			for _, byID := range a.nodes {
				if target, ok := byID[id]; ok {
					linked = append(linked, a.materialize(target, nil))
					break
				}
			}
		}
		record[rel] = linked
	}
	return record
}
