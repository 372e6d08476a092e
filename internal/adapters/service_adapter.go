package adapters

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ServiceFunc handles one entity's operations in-process. It receives the
// resolved request and returns the matching records.
type ServiceFunc func(ctx context.Context, req Request) ([]map[string]any, error)

// ServiceAdapter dispatches steps to registered in-process handlers,
// for entities that live inside the application rather than behind an
// API (design documents, internal tooling state).
type ServiceAdapter struct {
	handlers map[string]ServiceFunc
	logger   *logrus.Logger
}

// NewServiceAdapter creates an adapter with no handlers registered.
func NewServiceAdapter() *ServiceAdapter {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	return &ServiceAdapter{
		handlers: make(map[string]ServiceFunc),
		logger:   logger,
	}
}

// Register binds a handler to an entity name.
func (a *ServiceAdapter) Register(entity string, handler ServiceFunc) {
	a.handlers[entity] = handler
}

// Execute routes the request to the entity's handler.
func (a *ServiceAdapter) Execute(ctx context.Context, req Request) (*Result, error) {
	handler, ok := a.handlers[req.Entity]
	if !ok {
		return nil, fmt.Errorf("no in-process service registered for entity %q", req.Entity)
	}

	a.logger.WithFields(logrus.Fields{
		"entity":    req.Entity,
		"operation": req.Operation,
	}).Info("Dispatching in-process step")

	records, err := handler(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &Result{Data: records}
	if req.Operation.CountsResults() {
		count := int64(len(records))
		result.Count = &count
	}
	return result, nil
}
