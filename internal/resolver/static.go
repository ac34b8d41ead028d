package resolver

import (
	"context"
	"sync"
)

// Static is a ServiceResolver backed by an in-memory map, mutable at
// runtime via Register/Unregister. Grounded on
// original_source/libs/core/service_discovery/include/StaticServiceResolver.h.
type Static struct {
	mu       sync.RWMutex
	services map[string]Endpoint
}

// NewStatic creates an empty Static resolver.
func NewStatic() *Static {
	return &Static{services: make(map[string]Endpoint)}
}

// Register adds or replaces the endpoint for serviceName.
func (s *Static) Register(serviceName string, ep Endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[serviceName] = ep
}

// Unregister removes serviceName.
func (s *Static) Unregister(serviceName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.services, serviceName)
}

// Resolve implements ServiceResolver.
func (s *Static) Resolve(_ context.Context, serviceName string) (Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ep, ok := s.services[serviceName]
	if !ok {
		return Endpoint{}, &ErrNotFound{ServiceName: serviceName}
	}
	return ep, nil
}

// HasService implements ServiceResolver.
func (s *Static) HasService(_ context.Context, serviceName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.services[serviceName]
	return ok
}
