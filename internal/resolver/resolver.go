// Package resolver implements ServiceResolver: mapping a service name to
// a (host, port) endpoint. Two implementations are provided — a static
// in-memory map (the default) and a Redis-backed one for environments
// where peers register themselves dynamically.
package resolver

import "context"

// Endpoint is a resolved service address.
type Endpoint struct {
	Host string
	Port int
}

// ServiceResolver maps a logical service name to an Endpoint. Other
// implementations (Consul, DNS, ...) may be substituted.
type ServiceResolver interface {
	Resolve(ctx context.Context, serviceName string) (Endpoint, error)
	HasService(ctx context.Context, serviceName string) bool
}

// ErrNotFound is returned by Resolve when the service name is unknown.
type ErrNotFound struct{ ServiceName string }

func (e *ErrNotFound) Error() string {
	return "resolver: service not found: " + e.ServiceName
}
