package resolver

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Redis is a ServiceResolver backed by a Redis hash: field = service
// name, value = "host:port". Grounded on the teacher's connect/redisx
// module (a thin go-redis wrapper) and on spec.md's invitation to
// substitute "Consul, DNS, etc." for the static resolver.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis creates a Redis resolver reading service endpoints from the
// Redis hash named key (default "urishort:services" if empty).
func NewRedis(client *redis.Client, key string) *Redis {
	if key == "" {
		key = "urishort:services"
	}
	return &Redis{client: client, key: key}
}

// Resolve implements ServiceResolver.
func (r *Redis) Resolve(ctx context.Context, serviceName string) (Endpoint, error) {
	val, err := r.client.HGet(ctx, r.key, serviceName).Result()
	if err == redis.Nil {
		return Endpoint{}, &ErrNotFound{ServiceName: serviceName}
	}
	if err != nil {
		return Endpoint{}, fmt.Errorf("resolver: redis lookup %q: %w", serviceName, err)
	}
	return parseHostPort(val)
}

// HasService implements ServiceResolver.
func (r *Redis) HasService(ctx context.Context, serviceName string) bool {
	n, err := r.client.HExists(ctx, r.key, serviceName).Result()
	return err == nil && n
}

func parseHostPort(val string) (Endpoint, error) {
	host, portStr, ok := strings.Cut(val, ":")
	if !ok {
		return Endpoint{}, fmt.Errorf("resolver: malformed endpoint %q", val)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("resolver: malformed port in %q: %w", val, err)
	}
	return Endpoint{Host: host, Port: port}, nil
}
