package observability_test

import (
	"context"
	"testing"

	"github.com/matgreaves/urishort/internal/observability"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	reg := observability.NewRegistry(noop.NewMeterProvider().Meter("test"))

	c1, err := reg.RegisterCounter("requests_total", observability.UnitDimensionless)
	if err != nil {
		t.Fatalf("RegisterCounter: %v", err)
	}
	c2, err := reg.RegisterCounter("requests_total", observability.UnitDimensionless)
	if err != nil {
		t.Fatalf("RegisterCounter (again): %v", err)
	}
	if c1 != c2 {
		t.Fatalf("RegisterCounter returned different handles for same name: %d != %d", c1, c2)
	}

	reg.Add(context.Background(), c1, 1)
}

func TestRegistry_DistinctHandlesPerName(t *testing.T) {
	reg := observability.NewRegistry(noop.NewMeterProvider().Meter("test"))

	a, _ := reg.RegisterCounter("a", observability.UnitDimensionless)
	b, _ := reg.RegisterCounter("b", observability.UnitDimensionless)
	if a == b {
		t.Fatal("RegisterCounter: distinct names got the same handle")
	}
}
