package health

import (
	"context"
	"testing"
)

func TestCheckAllAggregates(t *testing.T) {
	r := NewRegistry()
	r.Register("horizon", func(context.Context) Status {
		return Status{Name: "horizon", Healthy: true}
	})
	r.Register("database", func(context.Context) Status {
		return Status{Name: "database", Healthy: false, Detail: "connection refused"}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Error("aggregate healthy with a failing probe")
	}
	if len(statuses) != 2 {
		t.Fatalf("statuses = %d, want 2", len(statuses))
	}
	if statuses[0].Name != "horizon" || statuses[1].Name != "database" {
		t.Errorf("probes out of registration order: %+v", statuses)
	}
	if statuses[1].Detail != "connection refused" {
		t.Errorf("failure detail = %q", statuses[1].Detail)
	}
}

func TestCheckAllEmptyRegistry(t *testing.T) {
	healthy, statuses := NewRegistry().CheckAll(context.Background())
	if !healthy {
		t.Error("empty registry reported unhealthy")
	}
	if len(statuses) != 0 {
		t.Errorf("statuses = %d, want 0", len(statuses))
	}
}
