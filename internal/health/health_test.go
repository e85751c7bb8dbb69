package health

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type countingChecker struct {
	calls   atomic.Int32
	healthy bool
}

func (c *countingChecker) Check(context.Context) CheckResult {
	c.calls.Add(1)
	if c.healthy {
		return CheckResult{Name: "fake", Healthy: true}
	}
	return CheckResult{Name: "fake", Error: "down"}
}

func TestProbeRunnerAggregatesChecks(t *testing.T) {
	up := &countingChecker{healthy: true}
	down := &countingChecker{}

	ready, results := NewProbeRunner(time.Second, 0, up).Ready(context.Background())
	if !ready || len(results) != 1 {
		t.Fatalf("expected ready with one result, got %v %+v", ready, results)
	}
	ready, results = NewProbeRunner(time.Second, 0, up, down).Ready(context.Background())
	if ready {
		t.Fatalf("expected unready when one check fails: %+v", results)
	}
	if results[1].Error != "down" {
		t.Fatalf("expected results in checker order, got %+v", results)
	}
}

func TestProbeRunnerCachesOutcome(t *testing.T) {
	c := &countingChecker{healthy: true}
	p := NewProbeRunner(time.Second, time.Hour, c)
	p.Ready(context.Background())
	p.Ready(context.Background())
	if got := c.calls.Load(); got != 1 {
		t.Fatalf("expected cached probe, checker ran %d times", got)
	}
}

func TestDependencyCheckers(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:health_check?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	p := NewProbeRunner(time.Second, 0, NewDBChecker(db), NewRedisChecker(client))
	if ready, results := p.Ready(context.Background()); !ready {
		t.Fatalf("expected dependencies ready: %+v", results)
	}

	server.Close()
	ready, results := p.Ready(context.Background())
	if ready || results[1].Name != "redis" || results[1].Healthy {
		t.Fatalf("expected redis failure, got %+v", results)
	}
}
