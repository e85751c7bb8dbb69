// Package health runs readiness checks against the service's dependencies.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type CheckResult struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type Checker interface {
	Check(ctx context.Context) CheckResult
}

// ProbeRunner runs all checks concurrently, each under timeout, and reuses the
// last outcome for cacheTTL so probes do not hammer the datastore.
type ProbeRunner struct {
	checkers []Checker
	timeout  time.Duration
	cacheTTL time.Duration

	mu        sync.Mutex
	checkedAt time.Time
	ready     bool
	results   []CheckResult
}

func NewProbeRunner(timeout, cacheTTL time.Duration, checkers ...Checker) *ProbeRunner {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ProbeRunner{checkers: checkers, timeout: timeout, cacheTTL: cacheTTL}
}

func (p *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cacheTTL > 0 && !p.checkedAt.IsZero() && time.Since(p.checkedAt) < p.cacheTTL {
		return p.ready, p.results
	}

	results := make([]CheckResult, len(p.checkers))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range p.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, p.timeout)
			defer cancel()
			start := time.Now()
			res := c.Check(cctx)
			res.LatencyMS = time.Since(start).Milliseconds()
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	ready := true
	for _, res := range results {
		ready = ready && res.Healthy
	}
	p.ready, p.results, p.checkedAt = ready, results, time.Now()
	return ready, results
}

type dbChecker struct{ db *gorm.DB }

func NewDBChecker(db *gorm.DB) Checker { return dbChecker{db: db} }

func (c dbChecker) Check(ctx context.Context) CheckResult {
	sqlDB, err := c.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	return result("db", err)
}

type redisChecker struct{ client redis.UniversalClient }

func NewRedisChecker(client redis.UniversalClient) Checker { return redisChecker{client: client} }

func (c redisChecker) Check(ctx context.Context) CheckResult {
	return result("redis", c.client.Ping(ctx).Err())
}

func result(name string, err error) CheckResult {
	if err != nil {
		return CheckResult{Name: name, Healthy: false, Error: err.Error()}
	}
	return CheckResult{Name: name, Healthy: true}
}
