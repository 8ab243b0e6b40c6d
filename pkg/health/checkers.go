package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// Pinger matches the Ping method shared by the database pool and the Redis
// client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck probes any connection-backed dependency.
func PingCheck(p Pinger) Check {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// GoroutineCountCheck reports unhealthy when the goroutine count exceeds the
// threshold, catching goroutine leaks before they exhaust memory.
func GoroutineCountCheck(threshold int) Check {
	return func(_ context.Context) error {
		if count := runtime.NumGoroutine(); count > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", count, threshold)
		}
		return nil
	}
}
