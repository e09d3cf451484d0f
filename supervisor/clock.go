// Package supervisor hosts the process-level event loop described in
// §4.I: it starts the store executor, the BeeMsg and RPC servers, the
// topology liveness ticker and the quota ticker as tracked goroutines, and
// propagates one shutdown signal to all of them. Grounded on the teacher's
// cmd/cmd.go signal-handling / ordered start-stop sequence.
package supervisor

import "time"

// Source is the injectable monotonic time source §4.I requires so the
// liveness and quota tickers are deterministic under test.
type Source interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker mirrors the subset of *time.Ticker callers need, so a fake
// implementation can fire on demand instead of waiting on a wall clock.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock is the production Source backed by the standard library.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }
