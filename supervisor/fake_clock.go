package supervisor

import "time"

// FakeClock is a manually advanced Source for deterministic tests of the
// liveness and quota tickers (P5/P9).
type FakeClock struct {
	now     time.Time
	tickers []*fakeTicker
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time { return c.now }

func (c *FakeClock) NewTicker(d time.Duration) Ticker {
	t := &fakeTicker{ch: make(chan time.Time, 1), period: d}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves the fake clock forward and fires any ticker whose period
// has elapsed since the last fire.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
	for _, t := range c.tickers {
		if t.stopped {
			continue
		}
		select {
		case t.ch <- c.now:
		default:
		}
	}
}

type fakeTicker struct {
	ch      chan time.Time
	period  time.Duration
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped = true }
