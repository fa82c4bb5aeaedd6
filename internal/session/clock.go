package session

import (
	"sync"
	"time"
)

// Clock is the countdown abstraction the tracker depends on. Start arms the
// countdown; onTick reports remaining time roughly once per second and
// onExpire fires exactly once when the budget elapses. Cancel disarms a
// running countdown; it is safe to call at any time.
type Clock interface {
	Start(d time.Duration, onTick func(remaining time.Duration), onExpire func())
	Cancel()
}

// TickerClock is a Clock backed by a real time.Ticker. Callbacks run on the
// clock's own goroutine.
type TickerClock struct {
	mu   sync.Mutex
	stop chan struct{}
}

// NewTickerClock returns an unarmed TickerClock.
func NewTickerClock() *TickerClock {
	return &TickerClock{}
}

// Start arms the countdown, cancelling any previous one.
func (c *TickerClock) Start(d time.Duration, onTick func(remaining time.Duration), onExpire func()) {
	c.Cancel()

	stop := make(chan struct{})
	c.mu.Lock()
	c.stop = stop
	c.mu.Unlock()

	deadline := time.Now().Add(d)
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				remaining := time.Until(deadline)
				if remaining <= 0 {
					if onExpire != nil {
						onExpire()
					}
					return
				}
				if onTick != nil {
					onTick(remaining)
				}
			}
		}
	}()
}

// Cancel disarms the countdown if one is running.
func (c *TickerClock) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}
