package gameserver

import (
	"sync"
	"sync/atomic"
	"time"
)

// MatchClock fires a callback at a fixed rate while started.
type MatchClock struct {
	interval time.Duration
	ticks    atomic.Uint64
}

// NewMatchClock creates a stopped MatchClock.
//
// Precondition: interval must be > 0.
func NewMatchClock(interval time.Duration) *MatchClock {
	if interval <= 0 {
		panic("gameserver.NewMatchClock: interval must be > 0")
	}
	return &MatchClock{interval: interval}
}

// Ticks returns the number of callbacks fired so far.
func (c *MatchClock) Ticks() uint64 {
	return c.ticks.Load()
}

// Start launches the clock goroutine and returns a stop function.
// Calling stop() is idempotent; once it returns no further callback starts.
//
// Postcondition: onTick is invoked once per interval until stop() is called.
func (c *MatchClock) Start(onTick func()) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	var once sync.Once
	go func() {
		defer close(exited)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case <-done:
					return
				default:
				}
				c.ticks.Add(1)
				onTick()
			case <-done:
				return
			}
		}
	}()
	return func() {
		once.Do(func() { close(done) })
		<-exited
	}
}
