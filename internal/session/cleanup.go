package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Cleaner reclaims idle, empty rooms on a fixed interval, bounding the
// registry's memory footprint independently of connection traffic.
type Cleaner struct {
	registry      *Registry
	interval      time.Duration
	idleThreshold time.Duration

	mu      sync.Mutex
	done    chan struct{}
	stopped chan struct{}
}

func NewCleaner(registry *Registry, interval, idleThreshold time.Duration) *Cleaner {
	return &Cleaner{
		registry:      registry,
		interval:      interval,
		idleThreshold: idleThreshold,
	}
}

// Start launches the sweep loop. Calling Start on a running cleaner is a
// no-op.
func (c *Cleaner) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return
	}
	c.done = make(chan struct{})
	c.stopped = make(chan struct{})
	go c.run(c.done, c.stopped)
	log.Info().Dur("interval", c.interval).Dur("idleThreshold", c.idleThreshold).Msg("Session cleaner started.")
}

// Stop halts the sweep loop and waits for any in-flight sweep to finish,
// so no sweep runs after it returns. Safe to call repeatedly and without
// a prior Start.
func (c *Cleaner) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		return
	}
	close(c.done)
	<-c.stopped
	c.done = nil
	c.stopped = nil
	log.Info().Msg("Session cleaner stopped.")
}

func (c *Cleaner) run(done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			if removed := c.registry.Sweep(now, c.idleThreshold); len(removed) > 0 {
				log.Info().Strs("sessions", removed).Msg("Reclaimed idle sessions.")
			}
		}
	}
}
