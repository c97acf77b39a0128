package maintenance

import (
	"sync"
	"time"

	"gym-auth/internal/observability"
)

const defaultSweepInterval = time.Hour

// Sweeper runs Sweep on a fixed interval until Stop is called. A late or
// skipped tick only delays memory reclamation.
type Sweeper struct {
	registry Sweepable
	logger   *observability.Logger
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

func NewSweeper(registry Sweepable, logger *observability.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		registry: registry,
		logger:   logger,
		interval: interval,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the loop. It does nothing once the sweeper is running or
// has been stopped.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	go s.loop()
}

// Stop halts the loop and waits for it to exit. Safe to call more than once,
// and before Start.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stop)
		if !s.started {
			close(s.done)
		}
	}
	s.mu.Unlock()

	<-s.done
}

func (s *Sweeper) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			removed := s.registry.Sweep(s.now())
			if removed > 0 {
				s.logger.Info("revocation_sweep_completed", map[string]any{
					"trigger":   "timer",
					"removed":   removed,
					"remaining": s.registry.Len(),
				})
			}
		}
	}
}
