package session

import (
	"context"
	"time"

	"gopkg.in/op/go-logging.v1"

	"healthrelay/internal/util/worker"
)

// DefaultSweepInterval is how often expired sessions are removed.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper periodically removes expired sessions, independent of request
// traffic. In-flight consumers are not notified; their next poll sees
// session_not_found.
type Sweeper struct {
	worker.Worker

	svc      *Service
	interval time.Duration
	log      *logging.Logger
}

// NewSweeper returns a stopped sweeper; call Start to run it.
func NewSweeper(svc *Service, interval time.Duration, log *logging.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{svc: svc, interval: interval, log: log}
}

// Start launches the sweep loop. Halt stops it.
func (w *Sweeper) Start() {
	w.Go(w.loop)
}

func (w *Sweeper) loop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.HaltCh():
			w.log.Debug("sweeper halted")
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()
	go func() {
		select {
		case <-w.HaltCh():
			cancel()
		case <-ctx.Done():
		}
	}()
	if _, err := w.svc.SweepExpired(ctx); err != nil {
		w.log.Errorf("sweep failed: %v", err)
	}
}
