package gameserver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/gamelobby/internal/games"
	"github.com/cory-johannsen/gamelobby/internal/observability"
)

// Reaper periodically closes and removes games that have had no clients for
// longer than a timeout. It implements server.Service.
//
// Invariant: at most one sweep runs at a time.
type Reaper struct {
	registry *games.Registry
	timeout  time.Duration
	interval time.Duration
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewReaper returns a reaper that sweeps every interval.
//
// Precondition: timeout and interval must be > 0.
func NewReaper(registry *games.Registry, timeout, interval time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Reaper {
	if timeout <= 0 || interval <= 0 {
		panic("gameserver.NewReaper: timeout and interval must be > 0")
	}
	return &Reaper{
		registry: registry,
		timeout:  timeout,
		interval: interval,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start sweeps once per interval until Stop is called.
//
// Postcondition: Returns nil after Stop.
func (r *Reaper) Start() error {
	defer close(r.done)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-r.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Stop ends the sweep loop, cancelling an in-flight sweep, and waits for it
// to return or for ctx to be done.
func (r *Reaper) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stop) })
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep removes every game idle for at least the timeout. A client that joins
// between the idle check and the close is disconnected with the game.
//
// Postcondition: Returns the identifiers of the games removed.
func (r *Reaper) Sweep(ctx context.Context) []string {
	now := r.now()
	var removed []string
	for _, id := range r.registry.GameIDs() {
		g, err := r.registry.GetGame(id)
		if err != nil {
			continue
		}
		game, ok := g.(*Game)
		if !ok {
			continue
		}
		idle := game.IdleFor(now)
		if idle < r.timeout {
			continue
		}
		if err := r.registry.RemoveGame(ctx, id); err != nil {
			r.logger.Warn("reaping idle game", zap.String("game_id", id), zap.Error(err))
			continue
		}
		r.logger.Info("reaped idle game", zap.String("game_id", id), zap.Duration("idle", idle))
		removed = append(removed, id)
	}
	if len(removed) > 0 {
		r.metrics.Games.Set(float64(r.registry.Len()))
	}
	return removed
}
