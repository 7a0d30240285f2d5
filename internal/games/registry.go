// Package games keeps the process-wide book of running game instances and
// mediates their shutdown.
package games

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/gamelobby/internal/merr"
)

// Error kinds returned by the Registry; test them with errors.Is.
var (
	ErrDuplicateGame = errors.New("duplicate game")
	ErrUnknownGame   = errors.New("unknown game")
	ErrGameClosing   = errors.New("game closing")
	ErrCloseFailed   = errors.New("game close failed")
)

// DefaultCloseConcurrency bounds how many games CloseAll closes at once.
const DefaultCloseConcurrency = 16

// Game is a running game instance as seen by the registry.
type Game interface {
	// CloseGame shuts the instance down. It may block until the instance has
	// released its connections.
	CloseGame(ctx context.Context) error
}

// Registry maps game identifiers to running instances.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	games   map[string]Game
	closing map[string]struct{}
	logger  *zap.Logger
	// closeLimit caps concurrent closes in CloseAll.
	closeLimit int
}

// NewRegistry creates an empty Registry.
//
// Precondition: logger may be nil.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		games:      make(map[string]Game),
		closing:    make(map[string]struct{}),
		logger:     logger,
		closeLimit: DefaultCloseConcurrency,
	}
}

// AddGame registers game under id.
//
// Precondition: id must be non-empty; game must be non-nil.
// Postcondition: Returns an ErrDuplicateGame error if id is already present,
// including while that game is closing.
func (r *Registry) AddGame(id string, game Game) error {
	if id == "" {
		return errors.New("game id must not be empty")
	}
	if game == nil {
		return errors.Newf("game %q must not be nil", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.games[id]; exists {
		return errors.Mark(errors.Newf("game %q already exists", id), ErrDuplicateGame)
	}
	r.games[id] = game
	r.logger.Info("game added",
		zap.String("game_id", id),
		zap.Int("games", len(r.games)),
	)
	return nil
}

// GetGame returns the game registered under id.
//
// Postcondition: Returns an ErrUnknownGame error if id is absent.
func (r *Registry) GetGame(id string) (Game, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	game, ok := r.games[id]
	if !ok {
		return nil, unknownGameError(id)
	}
	return game, nil
}

// RemoveGame closes the game registered under id and then drops it.
//
// The registry lock is not held while CloseGame runs; the entry stays visible to
// GetGame until the close has completed. If CloseGame fails the entry is kept
// and a later RemoveGame may retry.
//
// Postcondition: Returns ErrUnknownGame if id is absent, ErrGameClosing if
// another RemoveGame for id is in flight, or an ErrCloseFailed error wrapping the
// close failure.
func (r *Registry) RemoveGame(ctx context.Context, id string) error {
	r.mu.Lock()
	game, ok := r.games[id]
	if !ok {
		r.mu.Unlock()
		return unknownGameError(id)
	}
	if _, busy := r.closing[id]; busy {
		r.mu.Unlock()
		return errors.Mark(errors.Newf("game %q is already closing", id), ErrGameClosing)
	}
	r.closing[id] = struct{}{}
	r.mu.Unlock()

	start := time.Now()
	closeErr := game.CloseGame(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.closing, id)

	if closeErr != nil {
		r.logger.Warn("closing game failed, keeping entry",
			zap.String("game_id", id),
			zap.Error(closeErr),
			zap.Duration("elapsed", time.Since(start)),
		)
		return errors.Mark(errors.Wrapf(closeErr, "closing game %q", id), ErrCloseFailed)
	}

	delete(r.games, id)
	r.logger.Info("game removed",
		zap.String("game_id", id),
		zap.Int("games", len(r.games)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// GameIDs returns a sorted snapshot of the registered identifiers.
func (r *Registry) GameIDs() []string {
	r.mu.RLock()
	ids := lo.Keys(r.games)
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered games.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}

// CloseAll removes every registered game, closing up to DefaultCloseConcurrency
// of them at a time.
//
// Postcondition: Games whose close failed remain registered; the returned error
// combines every failure.
func (r *Registry) CloseAll(ctx context.Context) error {
	ids := r.GameIDs()
	errs := make([]error, len(ids))

	var g errgroup.Group
	g.SetLimit(r.closeLimit)
	for i, id := range ids {
		g.Go(func() error {
			if err := r.RemoveGame(ctx, id); err != nil && !errors.Is(err, ErrUnknownGame) {
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()

	return merr.Combine(errs...)
}

func unknownGameError(id string) error {
	return errors.Mark(errors.Newf("game %q does not exist", id), ErrUnknownGame)
}
