package lobby

import (
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Manager tracks the roster and seating of one game session.
// All methods are safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	capacity int
	state    *State
	calls    *CallRegistry
	logger   *zap.Logger
}

// NewManager creates a session with capacity seats.
//
// Precondition: capacity must be > 0. calls may be nil (DefaultCallRegistry is
// used); logger may be nil.
// Postcondition: Returns an empty Manager, or an error if capacity is not positive.
func NewManager(capacity int, calls *CallRegistry, logger *zap.Logger) (*Manager, error) {
	if capacity <= 0 {
		return nil, errors.Newf("lobby capacity must be positive, got %d", capacity)
	}
	if calls == nil {
		calls = DefaultCallRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		capacity: capacity,
		state:    newState(capacity),
		calls:    calls,
		logger:   logger,
	}, nil
}

// Capacity returns the fixed number of seats.
func (m *Manager) Capacity() int {
	return m.capacity
}

// AddClient registers id with no seat. An empty name defaults to id.String().
// Adding a known id again only updates its name, and only when name is non-empty;
// its seat is kept.
//
// Precondition: id must be comparable.
// Postcondition: Returns an ErrInvalidClient error, changing nothing, if id is nil.
func (m *Manager) AddClient(id ClientID, name string) error {
	if id == nil {
		return errors.Mark(errors.New("client identity must not be nil"), ErrInvalidClient)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.add(id, name)
	return nil
}

// ClientPosition returns the seat held by id; seated is false when it holds none.
//
// Postcondition: Returns an ErrUnknownClient error if id was never added.
func (m *Manager) ClientPosition(id ClientID) (seat int, seated bool, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Seat(id)
}

// ClientName returns the display name of id.
func (m *Manager) ClientName(id ClientID) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Name(id)
}

// SetClientName changes the display name of id.
//
// Postcondition: Returns an ErrUnknownClient error if id is not registered.
func (m *Manager) SetClientName(id ClientID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Rename(id, name)
}

// MoveClientPosition seats id at seat, vacating its previous seat.
//
// Postcondition: Returns an ErrUnknownClient, ErrInvalidSeat or ErrSeatOccupied
// error and leaves every seat unchanged on failure.
func (m *Manager) MoveClientPosition(id ClientID, seat int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Move(id, seat)
}

// LeaveClientPosition vacates the seat held by id, if any.
func (m *Manager) LeaveClientPosition(id ClientID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Leave(id)
}

// RemoveClient vacates the seat of id and drops it from the roster.
//
// Postcondition: Returns an ErrUnknownClient error if id is not registered.
func (m *Manager) RemoveClient(id ClientID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.remove(id)
}

// Positions returns a snapshot of every seat, indexed 0..Capacity()-1.
func (m *Manager) Positions() []Occupant {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Positions()
}

// Clients returns the roster in join order.
func (m *Manager) Clients() []ClientID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clients()
}

// ClientCount returns the number of registered clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.state.order)
}
