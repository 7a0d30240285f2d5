package lobby

import (
	"github.com/samber/lo"
)

// State is the roster and seating of one session. The Manager owns it behind its
// lock; call handlers receive it while the lock is held and must not retain it
// after they return.
type State struct {
	names map[ClientID]string
	order []ClientID // join order
	seats *seatMap
}

func newState(capacity int) *State {
	return &State{
		names: make(map[ClientID]string),
		seats: newSeatMap(capacity),
	}
}

// Capacity returns the number of seats.
func (st *State) Capacity() int {
	return st.seats.capacity()
}

// Known reports whether id is on the roster.
func (st *State) Known(id ClientID) bool {
	_, ok := st.names[id]
	return ok
}

// Name returns the display name of id.
//
// Postcondition: Returns an ErrUnknownClient error if id is not on the roster.
func (st *State) Name(id ClientID) (string, error) {
	name, ok := st.names[id]
	if !ok {
		return "", unknownClientError(id)
	}
	return name, nil
}

// Seat returns the seat held by id; seated is false when id holds none.
//
// Postcondition: Returns an ErrUnknownClient error if id is not on the roster.
func (st *State) Seat(id ClientID) (seat int, seated bool, err error) {
	if !st.Known(id) {
		return 0, false, unknownClientError(id)
	}
	seat, seated = st.seats.seatOf(id)
	return seat, seated, nil
}

// Occupant returns the client in seat.
//
// Postcondition: Returns an ErrInvalidSeat error if seat is out of range.
func (st *State) Occupant(seat int) (ClientID, bool, error) {
	if seat < 0 || seat >= st.Capacity() {
		return nil, false, invalidSeatError(seat, st.Capacity())
	}
	id, ok := st.seats.holder(seat)
	return id, ok, nil
}

// Rename sets the display name of id.
func (st *State) Rename(id ClientID, name string) error {
	if !st.Known(id) {
		return unknownClientError(id)
	}
	st.names[id] = name
	return nil
}

// Move seats id at seat, vacating the seat it held before.
//
// Postcondition: Returns ErrUnknownClient, ErrInvalidSeat or ErrSeatOccupied
// errors with the state unchanged; moving to the seat already held is a no-op.
func (st *State) Move(id ClientID, seat int) error {
	if !st.Known(id) {
		return unknownClientError(id)
	}
	return st.seats.assign(id, seat)
}

// Leave vacates the seat of id, if it holds one.
func (st *State) Leave(id ClientID) error {
	if !st.Known(id) {
		return unknownClientError(id)
	}
	st.seats.release(id)
	return nil
}

// Positions returns a snapshot of every seat in index order.
func (st *State) Positions() []Occupant {
	return lo.Map(st.seats.bySeat, func(id ClientID, _ int) Occupant {
		if id == nil {
			return Occupant{}
		}
		return Occupant{Name: st.names[id], Occupied: true}
	})
}

// Clients returns the roster in join order.
func (st *State) Clients() []ClientID {
	out := make([]ClientID, len(st.order))
	copy(out, st.order)
	return out
}

func (st *State) add(id ClientID, name string) {
	if _, ok := st.names[id]; ok {
		if name != "" {
			st.names[id] = name
		}
		return
	}
	if name == "" {
		name = id.String()
	}
	st.names[id] = name
	st.order = append(st.order, id)
}

func (st *State) remove(id ClientID) error {
	if !st.Known(id) {
		return unknownClientError(id)
	}
	st.seats.release(id)
	delete(st.names, id)
	st.order = lo.Without(st.order, id)
	return nil
}

func (st *State) clone() *State {
	c := &State{
		names: make(map[ClientID]string, len(st.names)),
		order: make([]ClientID, len(st.order)),
		seats: st.seats.clone(),
	}
	for id, name := range st.names {
		c.names[id] = name
	}
	copy(c.order, st.order)
	return c
}
