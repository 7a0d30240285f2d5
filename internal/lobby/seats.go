package lobby

// seatMap keeps the client→seat and seat→client directions together.
// assign and release are the only mutators; both keep the two directions exact
// inverses of each other.
type seatMap struct {
	byClient map[ClientID]int
	bySeat   []ClientID // nil entry = empty seat
}

func newSeatMap(capacity int) *seatMap {
	return &seatMap{
		byClient: make(map[ClientID]int),
		bySeat:   make([]ClientID, capacity),
	}
}

func (s *seatMap) capacity() int {
	return len(s.bySeat)
}

// seatOf returns the seat held by id.
func (s *seatMap) seatOf(id ClientID) (int, bool) {
	seat, ok := s.byClient[id]
	return seat, ok
}

// holder returns the client in seat, if any. seat must be in range.
func (s *seatMap) holder(seat int) (ClientID, bool) {
	id := s.bySeat[seat]
	return id, id != nil
}

// assign seats id at seat, vacating any other seat id held.
//
// Precondition: id must be non-nil.
// Postcondition: On error the map is unchanged; re-assigning the seat id already
// holds is a no-op.
func (s *seatMap) assign(id ClientID, seat int) error {
	if seat < 0 || seat >= len(s.bySeat) {
		return invalidSeatError(seat, len(s.bySeat))
	}
	if current, ok := s.holder(seat); ok {
		if current == id {
			return nil
		}
		return seatOccupiedError(seat)
	}
	if old, ok := s.byClient[id]; ok {
		s.bySeat[old] = nil
	}
	s.bySeat[seat] = id
	s.byClient[id] = seat
	return nil
}

// release vacates the seat held by id and reports which one it was.
func (s *seatMap) release(id ClientID) (int, bool) {
	seat, ok := s.byClient[id]
	if !ok {
		return 0, false
	}
	delete(s.byClient, id)
	s.bySeat[seat] = nil
	return seat, true
}

func (s *seatMap) clone() *seatMap {
	c := &seatMap{
		byClient: make(map[ClientID]int, len(s.byClient)),
		bySeat:   make([]ClientID, len(s.bySeat)),
	}
	for id, seat := range s.byClient {
		c.byClient[id] = seat
	}
	copy(c.bySeat, s.bySeat)
	return c
}
