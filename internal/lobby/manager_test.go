package lobby

import (
	"fmt"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(3, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	return m
}

func TestNewManager_RejectsNonPositiveCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		_, err := NewManager(capacity, nil, nil)
		assert.Error(t, err, "capacity %d", capacity)
	}
}

func TestManager_AddAndGetClientPosition(t *testing.T) {
	m := newTestManager(t)
	c := fakeClient{"c1"}
	m.AddClient(c, "Alice")

	_, seated, err := m.ClientPosition(c)
	require.NoError(t, err)
	assert.False(t, seated)

	name, err := m.ClientName(c)
	require.NoError(t, err)
	assert.Equal(t, "Alice", name)
}

func TestManager_AddClientDefaultName(t *testing.T) {
	m := newTestManager(t)
	c := fakeClient{"conn-42"}
	m.AddClient(c, "")

	name, err := m.ClientName(c)
	require.NoError(t, err)
	assert.Equal(t, "conn-42", name)
}

func TestManager_AddClientRejectsNil(t *testing.T) {
	m := newTestManager(t)
	var err error
	require.NotPanics(t, func() { err = m.AddClient(nil, "") })
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidClient))
	assert.Zero(t, m.ClientCount())

	require.NotPanics(t, func() {
		resp := m.HandleFunctionCall(nil, CallSetPlayerPosition, map[string]any{"new_position": 0})
		require.NotNil(t, resp)
		assert.Contains(t, resp.Message(), "is not registered")
	})
	assert.Equal(t, []Occupant{{}, {}, {}}, m.Positions())
}

func TestManager_ReAddKeepsSeat(t *testing.T) {
	m := newTestManager(t)
	c := fakeClient{"c1"}
	m.AddClient(c, "Alice")
	require.NoError(t, m.MoveClientPosition(c, 2))

	m.AddClient(c, "")
	name, _ := m.ClientName(c)
	assert.Equal(t, "Alice", name)

	m.AddClient(c, "Alicia")
	name, _ = m.ClientName(c)
	assert.Equal(t, "Alicia", name)

	seat, seated, err := m.ClientPosition(c)
	require.NoError(t, err)
	assert.True(t, seated)
	assert.Equal(t, 2, seat)
	assert.Equal(t, 1, m.ClientCount())
	checkInvariants(t, m.state)
}

func TestManager_MoveClientPosition(t *testing.T) {
	m := newTestManager(t)
	a, b := fakeClient{"a"}, fakeClient{"b"}
	m.AddClient(a, "Bob")
	m.AddClient(b, "Other")

	require.NoError(t, m.MoveClientPosition(a, 1))
	seat, seated, err := m.ClientPosition(a)
	require.NoError(t, err)
	assert.True(t, seated)
	assert.Equal(t, 1, seat)
	assert.Equal(t, Occupant{Name: "Bob", Occupied: true}, m.Positions()[1])

	require.NoError(t, m.MoveClientPosition(a, 2))
	seat, _, _ = m.ClientPosition(a)
	assert.Equal(t, 2, seat)
	positions := m.Positions()
	assert.False(t, positions[1].Occupied)
	assert.Equal(t, Occupant{Name: "Bob", Occupied: true}, positions[2])
	checkInvariants(t, m.state)
}

func TestManager_PositionConflict(t *testing.T) {
	m := newTestManager(t)
	c1, c2 := fakeClient{"c1"}, fakeClient{"c2"}
	m.AddClient(c1, "One")
	m.AddClient(c2, "Two")
	require.NoError(t, m.MoveClientPosition(c1, 0))
	require.NoError(t, m.MoveClientPosition(c2, 2))

	err := m.MoveClientPosition(c2, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSeatOccupied))
	assert.Contains(t, err.Error(), "already taken")

	seat, _, _ := m.ClientPosition(c1)
	assert.Equal(t, 0, seat)
	seat, _, _ = m.ClientPosition(c2)
	assert.Equal(t, 2, seat)
	checkInvariants(t, m.state)
}

func TestManager_MoveOutOfRange(t *testing.T) {
	m := newTestManager(t)
	c := fakeClient{"c"}
	m.AddClient(c, "C")

	for _, seat := range []int{-1, 3} {
		err := m.MoveClientPosition(c, seat)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidSeat))
	}
	_, seated, _ := m.ClientPosition(c)
	assert.False(t, seated)
}

func TestManager_RemoveClient(t *testing.T) {
	m := newTestManager(t)
	c := fakeClient{"c"}
	m.AddClient(c, "Alice")
	require.NoError(t, m.MoveClientPosition(c, 1))

	require.NoError(t, m.RemoveClient(c))
	assert.False(t, m.Positions()[1].Occupied)
	assert.Empty(t, m.Clients())
	_, seated := m.state.seats.seatOf(c)
	assert.False(t, seated)

	_, _, err := m.ClientPosition(c)
	assert.True(t, errors.Is(err, ErrUnknownClient))
	assert.True(t, errors.Is(m.RemoveClient(c), ErrUnknownClient))
}

func TestManager_GetPositions(t *testing.T) {
	m := newTestManager(t)
	c1, c2 := fakeClient{"c1"}, fakeClient{"c2"}
	m.AddClient(c1, "Alpha")
	m.AddClient(c2, "Beta")
	require.NoError(t, m.MoveClientPosition(c1, 0))
	require.NoError(t, m.MoveClientPosition(c2, 1))
	require.NoError(t, m.SetClientName(c1, "Charlie"))

	assert.Equal(t, []Occupant{
		{Name: "Charlie", Occupied: true},
		{Name: "Beta", Occupied: true},
		{},
	}, m.Positions())
}

func TestManager_LeaveClientPosition(t *testing.T) {
	m := newTestManager(t)
	c := fakeClient{"c"}
	m.AddClient(c, "C")
	require.NoError(t, m.LeaveClientPosition(c), "leaving without a seat is a no-op")

	require.NoError(t, m.MoveClientPosition(c, 0))
	require.NoError(t, m.LeaveClientPosition(c))
	_, seated, _ := m.ClientPosition(c)
	assert.False(t, seated)
	assert.False(t, m.Positions()[0].Occupied)
}

func TestManager_InvalidClientOperations(t *testing.T) {
	m := newTestManager(t)
	fake := fakeClient{"ghost"}

	_, _, err := m.ClientPosition(fake)
	assert.True(t, errors.Is(err, ErrUnknownClient))
	assert.True(t, errors.Is(m.MoveClientPosition(fake, 0), ErrUnknownClient))
	assert.True(t, errors.Is(m.RemoveClient(fake), ErrUnknownClient))
	assert.True(t, errors.Is(m.SetClientName(fake, "Other name"), ErrUnknownClient))
	assert.True(t, errors.Is(m.LeaveClientPosition(fake), ErrUnknownClient))
	_, err = m.ClientName(fake)
	assert.True(t, errors.Is(err, ErrUnknownClient))
}

func TestManager_ClientsInJoinOrder(t *testing.T) {
	m := newTestManager(t)
	ids := []ClientID{fakeClient{"z"}, fakeClient{"a"}, fakeClient{"m"}}
	for _, id := range ids {
		m.AddClient(id, "")
	}
	assert.Equal(t, ids, m.Clients())

	require.NoError(t, m.RemoveClient(ids[1]))
	assert.Equal(t, []ClientID{ids[0], ids[2]}, m.Clients())
}

func TestManager_ConcurrentSeatClaims(t *testing.T) {
	m, err := NewManager(4, nil, nil)
	require.NoError(t, err)
	const n = 50
	for i := 0; i < n; i++ {
		m.AddClient(fakeClient{fmt.Sprintf("c%d", i)}, "")
	}

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			id := fakeClient{fmt.Sprintf("c%d", i)}
			_ = m.MoveClientPosition(id, i%4)
			_ = m.HandleFunctionCall(id, CallSetPlayerPosition, map[string]any{"new_position": (i + 1) % 4})
			_ = m.Positions()
		}(i)
	}
	wg.Wait()

	m.mu.RLock()
	defer m.mu.RUnlock()
	checkInvariants(t, m.state)
	assert.NotEmpty(t, m.state.seats.byClient)
	assert.Equal(t, n, len(m.state.order))
}
