package scripting

import (
	"math"

	lua "github.com/yuin/gopher-lua"

	"github.com/cory-johannsen/gamelobby/internal/lobby"
)

// binding is the session view a scripted call runs against. Both fields are nil
// outside a call.
type binding struct {
	st     *lobby.State
	caller lobby.ClientID
}

// registerLobbyModule installs the lobby table into L. Its functions act on the
// session and caller currently bound to b.
//
// Seats are 0-based as on the wire. Readers return nil when there is nothing to
// report; mutators return true, or nil and a message.
//
// Precondition: L must be from NewSandboxedState; b must be non-nil.
// Postcondition: lobby global is defined in L.
func registerLobbyModule(L *lua.LState, b *binding) {
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"name":       b.name,
		"seat":       b.seat,
		"capacity":   b.capacity,
		"occupant":   b.occupant,
		"positions":  b.positions,
		"rename":     b.rename,
		"take_seat":  b.takeSeat,
		"leave_seat": b.leaveSeat,
	})
	L.SetGlobal("lobby", mod)
}

func (b *binding) state(L *lua.LState) *lobby.State {
	if b.st == nil {
		L.RaiseError("lobby is only available while a call is running")
	}
	return b.st
}

func (b *binding) name(L *lua.LState) int {
	n, err := b.state(L).Name(b.caller)
	if err != nil {
		return fail(L, err)
	}
	L.Push(lua.LString(n))
	return 1
}

func (b *binding) seat(L *lua.LState) int {
	seat, seated, err := b.state(L).Seat(b.caller)
	if err != nil {
		return fail(L, err)
	}
	if !seated {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(seat))
	return 1
}

func (b *binding) capacity(L *lua.LState) int {
	L.Push(lua.LNumber(b.state(L).Capacity()))
	return 1
}

func (b *binding) occupant(L *lua.LState) int {
	st := b.state(L)
	id, held, err := st.Occupant(checkSeat(L, 1))
	if err != nil {
		return fail(L, err)
	}
	if !held {
		L.Push(lua.LNil)
		return 1
	}
	n, err := st.Name(id)
	if err != nil {
		return fail(L, err)
	}
	L.Push(lua.LString(n))
	return 1
}

// positions returns an array whose element i+1 describes seat i.
func (b *binding) positions(L *lua.LState) int {
	out := L.NewTable()
	for _, o := range b.state(L).Positions() {
		entry := L.NewTable()
		entry.RawSetString("name", lua.LString(o.Name))
		entry.RawSetString("occupied", lua.LBool(o.Occupied))
		out.Append(entry)
	}
	L.Push(out)
	return 1
}

func (b *binding) rename(L *lua.LState) int {
	return result(L, b.state(L).Rename(b.caller, L.CheckString(1)))
}

func (b *binding) takeSeat(L *lua.LState) int {
	st := b.state(L)
	return result(L, st.Move(b.caller, checkSeat(L, 1)))
}

func (b *binding) leaveSeat(L *lua.LState) int {
	return result(L, b.state(L).Leave(b.caller))
}

func checkSeat(L *lua.LState, n int) int {
	v := float64(L.CheckNumber(n))
	if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		L.ArgError(n, "seat must be an integer")
	}
	return int(v)
}

func result(L *lua.LState, err error) int {
	if err != nil {
		return fail(L, err)
	}
	L.Push(lua.LTrue)
	return 1
}

func fail(L *lua.LState, err error) int {
	L.Push(lua.LNil)
	L.Push(lua.LString(err.Error()))
	return 2
}
