// Package scripting loads operator-supplied Lua scripts as lobby remote calls.
// Scripts run in sandboxed GopherLua states and reach the session only through
// the lobby table bound for the duration of each call.
package scripting

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the maximum number of Lua opcodes allowed per
// call when no override is configured.
const DefaultInstructionLimit = 100_000

// ErrInstructionLimit marks errors from calls that ran out of opcodes.
var ErrInstructionLimit = errors.New("instruction limit exceeded")

// countingContext is a context.Context that cancels itself after Done() has
// been called limit times. GopherLua's mainLoopWithContext calls Done() once
// per opcode, making this an exact instruction-count limit.
type countingContext struct {
	context.Context
	cancel    context.CancelFunc
	remaining *atomic.Int64
}

// Done returns the underlying cancellation channel. Each call decrements the
// remaining counter; when it reaches zero the cancel function fires,
// terminating the Lua VM on the next opcode boundary.
func (c *countingContext) Done() <-chan struct{} {
	if c.remaining.Add(-1) <= 0 {
		c.cancel()
	}
	return c.Context.Done()
}

// newCountingContext returns a context that cancels after limit calls to Done().
// Precondition: limit > 0.
func newCountingContext(limit int) (context.Context, context.CancelFunc) {
	base, cancel := context.WithCancel(context.Background())
	rem := &atomic.Int64{}
	rem.Store(int64(limit))
	return &countingContext{
		Context:   base,
		cancel:    cancel,
		remaining: rem,
	}, cancel
}

// NewSandboxedState creates a GopherLua LState with:
//   - Only safe stdlib loaded: base, table, string, math
//   - Dangerous globals removed: dofile, loadfile, load, collectgarbage, require
//
// The state carries no instruction limit of its own; run code through
// CallLimited to bound it.
//
// Postcondition: Returns a non-nil LState. The caller owns it and must call
// L.Close() when done.
func NewSandboxedState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "collectgarbage", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// CallLimited calls fn with args in L, aborting after limit opcodes, and leaves
// nret results on the stack on success. The limit is fresh for every call.
//
// Precondition: L must not be used concurrently; limit <= 0 uses
// DefaultInstructionLimit.
// Postcondition: Returns an ErrInstructionLimit error if the budget ran out, the
// Lua error if fn raised one, or nil.
func CallLimited(L *lua.LState, fn lua.LValue, nret, limit int, args ...lua.LValue) error {
	if limit <= 0 {
		limit = DefaultInstructionLimit
	}
	ctx, cancel := newCountingContext(limit)
	defer cancel()

	L.SetContext(ctx)
	defer L.RemoveContext()

	err := L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, args...)
	if err != nil && ctx.Err() != nil {
		return errors.Mark(errors.Newf("script exceeded %d instructions", limit), ErrInstructionLimit)
	}
	return err
}
