package games

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"
)

type fakeGame struct {
	closes  atomic.Int32
	closeFn func(ctx context.Context) error
}

func (g *fakeGame) CloseGame(ctx context.Context) error {
	g.closes.Add(1)
	if g.closeFn != nil {
		return g.closeFn(ctx)
	}
	return nil
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(zaptest.NewLogger(t))
}

func TestRegistry_AddAndGetGame(t *testing.T) {
	r := newTestRegistry(t)
	g := &fakeGame{}
	require.NoError(t, r.AddGame("game1", g))

	got, err := r.GetGame("game1")
	require.NoError(t, err)
	assert.Same(t, g, got)
}

func TestRegistry_AddDuplicateGame(t *testing.T) {
	r := newTestRegistry(t)
	g := &fakeGame{}
	require.NoError(t, r.AddGame("game1", g))

	err := r.AddGame("game1", g)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateGame))
	assert.Contains(t, err.Error(), "already exists")
}

func TestRegistry_AddRejectsEmptyIDAndNilGame(t *testing.T) {
	r := newTestRegistry(t)
	assert.Error(t, r.AddGame("", &fakeGame{}))
	assert.Error(t, r.AddGame("g", nil))
	assert.Zero(t, r.Len())
}

func TestRegistry_GetNonexistentGame(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.GetGame("no_such_game")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownGame))
	assert.Contains(t, err.Error(), "does not exist")
}

func TestRegistry_RemoveGame(t *testing.T) {
	r := newTestRegistry(t)
	g := &fakeGame{}
	require.NoError(t, r.AddGame("game1", g))

	require.NoError(t, r.RemoveGame(context.Background(), "game1"))
	assert.Equal(t, int32(1), g.closes.Load())
	assert.NotContains(t, r.GameIDs(), "game1")

	err := r.RemoveGame(context.Background(), "game1")
	assert.True(t, errors.Is(err, ErrUnknownGame))
	assert.Equal(t, int32(1), g.closes.Load())
}

func TestRegistry_GetAllGameIDs(t *testing.T) {
	r := newTestRegistry(t)
	g := &fakeGame{}
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, r.AddGame(id, g))
	}
	assert.Equal(t, []string{"a", "b", "c"}, r.GameIDs())
	assert.Equal(t, 3, r.Len())
}

func TestRegistry_EntryVisibleWhileClosing(t *testing.T) {
	r := newTestRegistry(t)
	release := make(chan struct{})
	entered := make(chan struct{})
	g := &fakeGame{closeFn: func(context.Context) error {
		close(entered)
		<-release
		return nil
	}}
	require.NoError(t, r.AddGame("slow", g))
	require.NoError(t, r.AddGame("other", &fakeGame{}))

	done := make(chan error, 1)
	go func() { done <- r.RemoveGame(context.Background(), "slow") }()
	<-entered

	// registry stays usable for other games and still shows the closing one
	got, err := r.GetGame("slow")
	require.NoError(t, err)
	assert.Same(t, g, got)
	require.NoError(t, r.AddGame("third", &fakeGame{}))
	assert.True(t, errors.Is(r.AddGame("slow", &fakeGame{}), ErrDuplicateGame))
	assert.True(t, errors.Is(r.RemoveGame(context.Background(), "slow"), ErrGameClosing))

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("RemoveGame did not return")
	}
	assert.Equal(t, []string{"other", "third"}, r.GameIDs())
	assert.Equal(t, int32(1), g.closes.Load())
}

func TestRegistry_RemoveGameCloseFailureKeepsEntry(t *testing.T) {
	r := newTestRegistry(t)
	fail := true
	g := &fakeGame{closeFn: func(context.Context) error {
		if fail {
			return errors.New("socket stuck")
		}
		return nil
	}}
	require.NoError(t, r.AddGame("g", g))

	err := r.RemoveGame(context.Background(), "g")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCloseFailed))
	assert.Contains(t, err.Error(), "socket stuck")
	assert.Equal(t, []string{"g"}, r.GameIDs())

	fail = false
	require.NoError(t, r.RemoveGame(context.Background(), "g"))
	assert.Empty(t, r.GameIDs())
	assert.Equal(t, int32(2), g.closes.Load())
}

func TestRegistry_RemoveGamePassesContext(t *testing.T) {
	r := newTestRegistry(t)
	g := &fakeGame{closeFn: func(ctx context.Context) error { return ctx.Err() }}
	require.NoError(t, r.AddGame("g", g))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.RemoveGame(ctx, "g")
	assert.True(t, errors.Is(err, ErrCloseFailed))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRegistry_CloseAll(t *testing.T) {
	r := newTestRegistry(t)
	ok1, ok2 := &fakeGame{}, &fakeGame{}
	bad := &fakeGame{closeFn: func(context.Context) error { return errors.New("refused") }}
	require.NoError(t, r.AddGame("ok1", ok1))
	require.NoError(t, r.AddGame("ok2", ok2))
	require.NoError(t, r.AddGame("bad", bad))

	err := r.CloseAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
	assert.Equal(t, []string{"bad"}, r.GameIDs())
	assert.Equal(t, int32(1), ok1.closes.Load())
	assert.Equal(t, int32(1), ok2.closes.Load())
}

func TestRegistry_CloseAllReportsEveryFailure(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.AddGame("x", &fakeGame{closeFn: func(context.Context) error { return errors.New("x refused") }}))
	require.NoError(t, r.AddGame("y", &fakeGame{closeFn: func(context.Context) error { return errors.New("y refused") }}))

	err := r.CloseAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x refused")
	assert.Contains(t, err.Error(), "y refused")
	assert.True(t, errors.Is(err, ErrCloseFailed))
	assert.Equal(t, []string{"x", "y"}, r.GameIDs())
}

func TestRegistry_CloseAllEmpty(t *testing.T) {
	assert.NoError(t, newTestRegistry(t).CloseAll(context.Background()))
}

func TestRegistry_ConcurrentAddRemove(t *testing.T) {
	r := newTestRegistry(t)
	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("g%d", i)
			_ = r.AddGame(id, &fakeGame{})
			_, _ = r.GetGame(id)
			_ = r.GameIDs()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, n, r.Len())

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_ = r.RemoveGame(context.Background(), fmt.Sprintf("g%d", i))
		}(i)
	}
	wg.Wait()
	assert.Zero(t, r.Len())
}

func TestPropertyRegistryMatchesModel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := NewRegistry(nil)
		model := map[string]bool{}
		ids := []string{"a", "b", "c", "d"}

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			id := rapid.SampledFrom(ids).Draw(t, "id")
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				err := r.AddGame(id, &fakeGame{})
				if model[id] != (err != nil) {
					t.Fatalf("AddGame(%s) err=%v with model present=%v", id, err, model[id])
				}
				model[id] = true
			case 1:
				err := r.RemoveGame(context.Background(), id)
				if model[id] == (err != nil) {
					t.Fatalf("RemoveGame(%s) err=%v with model present=%v", id, err, model[id])
				}
				delete(model, id)
			case 2:
				_, err := r.GetGame(id)
				if model[id] == (err != nil) {
					t.Fatalf("GetGame(%s) err=%v with model present=%v", id, err, model[id])
				}
			}
		}
		if r.Len() != len(model) {
			t.Fatalf("registry has %d games, model %d", r.Len(), len(model))
		}
	})
}

func TestRegistry_CloseAllBoundsConcurrency(t *testing.T) {
	r := newTestRegistry(t)
	r.closeLimit = 2

	var inFlight, peak atomic.Int32
	closeFn := func(context.Context) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}

	fakes := make([]*fakeGame, 6)
	for i := range fakes {
		fakes[i] = &fakeGame{closeFn: closeFn}
		require.NoError(t, r.AddGame(fmt.Sprintf("g%d", i), fakes[i]))
	}

	require.NoError(t, r.CloseAll(context.Background()))
	assert.Zero(t, r.Len())
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Positive(t, peak.Load())
	for _, g := range fakes {
		assert.Equal(t, int32(1), g.closes.Load())
	}
}

func TestNewRegistry_DefaultCloseConcurrency(t *testing.T) {
	assert.Equal(t, DefaultCloseConcurrency, newTestRegistry(t).closeLimit)
}
