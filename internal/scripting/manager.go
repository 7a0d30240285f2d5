package scripting

import (
	"path/filepath"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/gamelobby/internal/lobby"
)

// ErrScriptFailed marks errors reported by, or raised inside, a scripted call.
var ErrScriptFailed = errors.New("script failed")

// scriptVM is one sandboxed state per script file. Calls from every game share
// it, so mu serializes them; callers already hold their session lock.
type scriptVM struct {
	mu    sync.Mutex
	path  string
	L     *lua.LState
	bound binding
}

// Manager owns the sandboxed states behind a set of scripted calls.
//
// Calls returned by Load are safe for concurrent use from many sessions.
type Manager struct {
	mu        sync.Mutex
	vms       []*scriptVM
	instLimit int
	logger    *zap.Logger
}

// NewManager creates a Manager.
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit. logger may be nil.
// Postcondition: Returns a non-nil Manager with no scripts loaded.
func NewManager(instLimit int, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		instLimit: instLimit,
		logger:    logger,
	}
}

// Load reads dir/calls.yaml, runs every script it names in its own sandboxed
// state and returns one lobby.Call per manifest entry, in manifest order.
//
// Precondition: dir must be a readable directory containing calls.yaml.
// Postcondition: On error no state from this Load is kept.
func (m *Manager) Load(dir string) ([]lobby.Call, error) {
	manifest, err := LoadManifest(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}

	scripts := lo.Uniq(lo.Map(manifest.Calls, func(c CallSpec, _ int) string { return c.Script }))
	sort.Strings(scripts)

	loaded := make(map[string]*scriptVM, len(scripts))
	discard := func() {
		for _, vm := range loaded {
			vm.L.Close()
		}
	}
	for _, script := range scripts {
		vm, err := m.loadScript(filepath.Join(dir, script))
		if err != nil {
			discard()
			return nil, err
		}
		loaded[script] = vm
	}

	calls := make([]lobby.Call, 0, len(manifest.Calls))
	for _, spec := range manifest.Calls {
		vm := loaded[spec.Script]
		if _, ok := vm.L.GetGlobal(spec.Function).(*lua.LFunction); !ok {
			discard()
			return nil, errors.Newf("call %s: %s does not define function %s", spec.Name, spec.Script, spec.Function)
		}
		calls = append(calls, lobby.Call{
			Name:    spec.Name,
			Params:  spec.params(),
			Handler: m.handler(vm, spec),
		})
	}

	m.mu.Lock()
	for _, script := range scripts {
		m.vms = append(m.vms, loaded[script])
	}
	m.mu.Unlock()

	m.logger.Info("scripted calls loaded",
		zap.String("dir", dir),
		zap.Int("scripts", len(scripts)),
		zap.Strings("calls", lo.Map(calls, func(c lobby.Call, _ int) string { return c.Name })),
	)
	return calls, nil
}

func (m *Manager) loadScript(path string) (*scriptVM, error) {
	vm := &scriptVM{path: path, L: NewSandboxedState()}
	registerLobbyModule(vm.L, &vm.bound)

	chunk, err := vm.L.LoadFile(path)
	if err != nil {
		vm.L.Close()
		return nil, errors.Wrapf(err, "scripting: loading %s", path)
	}
	if err := CallLimited(vm.L, chunk, 0, m.instLimit); err != nil {
		vm.L.Close()
		return nil, errors.Wrapf(err, "scripting: running %s", path)
	}
	return vm, nil
}

func (m *Manager) handler(vm *scriptVM, spec CallSpec) lobby.HandlerFunc {
	return func(st *lobby.State, caller lobby.ClientID, args lobby.Args) error {
		vm.mu.Lock()
		defer vm.mu.Unlock()

		if vm.L == nil {
			return errors.Mark(errors.Newf("call %s: scripts are closed", spec.Name), ErrScriptFailed)
		}

		vm.bound = binding{st: st, caller: caller}
		defer func() { vm.bound = binding{} }()

		L := vm.L
		fn := L.GetGlobal(spec.Function)
		if err := CallLimited(L, fn, 1, m.instLimit, argsTable(L, args)); err != nil {
			m.logger.Warn("scripted call raised an error",
				zap.String("call", spec.Name),
				zap.String("script", vm.path),
				zap.Error(err),
			)
			return errors.Mark(errors.Wrapf(withoutTraceback(err), "call %s", spec.Name), ErrScriptFailed)
		}

		ret := L.Get(-1)
		L.Pop(1)
		if msg, ok := ret.(lua.LString); ok {
			return errors.Mark(errors.Newf("%s", string(msg)), ErrScriptFailed)
		}
		return nil
	}
}

// Close releases every loaded state. Calls made afterwards fail.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, vm := range m.vms {
		vm.mu.Lock()
		vm.L.Close()
		vm.L = nil
		vm.mu.Unlock()
	}
	m.vms = nil
}

// withoutTraceback keeps only the message of a Lua runtime error.
func withoutTraceback(err error) error {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return errors.Newf("%s", apiErr.Object.String())
	}
	return err
}

func argsTable(L *lua.LState, args lobby.Args) *lua.LTable {
	t := L.NewTable()
	for name, v := range args {
		switch v := v.(type) {
		case string:
			t.RawSetString(name, lua.LString(v))
		case int:
			t.RawSetString(name, lua.LNumber(v))
		case float64:
			t.RawSetString(name, lua.LNumber(v))
		case bool:
			t.RawSetString(name, lua.LBool(v))
		}
	}
	return t
}
