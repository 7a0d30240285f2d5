package lobby

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// ErrorResponse is the structured failure returned to a remote caller.
type ErrorResponse struct {
	Parameters ErrorParameters `json:"parameters"`
}

// ErrorParameters carries the readable failure message.
type ErrorParameters struct {
	ErrorMessage string `json:"error_message"`
}

// NewErrorResponse wraps msg in an ErrorResponse.
func NewErrorResponse(msg string) *ErrorResponse {
	return &ErrorResponse{Parameters: ErrorParameters{ErrorMessage: msg}}
}

// Message returns the failure message.
func (r *ErrorResponse) Message() string {
	return r.Parameters.ErrorMessage
}

// Calls returns the remote-call table this session dispatches against.
func (m *Manager) Calls() *CallRegistry {
	return m.calls
}

// HandleFunctionCall dispatches the remote call name issued by caller.
//
// It never panics and never returns a Go error: every failure (unknown name,
// schema mismatch, domain error, handler panic) is reported as an ErrorResponse.
//
// Postcondition: Returns nil once the call's effects are applied. On any failure
// the session state is exactly what it was before the call.
func (m *Manager) HandleFunctionCall(caller ClientID, name string, payload map[string]any) *ErrorResponse {
	call, ok := m.calls.Resolve(name)
	if !ok {
		m.logger.Debug("unsupported remote call",
			zap.Stringer("client", caller),
			zap.String("function", name),
		)
		return NewErrorResponse(unsupportedFunctionError(name).Error())
	}

	args, err := call.Validate(payload)
	if err != nil {
		m.logger.Debug("remote call rejected",
			zap.Stringer("client", caller),
			zap.String("function", name),
			zap.Error(err),
		)
		return NewErrorResponse(err.Error())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.apply(call, caller, args); err != nil {
		m.logger.Debug("remote call failed",
			zap.Stringer("client", caller),
			zap.String("function", name),
			zap.Error(err),
		)
		return NewErrorResponse(err.Error())
	}
	return nil
}

// apply runs call against a copy of the state and installs the copy only when the
// handler succeeds. Must be called with m.mu held.
func (m *Manager) apply(call *Call, caller ClientID, args Args) (err error) {
	working := m.state.clone()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("remote call handler panicked",
				zap.String("function", call.Name),
				zap.Any("panic", r),
			)
			err = errors.Newf("internal error handling %s", call.Name)
		}
	}()
	if err := call.Handler(working, caller, args); err != nil {
		return err
	}
	m.state = working
	return nil
}
