package lobby

import (
	"github.com/cockroachdb/errors"
)

// Error kinds returned by the lobby. Concrete errors carry a readable message and
// are marked with one of these, so callers test them with errors.Is.
var (
	ErrUnknownClient       = errors.New("unknown client")
	ErrInvalidClient       = errors.New("invalid client")
	ErrSeatOccupied        = errors.New("seat occupied")
	ErrInvalidSeat         = errors.New("invalid seat index")
	ErrValidationFailed    = errors.New("validation failed")
	ErrUnsupportedFunction = errors.New("unsupported function")
)

func unknownClientError(id ClientID) error {
	return errors.Mark(errors.Newf("client %s is not registered", id), ErrUnknownClient)
}

func seatOccupiedError(seat int) error {
	return errors.Mark(errors.Newf("seat %d is already taken", seat), ErrSeatOccupied)
}

func invalidSeatError(seat, capacity int) error {
	return errors.Mark(errors.Newf("seat %d is out of range [0, %d)", seat, capacity), ErrInvalidSeat)
}

func unsupportedFunctionError(name string) error {
	return errors.Mark(errors.Newf("function %s is not supported", name), ErrUnsupportedFunction)
}
