// Package lobby tracks the clients of one game session, the seat each of them
// holds, and dispatches the remote calls they issue.
package lobby

// ClientID is the opaque identity of one connection, supplied by the transport.
//
// Implementations must be comparable: the lobby uses them as map keys and never
// inspects them beyond equality. String is only used to derive a default
// display name.
type ClientID interface {
	String() string
}

// Occupant describes one seat in a positions snapshot.
type Occupant struct {
	// Name is the display name of the seated client; empty when unoccupied.
	Name string `json:"name"`
	// Occupied reports whether a client holds the seat.
	Occupied bool `json:"occupied"`
}
