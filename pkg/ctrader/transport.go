package ctrader

import (
	"context"
	"encoding/json"
)

// ListenerHandle identifies a push event subscription on a Connection.
type ListenerHandle uint64

// Connection is the transport collaborator. Connection establishment,
// authentication, heartbeats and the account discovery sequence all live
// behind it; the account layer only sends correlated commands and consumes
// push events.
type Connection interface {
	// Open establishes the underlying connection and blocks until it is
	// usable.
	Open(ctx context.Context) error

	// SendCommand sends a named command and blocks until the correlated
	// response arrives. An empty correlationID lets the connection pick one.
	SendCommand(ctx context.Context, command string, params interface{}, correlationID string) (json.RawMessage, error)

	// On registers a handler invoked once per matching push event.
	On(event string, handler func(payload json.RawMessage)) ListenerHandle

	// RemoveEventListener detaches a previously registered handler.
	RemoveEventListener(handle ListenerHandle)

	Close() error
}
