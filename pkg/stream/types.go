// Package stream manages the single live event connection a session keeps
// open, over Server-Sent Events or WebSocket.
package stream

import (
	"context"
	"net/http"

	json "github.com/goccy/go-json"
)

// State is the lifecycle state of a connection.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
	StateError      State = "error"
)

// Event is a decoded server event delivered to a Handler.
type Event struct {
	// Key is the resource key of the connection, e.g. "project:P1".
	Key string
	// Type is the SSE event name, or the "type" field of the JSON payload
	// for unnamed events.
	Type string
	// ID is the SSE event id, if any.
	ID   string
	Data json.RawMessage
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Handler receives events for an open connection. It must not open or close
// streams on the Manager delivering to it.
type Handler func(Event)

// DisconnectFunc is called once when a connection fails unrecoverably.
type DisconnectFunc func(key string, err error)

// Message is one raw frame produced by a transport.
type Message struct {
	Event string
	ID    string
	Data  []byte
}

// Hooks are the callbacks a transport reports through.
type Hooks struct {
	OnOpen      func()
	OnReconnect func()
	OnMessage   func(Message)
}

// Transport runs one logical connection. Run blocks until ctx is cancelled
// (returning nil) or the connection fails unrecoverably (returning the cause).
// Any reconnect policy lives inside the transport.
type Transport interface {
	Run(ctx context.Context, url string, header http.Header, hooks Hooks) error
}
