// Package transport carries named messages between a client and the server
// over a websocket.
package transport

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrClosed     = errors.New("transport: closed")
	ErrBufferFull = errors.New("transport: send buffer full")
)

// Handler receives the data of one inbound message. Handlers run one at a
// time, in arrival order.
type Handler func(ctx context.Context, data json.RawMessage)

// Transport is the client's view of the channel.
type Transport interface {
	// On registers h for messages named name.
	On(name string, h Handler)
	// Emit queues one outbound message and returns without waiting for it
	// to be written.
	Emit(name string, payload any) error
}
