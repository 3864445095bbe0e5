// Package transport carries JSON-RPC messages between clients and the
// server core over stdio, HTTP, or WebSocket.
package transport

import "context"

// MessageHandler processes one raw JSON-RPC message from the client
// identified by clientID and returns the serialized reply, or nil when
// the message needs no reply.
type MessageHandler func(ctx context.Context, data []byte, clientID string) []byte

// Transport is a message carrier with a blocking run loop.
type Transport interface {
	// Start runs the transport until the context is cancelled, the
	// peer disconnects, or Stop is called.
	Start(ctx context.Context) error

	// Stop shuts the transport down, waiting up to the context
	// deadline for in-flight work.
	Stop(ctx context.Context) error
}
