package domain

import (
	"context"

	"github.com/google/uuid"
)

// Receiver is the inbound half of a connection. Receive blocks until a frame
// arrives; it returns an error wrapping ErrConnectionClosed once the peer is gone.
type Receiver interface {
	Receive() ([]byte, error)
}

// Viewer is a receive-only downstream connection.
// Send fails with an error wrapping ErrViewerGone when the peer cannot be written to.
// Close is idempotent; reason is sent to the peer in the close frame when possible.
type Viewer interface {
	ID() uuid.UUID
	Send(fragment Fragment) error
	Close(reason string) error
}

// ViewerConn is a viewer connection as accepted by the viewer endpoint.
type ViewerConn interface {
	Viewer
	Receiver
}

// ProducerConn is an upstream connection sending markdown source.
type ProducerConn interface {
	Receiver
	ID() uuid.UUID
	Close(reason string) error
}

// Broadcaster pushes a fragment to every registered viewer.
// Per-viewer failures are handled internally; it returns the number of viewers reached.
type Broadcaster interface {
	Broadcast(ctx context.Context, fragment Fragment) int
}
