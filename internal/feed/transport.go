package feed

import "context"

// Session is one live connection to the server's push channel.
//
// Receive blocks until the next domain message arrives. Protocol frames
// that carry no domain payload (heartbeats, the initial connected event)
// are consumed internally; malformed frames are logged and skipped, never
// returned as errors. A non-nil error means the session is dead and must
// be replaced.
type Session interface {
	Receive() (Message, error)
	Close() error
}

// Transport establishes sessions. Implementations must tear down all
// resources of a session when its Close is called or when the dial context
// is cancelled.
type Transport interface {
	Dial(ctx context.Context) (Session, error)
	Name() string
}
