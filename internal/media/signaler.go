package media

import "context"

// Call is one media call, inbound or outbound.
type Call interface {
	// Answer accepts an inbound call with the given local stream.
	Answer(local *Stream) error

	// Remote delivers the remote stream once it arrives. The channel is
	// closed without a value when the call ends first.
	Remote() <-chan *Stream

	// Done is closed when either side hangs up or the connection drops.
	Done() <-chan struct{}

	// Hangup terminates the call. Safe to call more than once.
	Hangup()
}

// Conn is an open signaling connection registered under a rendezvous id.
type Conn interface {
	// Place starts an outbound call to the remote rendezvous id.
	Place(ctx context.Context, remoteRendezvousID string, local *Stream) (Call, error)

	// Incoming delivers inbound calls. Closed when the connection closes.
	Incoming() <-chan Call

	// Reachable reports whether the remote rendezvous id is registered.
	Reachable(remoteRendezvousID string) bool

	// Close tears down the connection and all its calls.
	Close() error
}

// Signaler opens signaling connections. Implemented by the LiveKit engine
// in production and by fakes in tests.
type Signaler interface {
	Open(ctx context.Context, localRendezvousID string) (Conn, error)
}
