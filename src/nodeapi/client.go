package nodeapi

import "errors"

// ErrUnreachable is returned when the node's control API cannot be reached.
// The failover task converts it into a RETRIED transition; it never crashes a
// task.
var ErrUnreachable = errors.New("node control API unreachable")

// Client is the contract of the relay node's control API. It is consumed by
// the failover task and the batch scheduler; implementations are the HTTP
// client below and an in-memory fake for tests.
type Client interface {
	// ResolveOwnAddress returns the node's own routable address, or
	// ErrUnreachable.
	ResolveOwnAddress() (string, error)

	// OpenSession opens a session from the node to destination, routed through
	// relayer, listening on listenHost.
	OpenSession(destination, relayer, listenHost string, protocol Protocol) (*Session, error)

	// CloseSession tears down a session listener.
	CloseSession(session *Session) error

	// PopAllMessages drains and returns all messages received under tag.
	PopAllMessages(tag int) ([][]byte, error)

	// ChannelBalance returns the outgoing channel balance between two
	// addresses, in the network's native currency.
	ChannelBalance(from, to string) (float64, error)
}
