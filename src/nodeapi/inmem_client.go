package nodeapi

import (
	"sync"
)

// InmemClient implements the Client interface in memory, to allow the
// scheduler and failover task to be tested without a running node.
type InmemClient struct {
	sync.Mutex

	address     string
	unreachable bool

	sessionTemplate Session
	openErr         error
	openSessions    []*Session
	closedSessions  []*Session

	balances       map[string]float64
	defaultBalance float64

	inbox map[int][][]byte
}

// NewInmemClient returns a reachable fake node with a generous default
// channel balance.
func NewInmemClient(address string) *InmemClient {
	return &InmemClient{
		address: address,
		sessionTemplate: Session{
			IP:          "127.0.0.1",
			Port:        9091,
			Protocol:    ProtocolUDP,
			PayloadSize: 476,
		},
		balances:       make(map[string]float64),
		defaultBalance: 1e6,
		inbox:          make(map[int][][]byte),
	}
}

// SetUnreachable controls whether ResolveOwnAddress fails.
func (c *InmemClient) SetUnreachable(unreachable bool) {
	c.Lock()
	defer c.Unlock()
	c.unreachable = unreachable
}

// SetSession overrides the session descriptor returned by OpenSession.
func (c *InmemClient) SetSession(session Session) {
	c.Lock()
	defer c.Unlock()
	c.sessionTemplate = session
}

// SetOpenSessionErr makes OpenSession fail.
func (c *InmemClient) SetOpenSessionErr(err error) {
	c.Lock()
	defer c.Unlock()
	c.openErr = err
}

// SetBalance sets the channel balance towards a peer.
func (c *InmemClient) SetBalance(peer string, balance float64) {
	c.Lock()
	defer c.Unlock()
	c.balances[peer] = balance
}

// PushMessage queues a payload in the node's inbox under tag.
func (c *InmemClient) PushMessage(tag int, payload []byte) {
	c.Lock()
	defer c.Unlock()
	c.inbox[tag] = append(c.inbox[tag], payload)
}

// OpenSessionCount returns how many sessions were opened.
func (c *InmemClient) OpenSessionCount() int {
	c.Lock()
	defer c.Unlock()
	return len(c.openSessions)
}

// ClosedSessionCount returns how many sessions were closed.
func (c *InmemClient) ClosedSessionCount() int {
	c.Lock()
	defer c.Unlock()
	return len(c.closedSessions)
}

// ResolveOwnAddress implements the Client interface.
func (c *InmemClient) ResolveOwnAddress() (string, error) {
	c.Lock()
	defer c.Unlock()

	if c.unreachable {
		return "", ErrUnreachable
	}

	return c.address, nil
}

// OpenSession implements the Client interface.
func (c *InmemClient) OpenSession(destination, relayer, listenHost string, protocol Protocol) (*Session, error) {
	c.Lock()
	defer c.Unlock()

	if c.unreachable {
		return nil, ErrUnreachable
	}
	if c.openErr != nil {
		return nil, c.openErr
	}

	session := c.sessionTemplate
	session.Protocol = protocol
	session.Target = destination

	c.openSessions = append(c.openSessions, &session)

	return &session, nil
}

// CloseSession implements the Client interface.
func (c *InmemClient) CloseSession(session *Session) error {
	c.Lock()
	defer c.Unlock()

	c.closedSessions = append(c.closedSessions, session)

	return nil
}

// PopAllMessages implements the Client interface. It drains the inbox for the
// given tag.
func (c *InmemClient) PopAllMessages(tag int) ([][]byte, error) {
	c.Lock()
	defer c.Unlock()

	if c.unreachable {
		return nil, ErrUnreachable
	}

	messages := c.inbox[tag]
	delete(c.inbox, tag)

	return messages, nil
}

// ChannelBalance implements the Client interface.
func (c *InmemClient) ChannelBalance(from, to string) (float64, error) {
	c.Lock()
	defer c.Unlock()

	if c.unreachable {
		return 0, ErrUnreachable
	}

	if balance, ok := c.balances[to]; ok {
		return balance, nil
	}

	return c.defaultBalance, nil
}
