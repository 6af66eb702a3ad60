package nodeapi

import "fmt"

// Protocol is the transport protocol of a session's local listener.
type Protocol string

const (
	// ProtocolUDP is the only protocol supported for probe traffic.
	ProtocolUDP Protocol = "udp"

	// ProtocolTCP exists in the node's API but is rejected by the session
	// transport.
	ProtocolTCP Protocol = "tcp"
)

// Session is a route descriptor returned by the node's control API. Probe
// traffic written to the listener at IP:Port is carried through the session's
// relayer towards Target. A Session is exclusively owned by the distribution
// cycle that opened it and must be closed when the cycle ends.
type Session struct {
	IP       string   `json:"ip"`
	Port     int      `json:"port"`
	Protocol Protocol `json:"protocol"`
	Target   string   `json:"target"`

	// PayloadSize is the maximum datagram payload the session carries.
	PayloadSize int `json:"mtu"`
}

// ListenAddr returns the host:port of the session's local listener.
func (s *Session) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.IP, s.Port)
}
