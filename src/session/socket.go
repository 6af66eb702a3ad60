package session

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/covertnetworks/relaypulse/src/message"
	"github.com/covertnetworks/relaypulse/src/metrics"
	"github.com/covertnetworks/relaypulse/src/nodeapi"
	"github.com/sirupsen/logrus"
)

const (
	// PacketSize is the mix-network's native packet size. Byte counts are
	// converted to packet units with it.
	PacketSize = 476

	// BufferSize bounds the socket's send and receive buffers, to limit
	// memory and head-of-line blocking across mixed packet sizes.
	BufferSize = 8192
)

// ErrInvalidProtocol is returned when opening a socket over anything but the
// datagram protocol. This is a configuration error, not a runtime condition.
var ErrInvalidProtocol = errors.New("only the udp protocol is supported for probe traffic")

// Socket carries probe messages over a session's unreliable datagram channel
// and reports delivery latency and size. It is exclusively owned by the
// distribution cycle that opened it, and must be closed on every exit path.
type Socket struct {
	session  *nodeapi.Session
	conn     *net.UDPConn
	timeout  time.Duration
	sender   string
	recorder metrics.Recorder
	logger   *logrus.Entry

	closeOnce sync.Once
	closeErr  error
}

// Open connects a datagram socket to the session's listener. Sessions with a
// stream protocol are rejected with ErrInvalidProtocol.
func Open(
	sess *nodeapi.Session,
	sender string,
	timeout time.Duration,
	recorder metrics.Recorder,
	logger *logrus.Entry,
) (*Socket, error) {

	if sess.Protocol != nodeapi.ProtocolUDP {
		return nil, ErrInvalidProtocol
	}

	raddr, err := net.ResolveUDPAddr("udp", sess.ListenAddr())
	if err != nil {
		return nil, err
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}

	if err := conn.SetReadBuffer(BufferSize); err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.SetWriteBuffer(BufferSize); err != nil {
		conn.Close()
		return nil, err
	}

	return &Socket{
		session:  sess,
		conn:     conn,
		timeout:  timeout,
		sender:   sender,
		recorder: recorder,
		logger:   logger,
	}, nil
}

// PayloadSize returns the session's datagram payload size, falling back to
// the native packet size when the control API did not report one.
func (s *Socket) PayloadSize() int {
	if s.session.PayloadSize > 0 {
		return s.session.PayloadSize
	}
	return PacketSize
}

// Send writes one best-effort datagram to the session's target endpoint and
// returns the number of bytes written.
func (s *Socket) Send(payload []byte) (int, error) {
	return s.conn.Write(payload)
}

// Receive blocks up to the socket's timeout for one datagram of at most
// maxSize bytes. A timeout is an expected, frequent outcome: it returns an
// empty payload and a zero timestamp, not an error. A successful read also
// returns the reception time in Unix milliseconds.
func (s *Socket) Receive(maxSize int) ([]byte, int64, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
		return nil, 0, err
	}

	buf := make([]byte, maxSize)

	n, err := s.conn.Read(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, 0, nil
		}
		return nil, 0, err
	}

	return buf[:n], time.Now().UnixMilli(), nil
}

// SendAndMeasure sends one framed probe and immediately attempts one receive
// of equal size. When a valid reply frame comes back, it records the
// sent-packet count, the relayed-packet count and the round-trip time, and
// returns the relayed/sent throughput ratio. A missing or unparseable reply
// returns 0: a single lost probe is counted, never raised.
func (s *Socket) SendAndMeasure(probe *message.Probe) float64 {
	payload, err := probe.Marshal(s.PayloadSize())
	if err != nil {
		s.logger.WithError(err).Error("Failed to frame probe")
		return 0
	}

	written, err := s.Send(payload)
	if err != nil || written == 0 {
		s.logger.WithError(err).Debug("Failed to send probe")
		return 0
	}

	sentUnits := packetUnits(written)
	s.recorder.IncSent(s.sender, probe.Relayer, sentUnits)

	reply, receivedMillis, err := s.Receive(written)
	if err != nil || len(reply) == 0 {
		return 0
	}

	parsed, err := message.Parse(reply)
	if err != nil {
		// a malformed reply counts like a timeout
		s.logger.WithError(err).Debug("Failed to parse reply frame")
		return 0
	}

	relayedUnits := packetUnits(len(reply))
	s.recorder.IncRelayed(s.sender, probe.Relayer, relayedUnits)
	s.recorder.ObserveRTT(s.sender, probe.Relayer, parsed.RTT(receivedMillis))

	return float64(relayedUnits) / float64(sentUnits)
}

// Close releases the socket. It is safe to call on every exit path.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func packetUnits(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + PacketSize - 1) / PacketSize
}
