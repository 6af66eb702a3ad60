package session

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/covertnetworks/relaypulse/src/common"
	"github.com/covertnetworks/relaypulse/src/message"
	"github.com/covertnetworks/relaypulse/src/metrics"
	"github.com/covertnetworks/relaypulse/src/nodeapi"
)

// startEcho runs a UDP listener that applies mangle to every received
// datagram and sends the result back. A nil mangle drops the datagram.
func startEcho(t *testing.T, mangle func([]byte) []byte) *nodeapi.Session {
	t.Helper()

	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, BufferSize)
		for {
			n, remote, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if mangle == nil {
				continue
			}
			conn.WriteToUDP(mangle(buf[:n]), remote)
		}
	}()

	port := conn.LocalAddr().(*net.UDPAddr).Port

	return &nodeapi.Session{
		IP:          "127.0.0.1",
		Port:        port,
		Protocol:    nodeapi.ProtocolUDP,
		Target:      "target",
		PayloadSize: PacketSize,
	}
}

func identity(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func TestOpenRejectsStreamProtocol(t *testing.T) {
	sess := &nodeapi.Session{
		IP:       "127.0.0.1",
		Port:     9091,
		Protocol: nodeapi.ProtocolTCP,
	}

	_, err := Open(sess, "sender", time.Second, metrics.NewInmemRecorder(), common.NewTestEntry(t))
	if err != ErrInvalidProtocol {
		t.Fatalf("opening a tcp session should fail with ErrInvalidProtocol, got %v", err)
	}
}

func TestSendReceive(t *testing.T) {
	sess := startEcho(t, identity)

	sock, err := Open(sess, "sender", time.Second, metrics.NewInmemRecorder(), common.NewTestEntry(t))
	if err != nil {
		t.Fatal(err)
	}
	defer sock.Close()

	payload := bytes.Repeat([]byte("x"), 64)

	written, err := sock.Send(payload)
	if err != nil {
		t.Fatal(err)
	}
	if written != len(payload) {
		t.Fatalf("should have written %d bytes, wrote %d", len(payload), written)
	}

	reply, receivedMillis, err := sock.Receive(len(payload))
	if err != nil {
		t.Fatal(err)
	}
	if receivedMillis == 0 {
		t.Fatal("reception timestamp should be set")
	}
	if !bytes.Equal(reply, payload) {
		t.Fatal("echoed payload should match what was sent")
	}
}

func TestReceiveTimeout(t *testing.T) {
	sess := startEcho(t, nil)

	sock, err := Open(sess, "sender", 50*time.Millisecond, metrics.NewInmemRecorder(), common.NewTestEntry(t))
	if err != nil {
		t.Fatal(err)
	}
	defer sock.Close()

	reply, receivedMillis, err := sock.Receive(PacketSize)
	if err != nil {
		t.Fatalf("a receive timeout is not an error, got %v", err)
	}
	if len(reply) != 0 || receivedMillis != 0 {
		t.Fatal("a receive timeout should return an empty result")
	}
}

func TestSendAndMeasure(t *testing.T) {
	sess := startEcho(t, identity)
	recorder := metrics.NewInmemRecorder()

	sock, err := Open(sess, "sender", time.Second, recorder, common.NewTestEntry(t))
	if err != nil {
		t.Fatal(err)
	}
	defer sock.Close()

	probe := message.NewProbe("sender", "relayer", 1, 1)

	ratio := sock.SendAndMeasure(probe)
	if ratio != 1 {
		t.Fatalf("a full echo should yield throughput 1, got %f", ratio)
	}

	stats := recorder.Stats("sender", "relayer")
	if stats.SentPackets != 1 {
		t.Fatalf("should have recorded 1 sent packet, got %d", stats.SentPackets)
	}
	if stats.RelayedPackets != 1 {
		t.Fatalf("should have recorded 1 relayed packet, got %d", stats.RelayedPackets)
	}
	if len(stats.RTTSamples) != 1 {
		t.Fatalf("should have recorded 1 RTT sample, got %d", len(stats.RTTSamples))
	}
	if stats.RTTSamples[0] < 0 {
		t.Fatalf("RTT should not be negative, got %f", stats.RTTSamples[0])
	}
}

func TestSendAndMeasureNoReply(t *testing.T) {
	sess := startEcho(t, nil)
	recorder := metrics.NewInmemRecorder()

	sock, err := Open(sess, "sender", 50*time.Millisecond, recorder, common.NewTestEntry(t))
	if err != nil {
		t.Fatal(err)
	}
	defer sock.Close()

	probe := message.NewProbe("sender", "relayer", 1, 1)

	if ratio := sock.SendAndMeasure(probe); ratio != 0 {
		t.Fatalf("a dropped probe should yield throughput 0, got %f", ratio)
	}

	stats := recorder.Stats("sender", "relayer")
	if stats.SentPackets != 1 {
		t.Fatalf("the send should still be recorded, got %d", stats.SentPackets)
	}
	if stats.RelayedPackets != 0 {
		t.Fatalf("nothing should be recorded as relayed, got %d", stats.RelayedPackets)
	}
}

func TestSendAndMeasureMalformedReply(t *testing.T) {
	garbage := func(b []byte) []byte {
		out := bytes.Repeat([]byte{0xff}, len(b))
		return out
	}

	sess := startEcho(t, garbage)
	recorder := metrics.NewInmemRecorder()

	sock, err := Open(sess, "sender", time.Second, recorder, common.NewTestEntry(t))
	if err != nil {
		t.Fatal(err)
	}
	defer sock.Close()

	probe := message.NewProbe("sender", "relayer", 1, 1)

	if ratio := sock.SendAndMeasure(probe); ratio != 0 {
		t.Fatalf("a malformed reply should yield throughput 0, got %f", ratio)
	}

	if stats := recorder.Stats("sender", "relayer"); stats.RelayedPackets != 0 {
		t.Fatalf("a malformed reply should not count as relayed, got %d", stats.RelayedPackets)
	}
}

func TestCloseIdempotent(t *testing.T) {
	sess := startEcho(t, identity)

	sock, err := Open(sess, "sender", time.Second, metrics.NewInmemRecorder(), common.NewTestEntry(t))
	if err != nil {
		t.Fatal(err)
	}

	if err := sock.Close(); err != nil {
		t.Fatal(err)
	}
	if err := sock.Close(); err != nil {
		t.Fatalf("closing twice should be safe, got %v", err)
	}
}
