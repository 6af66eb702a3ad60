package message

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

/*
Probe messages are the payload of cover-traffic probes. They travel through a
relayer and come back to the node that emitted them, so everything needed to
account for the round trip is embedded in the frame itself.

The wire format is a single null-padded frame:

	<relayer>//<timestampMillis>-<index>/<total>

where index is the 1-based global sequence number of the probe within a
distribution cycle, and total is the number of probes expected for the whole
cycle.
*/

// Probe is one cover-traffic probe message.
type Probe struct {
	// Sender is the emitting node. It is not part of the wire frame; it only
	// serves to label observability signals.
	Sender string `json:"-"`

	// Relayer is the peer being exercised by this probe.
	Relayer string

	// Timestamp is the emission time in Unix milliseconds.
	Timestamp int64

	// Index is the 1-based global sequence number within the cycle.
	Index int

	// Total is the expected probe count for the whole cycle.
	Total int
}

// NewProbe returns a Probe stamped with the current time.
func NewProbe(sender, relayer string, index, total int) *Probe {
	return &Probe{
		Sender:    sender,
		Relayer:   relayer,
		Timestamp: time.Now().UnixMilli(),
		Index:     index,
		Total:     total,
	}
}

// Marshal encodes the probe and pads it with null bytes up to payloadSize. It
// returns an error if the encoded frame does not fit.
func (p *Probe) Marshal(payloadSize int) ([]byte, error) {
	frame := fmt.Sprintf("%s//%d-%d/%d", p.Relayer, p.Timestamp, p.Index, p.Total)

	if len(frame) > payloadSize {
		return nil, fmt.Errorf("frame length %d exceeds payload size %d", len(frame), payloadSize)
	}

	padded := make([]byte, payloadSize)
	copy(padded, frame)

	return padded, nil
}

// Parse decodes a null-padded probe frame. A malformed frame returns an error;
// callers treat it like a lost probe, not a fault.
func Parse(data []byte) (*Probe, error) {
	frame := string(bytes.TrimRight(data, "\x00"))

	relayer, rest, ok := strings.Cut(frame, "//")
	if !ok || relayer == "" {
		return nil, fmt.Errorf("missing relayer delimiter in %q", frame)
	}

	tsPart, seqPart, ok := strings.Cut(rest, "-")
	if !ok {
		return nil, fmt.Errorf("missing timestamp delimiter in %q", frame)
	}

	timestamp, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad timestamp in %q: %v", frame, err)
	}

	idxPart, totalPart, ok := strings.Cut(seqPart, "/")
	if !ok {
		return nil, fmt.Errorf("missing sequence delimiter in %q", frame)
	}

	index, err := strconv.Atoi(idxPart)
	if err != nil {
		return nil, fmt.Errorf("bad sequence index in %q: %v", frame, err)
	}

	total, err := strconv.Atoi(totalPart)
	if err != nil {
		return nil, fmt.Errorf("bad total in %q: %v", frame, err)
	}

	return &Probe{
		Relayer:   relayer,
		Timestamp: timestamp,
		Index:     index,
		Total:     total,
	}, nil
}

// RTT returns the round-trip time in seconds given the reception time of the
// probe's reply, in Unix milliseconds.
func (p *Probe) RTT(receivedMillis int64) float64 {
	return float64(receivedMillis-p.Timestamp) / 1000.0
}
