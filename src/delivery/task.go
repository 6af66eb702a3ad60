package delivery

import (
	"bytes"
	"errors"
	"time"

	"github.com/ugorji/go/codec"
)

// Task describes one cover-traffic distribution job: have ExpectedCount
// messages relayed through PeerID, sent by the node at NodeIndex in NodeList.
// Tasks are values; rotation produces a new descriptor instead of mutating
// the current one.
type Task struct {
	// PeerID is the relayer the probes are routed through.
	PeerID string

	// ExpectedCount is the number of messages still owed to the relayer.
	ExpectedCount int

	// NodeList is the ordered set of candidate sending nodes.
	NodeList []string

	// NodeIndex designates the node responsible for this invocation.
	NodeIndex int

	// TicketPrice is the cost of relaying one message.
	TicketPrice float64

	// FirstAttempt is the Unix-millisecond timestamp of the cycle's first
	// invocation. It is carried across rotations so the deadline covers the
	// whole cycle, not each attempt.
	FirstAttempt int64

	// Attempts counts how many times the task has been submitted.
	Attempts int
}

// NewTask creates a first-attempt Task starting at the first node of the
// list.
func NewTask(peerID string, expectedCount int, nodeList []string, ticketPrice float64) *Task {
	return &Task{
		PeerID:        peerID,
		ExpectedCount: expectedCount,
		NodeList:      nodeList,
		TicketPrice:   ticketPrice,
		FirstAttempt:  time.Now().UnixMilli(),
		Attempts:      1,
	}
}

// Validate rejects malformed descriptors before execution.
func (t *Task) Validate() error {
	if t.PeerID == "" {
		return errors.New("task has no relayer")
	}
	if len(t.NodeList) == 0 {
		return errors.New("task has an empty node list")
	}
	if t.NodeIndex < 0 || t.NodeIndex >= len(t.NodeList) {
		return errors.New("task node index out of range")
	}
	if t.ExpectedCount < 0 {
		return errors.New("task has a negative message count")
	}
	return nil
}

// CurrentNode returns the identifier of the node responsible for this
// invocation. It is also the name of the queue the task is routed to.
func (t *Task) CurrentNode() string {
	return t.NodeList[t.NodeIndex]
}

// Rotate derives the follow-up descriptor for the next node in the list,
// wrapping around at the end. The cycle's first-attempt timestamp carries
// over; the remaining count is set to expectedCount.
func (t *Task) Rotate(expectedCount int) *Task {
	return &Task{
		PeerID:        t.PeerID,
		ExpectedCount: expectedCount,
		NodeList:      t.NodeList,
		NodeIndex:     (t.NodeIndex + 1) % len(t.NodeList),
		TicketPrice:   t.TicketPrice,
		FirstAttempt:  t.FirstAttempt,
		Attempts:      t.Attempts + 1,
	}
}

// Expired reports whether the cycle deadline has passed at the given time.
func (t *Task) Expired(budget time.Duration, now time.Time) bool {
	deadline := time.UnixMilli(t.FirstAttempt).Add(budget)
	return now.After(deadline)
}

// Marshal - json encoding of Task
func (t *Task) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(t); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (t *Task) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	if err := dec.Decode(t); err != nil {
		return err
	}

	return nil
}
