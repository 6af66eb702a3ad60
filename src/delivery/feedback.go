package delivery

import (
	"bytes"
	"time"

	"github.com/ugorji/go/codec"
)

// Feedback is the record of one task invocation, emitted to the feedback
// queue for external collection. Emission is best-effort: a lost record is
// logged, never raised.
type Feedback struct {
	// PeerID is the relayer the invocation targeted.
	PeerID string

	// Node is the sending node that performed the invocation.
	Node string

	// State is the outcome of the invocation.
	State string

	// ExpectedCount is the count the invocation set out to deliver.
	ExpectedCount int

	// IssuedCount is the number of probes actually written to the socket.
	IssuedCount int

	// RelayedCount is the number of probes that came back through the inbox.
	RelayedCount int

	// Timestamp is the Unix-millisecond time the record was produced.
	Timestamp int64
}

// NewFeedback builds the feedback record for a task invocation and its
// result.
func NewFeedback(task *Task, result *Result) *Feedback {
	node := ""
	if task.NodeIndex >= 0 && task.NodeIndex < len(task.NodeList) {
		node = task.CurrentNode()
	}

	return &Feedback{
		PeerID:        task.PeerID,
		Node:          node,
		State:         result.State.String(),
		ExpectedCount: task.ExpectedCount,
		IssuedCount:   result.Issued,
		RelayedCount:  result.Relayed,
		Timestamp:     time.Now().UnixMilli(),
	}
}

// Marshal - json encoding of Feedback
func (f *Feedback) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(f); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (f *Feedback) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	if err := dec.Decode(f); err != nil {
		return err
	}

	return nil
}
