package delivery

import (
	"time"

	"github.com/covertnetworks/relaypulse/src/message"
	"github.com/covertnetworks/relaypulse/src/metrics"
	"github.com/covertnetworks/relaypulse/src/nodeapi"
	"github.com/covertnetworks/relaypulse/src/peers"
	"github.com/covertnetworks/relaypulse/src/queue"
	"github.com/covertnetworks/relaypulse/src/scheduler"
	"github.com/covertnetworks/relaypulse/src/session"
	"github.com/sirupsen/logrus"
)

const (
	// TaskName identifies distribution tasks on the queue.
	TaskName = "deliver"

	// FeedbackName identifies feedback records on the feedback queue.
	FeedbackName = "feedback"
)

// Options groups the handler's tunables.
type Options struct {
	// ListenHost is the local host session listeners bind to.
	ListenHost string

	// SocketTimeout is the per-probe receive timeout.
	SocketTimeout time.Duration

	// TimeoutBudget bounds the whole cycle, from the task's first attempt.
	TimeoutBudget time.Duration

	// MaxAttempts bounds node rotation.
	MaxAttempts int

	// Distribution gates sending entirely.
	Distribution bool
}

// Result is the outcome of one task invocation. Resubmit, when set, is the
// follow-up descriptor the queue runtime must dispatch; the handler itself
// never submits anything.
type Result struct {
	State    State
	Issued   int
	Relayed  int
	Resubmit *Task
}

// Handler executes distribution tasks against one sending node. It performs
// exactly one state transition per invocation, and leaves dispatch of the
// follow-up descriptor and the feedback record to Execute.
type Handler struct {
	api      nodeapi.Client
	sched    *scheduler.Scheduler
	recorder metrics.Recorder
	peerSet  *peers.PeerSet
	opts     Options
	logger   *logrus.Entry
}

// NewHandler instantiates a Handler. peerSet may be nil when no exclusion
// list is configured.
func NewHandler(
	api nodeapi.Client,
	sched *scheduler.Scheduler,
	recorder metrics.Recorder,
	peerSet *peers.PeerSet,
	opts Options,
	logger *logrus.Entry,
) *Handler {

	return &Handler{
		api:      api,
		sched:    sched,
		recorder: recorder,
		peerSet:  peerSet,
		opts:     opts,
		logger:   logger,
	}
}

// Handle runs one invocation of a distribution task and returns its result.
// Node failures rotate the task to the next node in the list; a partial
// delivery rotates only the remainder. The session socket is closed on every
// exit path.
func (h *Handler) Handle(task *Task) *Result {
	if err := task.Validate(); err != nil {
		h.logger.WithError(err).Error("Rejecting malformed task")
		return &Result{State: Failed}
	}

	logger := h.logger.WithFields(logrus.Fields{
		"peer":    task.PeerID,
		"node":    task.CurrentNode(),
		"attempt": task.Attempts,
	})

	if !h.opts.Distribution {
		logger.Debug("Distribution is disabled")
		return &Result{State: Skipped}
	}

	if h.peerSet != nil {
		if peer, ok := h.peerSet.ByID[task.PeerID]; ok && peer.Excluded {
			logger.Debug("Peer is excluded from distribution")
			return &Result{State: Skipped}
		}
	}

	if task.ExpectedCount == 0 {
		return &Result{State: Success}
	}

	if task.Expired(h.opts.TimeoutBudget, time.Now()) {
		logger.Warning("Cycle deadline passed before sending")
		return &Result{State: Timeout}
	}

	own, err := h.api.ResolveOwnAddress()
	if err != nil {
		logger.WithError(err).Warning("Node is unreachable")
		return h.rotate(task, Retried, task.ExpectedCount, 0, 0, logger)
	}

	// cap the sendable count at what the channel balance can pay for
	count := task.ExpectedCount
	if task.TicketPrice > 0 {
		balance, err := h.api.ChannelBalance(own, task.PeerID)
		if err != nil {
			logger.WithError(err).Warning("Failed to read channel balance")
			return h.rotate(task, Retried, task.ExpectedCount, 0, 0, logger)
		}

		if affordable := int(balance / task.TicketPrice); affordable < count {
			logger.WithFields(logrus.Fields{
				"balance":    balance,
				"affordable": affordable,
			}).Warning("Channel balance caps the sendable count")
			count = affordable
		}
	}

	if count == 0 {
		return h.rotate(task, Retried, task.ExpectedCount, 0, 0, logger)
	}

	// probes are sent from the node back to itself, through the relayer
	sess, err := h.api.OpenSession(own, task.PeerID, h.opts.ListenHost, nodeapi.ProtocolUDP)
	if err != nil {
		logger.WithError(err).Warning("Failed to open session")
		return h.rotate(task, Retried, task.ExpectedCount, 0, 0, logger)
	}
	defer func() {
		if err := h.api.CloseSession(sess); err != nil {
			logger.WithError(err).Warning("Failed to close session")
		}
	}()

	sock, err := session.Open(sess, own, h.opts.SocketTimeout, h.recorder, logger)
	if err != nil {
		logger.WithError(err).Warning("Failed to open session socket")
		return h.rotate(task, Retried, task.ExpectedCount, 0, 0, logger)
	}
	defer sock.Close()

	// one round-trip latency sample per cycle
	sock.SendAndMeasure(message.NewProbe(own, task.PeerID, 1, 1))

	relayed, issued, err := h.sched.SendMessagesInBatches(sock, own, task.PeerID, count)
	if err != nil {
		logger.WithError(err).Error("Batch delivery failed")
		return h.rotate(task, Retried, task.ExpectedCount, 0, 0, logger)
	}

	if relayed >= task.ExpectedCount {
		logger.WithField("relayed", relayed).Debug("Delivery complete")
		return &Result{State: Success, Issued: issued, Relayed: relayed}
	}

	remaining := task.ExpectedCount - relayed

	if relayed == 0 {
		return h.rotate(task, Retried, remaining, issued, relayed, logger)
	}

	return h.rotate(task, Splitted, remaining, issued, relayed, logger)
}

// Execute runs the task and dispatches its follow-ups: the rotated descriptor
// to the next node's queue, and exactly one best-effort feedback record.
func (h *Handler) Execute(task *Task, broker queue.Broker) *Result {
	result := h.Handle(task)

	if result.Resubmit != nil {
		if err := h.submit(broker, result.Resubmit); err != nil {
			// a lost resubmission drops the remainder of the cycle
			h.logger.WithError(err).Error("Failed to resubmit task")
		}
	}

	feedback := NewFeedback(task, result)
	payload, err := feedback.Marshal()
	if err == nil {
		err = broker.Submit(queue.FeedbackQueue, queue.Task{
			Name:    FeedbackName,
			Payload: payload,
		})
	}
	if err != nil {
		h.logger.WithError(err).Warning("Failed to emit feedback")
	}

	return result
}

func (h *Handler) submit(broker queue.Broker, task *Task) error {
	payload, err := task.Marshal()
	if err != nil {
		return err
	}

	return broker.Submit(task.CurrentNode(), queue.Task{
		Name:    TaskName,
		Payload: payload,
	})
}

// rotate produces the follow-up result for a non-terminal outcome, or Failed
// when the task has exhausted its attempts.
func (h *Handler) rotate(
	task *Task,
	state State,
	remaining int,
	issued int,
	relayed int,
	logger *logrus.Entry,
) *Result {

	if task.Attempts >= h.opts.MaxAttempts {
		logger.Warning("Attempts exhausted")
		return &Result{State: Failed, Issued: issued, Relayed: relayed}
	}

	return &Result{
		State:    state,
		Issued:   issued,
		Relayed:  relayed,
		Resubmit: task.Rotate(remaining),
	}
}
