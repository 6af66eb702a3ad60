package scheduler

import (
	"sync"
	"time"

	"github.com/covertnetworks/relaypulse/src/message"
	"github.com/covertnetworks/relaypulse/src/nodeapi"
	"github.com/covertnetworks/relaypulse/src/registry"
	"github.com/sirupsen/logrus"
)

// Sender is the outbound half of a session socket, the only part of it the
// batch loop needs.
type Sender interface {
	// Send writes one best-effort datagram and returns the number of bytes
	// written.
	Send(payload []byte) (int, error)

	// PayloadSize returns the datagram payload size probes are framed to.
	PayloadSize() int
}

// Scheduler sends probe messages through a relayer in paced batches, then
// counts how many of them came back through the node's inbox.
type Scheduler struct {
	api      nodeapi.Client
	registry registry.Store

	batchSize       int
	tagBase         int
	messageDelay    time.Duration
	deliveryTimeout time.Duration

	logger *logrus.Entry
}

// New instantiates a Scheduler.
func New(
	api nodeapi.Client,
	reg registry.Store,
	batchSize int,
	tagBase int,
	messageDelay time.Duration,
	deliveryTimeout time.Duration,
	logger *logrus.Entry,
) *Scheduler {

	return &Scheduler{
		api:             api,
		registry:        reg,
		batchSize:       batchSize,
		tagBase:         tagBase,
		messageDelay:    messageDelay,
		deliveryTimeout: deliveryTimeout,
		logger:          logger,
	}
}

// CreateBatches splits totalCount into consecutive batches of batchSize, with
// a final shorter batch holding the remainder. The batches sum exactly to
// totalCount. A non-positive count or batch size yields no batches.
func CreateBatches(totalCount, batchSize int) []int {
	if totalCount <= 0 || batchSize <= 0 {
		return nil
	}

	batches := make([]int, 0, totalCount/batchSize+1)

	for remaining := totalCount; remaining > 0; remaining -= batchSize {
		if remaining < batchSize {
			batches = append(batches, remaining)
		} else {
			batches = append(batches, batchSize)
		}
	}

	return batches
}

// SendMessagesInBatches sends expectedCount probes from sender through
// relayer over the socket, batch by batch. Within a batch, message i is
// delayed by i times the pacing delay; the batch completes when all its sends
// have returned. After each batch, the scheduler waits out the delivery grace
// period, then drains the relayer's inbox tag and counts the messages that
// made it back, so a batch never overlaps the previous one's deliveries.
//
// It returns the relayed and issued counts. A send that errors is simply not
// counted as issued; relayed never exceeds issued.
func (s *Scheduler) SendMessagesInBatches(
	sock Sender,
	sender string,
	relayer string,
	expectedCount int,
) (relayed int, issued int, err error) {

	peerTag, err := s.registry.GetOrCreate(relayer)
	if err != nil {
		return 0, 0, err
	}
	tag := s.tagBase + peerTag

	batches := CreateBatches(expectedCount, s.batchSize)

	for batchIndex, batchTotal := range batches {
		issued += s.sendBatch(sock, sender, relayer, batchIndex*s.batchSize, batchTotal, expectedCount)

		// grace period for in-flight messages to reach the inbox
		time.Sleep(s.deliveryTimeout)

		inbox, err := s.api.PopAllMessages(tag)
		if err != nil {
			s.logger.WithError(err).WithField("tag", tag).
				Warning("Failed to drain inbox")
			continue
		}

		relayed += len(inbox)
	}

	if relayed > issued {
		s.logger.WithFields(logrus.Fields{
			"relayed": relayed,
			"issued":  issued,
		}).Warning("Inbox contained more messages than were issued")
		relayed = issued
	}

	s.logger.WithFields(logrus.Fields{
		"relayer": relayer,
		"issued":  issued,
		"relayed": relayed,
	}).Debug("Batches delivered")

	return relayed, issued, nil
}

// sendBatch dispatches one batch of probes concurrently and returns how many
// were actually written to the socket. Probes carry their global sequence
// number, starting at offset+1, over the full expected count.
func (s *Scheduler) sendBatch(
	sock Sender,
	sender string,
	relayer string,
	offset int,
	batchTotal int,
	expectedCount int,
) int {

	var issuedLock sync.Mutex
	issued := 0

	var wg sync.WaitGroup
	for i := 0; i < batchTotal; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()

			time.Sleep(time.Duration(index) * s.messageDelay)

			probe := message.NewProbe(sender, relayer, offset+index+1, expectedCount)

			payload, err := probe.Marshal(sock.PayloadSize())
			if err != nil {
				s.logger.WithError(err).Error("Failed to frame probe")
				return
			}

			written, err := sock.Send(payload)
			if err != nil || written == 0 {
				s.logger.WithError(err).Debug("Failed to send probe")
				return
			}

			issuedLock.Lock()
			issued++
			issuedLock.Unlock()
		}(i)
	}
	wg.Wait()

	return issued
}
