package worker

import (
	"errors"
	"time"

	"github.com/covertnetworks/relaypulse/src/delivery"
	"github.com/covertnetworks/relaypulse/src/peers"
	"github.com/covertnetworks/relaypulse/src/queue"
	"github.com/covertnetworks/relaypulse/src/reward"
	"github.com/sirupsen/logrus"
)

// Seeder opens a distribution cycle: it derives each eligible peer's message
// quota from the reward model and submits one task per peer, spreading the
// initial load across the sending nodes.
type Seeder struct {
	broker      queue.Broker
	model       *reward.Model
	nodeList    []string
	ticketPrice float64
	period      time.Duration
	logger      *logrus.Entry
}

// NewSeeder instantiates a Seeder.
func NewSeeder(
	broker queue.Broker,
	model *reward.Model,
	nodeList []string,
	ticketPrice float64,
	period time.Duration,
	logger *logrus.Entry,
) *Seeder {

	return &Seeder{
		broker:      broker,
		model:       model,
		nodeList:    nodeList,
		ticketPrice: ticketPrice,
		period:      period,
		logger:      logger,
	}
}

// Seed submits one distribution task per eligible peer and returns how many
// were submitted. Peers whose quota rounds down to zero are skipped.
func (s *Seeder) Seed(peerSet *peers.PeerSet) (int, error) {
	if len(s.nodeList) == 0 {
		return 0, errors.New("no sending nodes configured")
	}

	eligible := peerSet.Eligible()

	// the bucket inputs are network-level ratios, computed once and shared by
	// every peer in the cycle
	totalStake := 0.0
	for _, peer := range eligible {
		totalStake += peer.Stake
	}

	xs, err := s.model.NetworkInputs(totalStake, len(eligible))
	if err != nil {
		return 0, err
	}

	submitted := 0

	for i, peer := range eligible {
		peer.YearlyMessageCount = s.model.YearlyMessageCount(peer.Stake, s.ticketPrice, xs)

		count := s.model.MessageCountForPeriod(peer.Stake, s.ticketPrice, xs, s.period)
		if count <= 0 {
			s.logger.WithField("peer", peer.ID).Debug("Peer quota is zero")
			continue
		}

		task := delivery.NewTask(peer.ID, count, s.nodeList, s.ticketPrice)
		task.NodeIndex = i % len(s.nodeList)

		payload, err := task.Marshal()
		if err != nil {
			return submitted, err
		}

		err = s.broker.Submit(task.CurrentNode(), queue.Task{
			Name:    delivery.TaskName,
			Payload: payload,
		})
		if err != nil {
			return submitted, err
		}

		s.logger.WithFields(logrus.Fields{
			"peer":  peer.ID,
			"node":  task.CurrentNode(),
			"count": count,
		}).Debug("Task submitted")

		submitted++
	}

	return submitted, nil
}
