package commands

import (
	"fmt"

	"github.com/covertnetworks/relaypulse/src/peers"
	"github.com/covertnetworks/relaypulse/src/queue/wamp"
	"github.com/covertnetworks/relaypulse/src/reward"
	"github.com/covertnetworks/relaypulse/src/worker"
	"github.com/spf13/cobra"
)

// NewDistributeCmd returns the command that opens a distribution cycle: one
// task per eligible peer, submitted to the sending nodes' queues.
func NewDistributeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "distribute",
		Short:   "Submit one distribution task per eligible peer",
		PreRunE: loadConfig,
		RunE:    distribute,
	}
	AddRunFlags(cmd)
	return cmd
}

func distribute(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	peerSet, err := peers.NewJSONPeerSet(_config.PeersFile()).PeerSet()
	if err != nil {
		return err
	}
	if peerSet == nil || peerSet.Len() == 0 {
		return fmt.Errorf("%s defines no peers", _config.PeersFile())
	}

	broker, err := wamp.NewBroker(
		_config.BrokerAddr,
		_config.BrokerRealm,
		"distributor",
		_config.APITimeout,
		logger,
	)
	if err != nil {
		return err
	}
	defer broker.Close()

	model := reward.NewModel(_config.Reward, logger)

	seeder := worker.NewSeeder(
		broker,
		model,
		_config.NodeList,
		_config.TicketPrice,
		_config.DistributionPeriod,
		logger,
	)

	submitted, err := seeder.Seed(peerSet)
	if err != nil {
		return err
	}

	fmt.Printf("Submitted %d tasks\n", submitted)

	return nil
}
