package commands

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/covertnetworks/relaypulse/src/queue/wamp"
	"github.com/spf13/cobra"
)

// NewBrokerCmd returns the command that runs the embedded task-queue broker.
func NewBrokerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "broker",
		Short:   "Run the task-queue broker",
		PreRunE: loadConfig,
		RunE:    runBroker,
	}
	AddRunFlags(cmd)
	return cmd
}

func runBroker(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	server, err := wamp.NewServer(_config.BrokerAddr, _config.BrokerRealm, logger)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Debug("Caught signal")
		server.Shutdown()
	}()

	if err := server.Run(); err != http.ErrServerClosed {
		return err
	}

	return nil
}
