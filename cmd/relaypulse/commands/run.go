package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/covertnetworks/relaypulse/src/crypto/keys"
	"github.com/covertnetworks/relaypulse/src/delivery"
	"github.com/covertnetworks/relaypulse/src/metrics"
	"github.com/covertnetworks/relaypulse/src/nodeapi"
	"github.com/covertnetworks/relaypulse/src/peers"
	"github.com/covertnetworks/relaypulse/src/queue/wamp"
	"github.com/covertnetworks/relaypulse/src/registry"
	"github.com/covertnetworks/relaypulse/src/scheduler"
	"github.com/covertnetworks/relaypulse/src/service"
	"github.com/covertnetworks/relaypulse/src/worker"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRunCmd returns the command that starts a relaypulse worker
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run worker",
		PreRunE: loadConfig,
		RunE:    runWorker,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runWorker(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	nodeID := _config.NodeID
	if nodeID == "" {
		keyfile := keys.NewSimpleKeyfile(_config.Keyfile())

		key, err := keyfile.ReadKey()
		if err != nil {
			return fmt.Errorf("no node-id configured and no key in %s (run keygen first): %v",
				_config.Keyfile(), err)
		}

		nodeID = keys.NodeID(&key.PublicKey)
	}

	var store registry.Store
	var err error
	if _config.Store {
		store, err = registry.NewBadgerStore(_config.DatabaseDir)
		if err != nil {
			return err
		}
	} else {
		store = registry.NewInmemStore()
	}
	defer store.Close()

	api := nodeapi.NewHTTPClient(_config.APIHost, _config.APIToken, _config.APITimeout, logger)

	recorder := metrics.NewInmemRecorder()

	sched := scheduler.New(
		api,
		store,
		_config.BatchSize,
		_config.MessageTagBase,
		_config.MessageDelay,
		_config.DeliveryTimeout,
		logger,
	)

	var peerSet *peers.PeerSet
	if loaded, err := peers.NewJSONPeerSet(_config.PeersFile()).PeerSet(); err != nil {
		logger.WithError(err).Warning("Running without a peer file")
	} else {
		peerSet = loaded
	}

	handler := delivery.NewHandler(api, sched, recorder, peerSet, delivery.Options{
		ListenHost:    _config.ListenHost,
		SocketTimeout: _config.SocketTimeout,
		TimeoutBudget: _config.TimeoutBudget,
		MaxAttempts:   _config.MaxAttempts,
		Distribution:  _config.Distribution,
	}, logger)

	broker, err := wamp.NewBroker(
		_config.BrokerAddr,
		_config.BrokerRealm,
		nodeID,
		_config.APITimeout,
		logger,
	)
	if err != nil {
		return err
	}

	w := worker.New(handler, broker, _config.SuspendLimit, logger)

	if !_config.NoService {
		svc := service.NewService(_config.ServiceAddr, w, recorder, peerSet, logger)
		go svc.Serve()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Debug("Caught signal")
		w.Shutdown()
	}()

	logger.WithField("node", nodeID).Info("Worker running")

	w.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

// AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("node-id", _config.NodeID, "Worker identifier and queue name (default derived from the key)")

	// Node control API
	cmd.Flags().String("api-host", _config.APIHost, "Base URL of the node control API")
	cmd.Flags().String("api-token", _config.APIToken, "Auth token for the node control API")
	cmd.Flags().Duration("api-timeout", _config.APITimeout, "Control API timeout")

	// Queue broker
	cmd.Flags().String("broker-addr", _config.BrokerAddr, "IP:Port of the task-queue broker")
	cmd.Flags().String("broker-realm", _config.BrokerRealm, "Realm of the task-queue broker")

	// Sessions
	cmd.Flags().String("listen-host", _config.ListenHost, "Local host session listeners bind to")
	cmd.Flags().Duration("socket-timeout", _config.SocketTimeout, "Per-probe receive timeout")

	// Service
	cmd.Flags().BoolP("no-service", "n", _config.NoService, "Do not serve the stats API")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for the stats API")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB for the peer-tag registry")
	cmd.Flags().String("db", _config.DatabaseDir, "Database directory")

	// Delivery
	cmd.Flags().Int("batch-size", _config.BatchSize, "Number of probes per batch")
	cmd.Flags().Duration("message-delay", _config.MessageDelay, "Pacing delay between probes in a batch")
	cmd.Flags().Duration("delivery-timeout", _config.DeliveryTimeout, "Grace period before draining the inbox")
	cmd.Flags().Duration("timeout-budget", _config.TimeoutBudget, "Deadline of a whole distribution cycle")
	cmd.Flags().Int("max-attempts", _config.MaxAttempts, "Max node rotations per cycle")
	cmd.Flags().Int("tag-base", _config.MessageTagBase, "Base added to peer registry tags")
	cmd.Flags().Bool("distribution", _config.Distribution, "Enable probe sending")
	cmd.Flags().Duration("distribution-period", _config.DistributionPeriod, "Length of one distribution cycle")
	cmd.Flags().Int("suspend-limit", _config.SuspendLimit, "Consecutive failures before self-suspension")
	cmd.Flags().Float64("ticket-price", _config.TicketPrice, "Cost of relaying one message")
	cmd.Flags().StringSlice("nodes", _config.NodeList, "Ordered list of sending nodes")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	_config.SetLogger(newLogger())

	_config.Logger().WithFields(logrus.Fields{
		"DataDir":            _config.DataDir,
		"NodeID":             _config.NodeID,
		"APIHost":            _config.APIHost,
		"BrokerAddr":         _config.BrokerAddr,
		"BrokerRealm":        _config.BrokerRealm,
		"ListenHost":         _config.ListenHost,
		"ServiceAddr":        _config.ServiceAddr,
		"Store":              _config.Store,
		"BatchSize":          _config.BatchSize,
		"MessageDelay":       _config.MessageDelay,
		"DeliveryTimeout":    _config.DeliveryTimeout,
		"SocketTimeout":      _config.SocketTimeout,
		"TimeoutBudget":      _config.TimeoutBudget,
		"MaxAttempts":        _config.MaxAttempts,
		"MessageTagBase":     _config.MessageTagBase,
		"Distribution":       _config.Distribution,
		"DistributionPeriod": _config.DistributionPeriod,
		"TicketPrice":        _config.TicketPrice,
	}).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/relaypulse.toml (.json, .yaml also work)
	viper.SetConfigName("relaypulse")
	viper.AddConfigPath(_config.DataDir)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
