package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/covertnetworks/relaypulse/src/common"
	"github.com/covertnetworks/relaypulse/src/reward"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultRegistryFile is the default name of the folder containing the
	// Badger database backing the peer-tag registry
	DefaultRegistryFile = "registry_db"

	// DefaultPeersFile is the default name of the file containing the peer
	// set
	DefaultPeersFile = "peers.json"
)

// Default configuration values.
const (
	DefaultLogLevel           = "debug"
	DefaultAPIHost            = "http://127.0.0.1:3001"
	DefaultAPITimeout         = 20 * time.Second
	DefaultBrokerAddr         = "127.0.0.1:4555"
	DefaultBrokerRealm        = "relaypulse"
	DefaultListenHost         = "127.0.0.1"
	DefaultServiceAddr        = "127.0.0.1:8000"
	DefaultBatchSize          = 50
	DefaultMessageDelay       = 250 * time.Millisecond
	DefaultDeliveryTimeout    = 10 * time.Second
	DefaultSocketTimeout      = 1 * time.Second
	DefaultTimeoutBudget      = 30 * time.Minute
	DefaultMaxAttempts        = 4
	DefaultMessageTagBase     = 800
	DefaultDistribution       = true
	DefaultDistributionPeriod = 24 * time.Hour
	DefaultSuspendLimit       = 3
)

// Config contains all the configuration properties of a relaypulse worker.
type Config struct {
	// DataDir is the top-level directory containing configuration and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// NodeID identifies this worker's sending node. It is the name of the
	// queue the worker consumes from; distribution tasks are routed to the
	// node that must perform the send.
	NodeID string `mapstructure:"node-id"`

	// APIHost is the base URL of the relay node's control API.
	APIHost string `mapstructure:"api-host"`

	// APIToken authenticates calls to the control API.
	APIToken string `mapstructure:"api-token"`

	// APITimeout is the timeout of control API calls.
	APITimeout time.Duration `mapstructure:"api-timeout"`

	// BrokerAddr is the IP:PORT of the WAMP task-queue broker.
	BrokerAddr string `mapstructure:"broker-addr"`

	// BrokerRealm is an administrative domain within the broker. Queue
	// traffic is only routed within a realm.
	BrokerRealm string `mapstructure:"broker-realm"`

	// ListenHost is the local host sessions listen on.
	ListenHost string `mapstructure:"listen-host"`

	// NoService disables the HTTP stats service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// Store activates persistent storage for the peer-tag registry.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing registry database files.
	DatabaseDir string `mapstructure:"db"`

	// BatchSize is the number of probes sent per batch.
	BatchSize int `mapstructure:"batch-size"`

	// MessageDelay is the pacing delay between two probes within a batch.
	MessageDelay time.Duration `mapstructure:"message-delay"`

	// DeliveryTimeout is the grace period between dispatching a batch and
	// draining the relayed messages.
	DeliveryTimeout time.Duration `mapstructure:"delivery-timeout"`

	// SocketTimeout is the per-probe receive timeout on session sockets. It
	// is independent of the cycle deadline.
	SocketTimeout time.Duration `mapstructure:"socket-timeout"`

	// TimeoutBudget bounds a whole distribution cycle, measured from the
	// first attempt. The deadline survives across node-failover
	// re-submissions.
	TimeoutBudget time.Duration `mapstructure:"timeout-budget"`

	// MaxAttempts bounds the number of times a task may be rotated across
	// nodes, to avoid infinite round-robin when every node is unreachable.
	MaxAttempts int `mapstructure:"max-attempts"`

	// MessageTagBase is added to each peer's registry integer to form its
	// inbox routing tag.
	MessageTagBase int `mapstructure:"tag-base"`

	// Distribution gates probe sending. When false, distribution tasks are
	// acknowledged with a SKIPPED result instead of silently no-opping.
	Distribution bool `mapstructure:"distribution"`

	// DistributionPeriod is the length of one distribution cycle; the yearly
	// message quota is split over it.
	DistributionPeriod time.Duration `mapstructure:"distribution-period"`

	// SuspendLimit is the number of consecutive failed tasks after which the
	// worker suspends itself. 0 disables self-suspension.
	SuspendLimit int `mapstructure:"suspend-limit"`

	// TicketPrice is the cost, in the network's native currency, of having
	// one message relayed.
	TicketPrice float64 `mapstructure:"ticket-price"`

	// NodeList is the ordered set of candidate sending nodes used as
	// failover targets for newly created distribution tasks.
	NodeList []string `mapstructure:"nodes"`

	// Reward configures the sigmoid reward model.
	Reward reward.Config `mapstructure:"reward"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:            DefaultDataDir(),
		LogLevel:           DefaultLogLevel,
		APIHost:            DefaultAPIHost,
		APITimeout:         DefaultAPITimeout,
		BrokerAddr:         DefaultBrokerAddr,
		BrokerRealm:        DefaultBrokerRealm,
		ListenHost:         DefaultListenHost,
		ServiceAddr:        DefaultServiceAddr,
		DatabaseDir:        DefaultDatabaseDir(),
		BatchSize:          DefaultBatchSize,
		MessageDelay:       DefaultMessageDelay,
		DeliveryTimeout:    DefaultDeliveryTimeout,
		SocketTimeout:      DefaultSocketTimeout,
		TimeoutBudget:      DefaultTimeoutBudget,
		MaxAttempts:        DefaultMaxAttempts,
		MessageTagBase:     DefaultMessageTagBase,
		Distribution:       DefaultDistribution,
		DistributionPeriod: DefaultDistributionPeriod,
		SuspendLimit:       DefaultSuspendLimit,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t)
	return config
}

// SetDataDir sets the top-level relaypulse directory, and updates the
// database directory if it is currently set to the default value. If the
// database directory is not currently the default, it means the user has
// explicitely set it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultRegistryFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// PeersFile returns the full path of the file containing the peer set.
func (c *Config) PeersFile() string {
	return filepath.Join(c.DataDir, DefaultPeersFile)
}

// SetLogger replaces the underlying logger, preserving the configured level.
func (c *Config) SetLogger(logger *logrus.Logger) {
	logger.Level = LogLevel(c.LogLevel)
	c.logger = logger
}

// Logger returns a formatted logrus Entry, with prefix set to "relaypulse".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "relaypulse")
}

// DefaultDatabaseDir returns the default path for the registry database
// files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultRegistryFile)
}

// DefaultDataDir returns the default directory name for top-level relaypulse
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".RelayPulse")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "RelayPulse")
		} else {
			return filepath.Join(home, ".relaypulse")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
