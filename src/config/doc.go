// Package config defines the configuration for a relaypulse worker.
//
// Whether the worker is started directly from Go code or from the command
// line, it uses the Config object defined in this package to store and
// forward configuration options. On top of these options, relaypulse relies
// on a data directory, defined by Config.DataDir, where it expects to find a
// few additional files:
//
//	priv_key // a plain text file containing the raw private key (cf. relaypulse keygen).
//	peers.json // a JSON file containing the current list of relay peers.
//	relaypulse.toml // (optional) a config file; .json and .yaml also work.
//	registry_db // (with --store) the directory holding the peer-tag registry database.
package config
