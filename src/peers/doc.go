// Package peers defines the concept of a relay peer and implements functions
// to manage collections of peers.
//
// A relay peer is an entity operating a node in the mix network. The cover
// traffic engine routes probe messages through each eligible peer, in
// proportion to the quota derived from the peer's stake by the reward model.
// A peer can be marked excluded, in which case distribution tasks targeting
// it are acknowledged and skipped rather than executed.
//
// Upon starting up, a worker expects to find a peers.json file in its data
// directory, listing the peers it may be asked to probe. The file is the
// source of truth for exclusion; quotas are recomputed at every distribution
// cycle rather than persisted.
package peers
