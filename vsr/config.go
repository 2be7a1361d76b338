package vsr

import (
	"fmt"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
	"github.com/kimberlitedb/kimberlite-sub005/ledger"
)

// Config is a cluster membership list: the ordered set of replicas
// that participate in quorum decisions, plus the Byzantine-resistance
// bound on an accepted log tail's encoded size.
type Config struct {
	Replicas               []ids.ReplicaId
	MaxClusterLogTailBytes int64
}

// NewConfig validates and constructs a cluster configuration: non-empty,
// odd-sized (so a quorum is always unambiguous), and duplicate-free.
func NewConfig(replicas []ids.ReplicaId) (Config, error) {
	if len(replicas) == 0 {
		return Config{}, fmt.Errorf("vsr: cluster configuration must be non-empty")
	}
	if len(replicas)%2 == 0 {
		return Config{}, ErrEvenClusterSize
	}
	seen := make(map[ids.ReplicaId]bool, len(replicas))
	for _, r := range replicas {
		if seen[r] {
			return Config{}, ErrDuplicateReplica
		}
		seen[r] = true
	}

	cp := make([]ids.ReplicaId, len(replicas))
	copy(cp, replicas)
	return Config{
		Replicas:               cp,
		MaxClusterLogTailBytes: DefaultMaxClusterLogTailBytes(len(cp)),
	}, nil
}

// DefaultMaxClusterLogTailBytes is the Byzantine-resistance bound on an
// accepted StartView/DoViewChange log tail: enough to carry one-eighth
// of a segment's worth of tail per replica in a joint (two-config)
// reconfiguration, comfortably above any legitimate view-change
// payload while still bounding a malicious inflation attempt.
func DefaultMaxClusterLogTailBytes(clusterSize int) int64 {
	return 2 * int64(clusterSize) * ledger.DefaultMaxSegmentSize / 8
}

func (c Config) QuorumSize() int { return len(c.Replicas)/2 + 1 }

// Leader returns the deterministic leader for view within this config.
func (c Config) Leader(view ids.ViewNumber) ids.ReplicaId {
	return c.Replicas[uint64(view)%uint64(len(c.Replicas))]
}

func (c Config) Contains(r ids.ReplicaId) bool {
	for _, x := range c.Replicas {
		if x == r {
			return true
		}
	}
	return false
}

// ReconfigState is either Stable(New) or, during a joint-consensus
// reconfiguration, Joint{Old, New, JointOp}. While joint, every quorum
// check requires a quorum in both Old and New simultaneously (§4.5).
type ReconfigState struct {
	Joint   bool
	Old     Config
	New     Config
	JointOp ids.OpNumber
}

// StableState returns the non-joint ReconfigState for cfg.
func StableState(cfg Config) ReconfigState {
	return ReconfigState{Joint: false, New: cfg}
}

// ActiveForQuorum returns the set of configurations every quorum check
// must independently satisfy.
func (r ReconfigState) ActiveForQuorum() []Config {
	if r.Joint {
		return []Config{r.Old, r.New}
	}
	return []Config{r.New}
}

// QuorumSatisfied reports whether acked contains a quorum in every
// config ActiveForQuorum returns.
func (r ReconfigState) QuorumSatisfied(acked map[ids.ReplicaId]bool) bool {
	for _, cfg := range r.ActiveForQuorum() {
		n := 0
		for replica := range acked {
			if cfg.Contains(replica) {
				n++
			}
		}
		if n < cfg.QuorumSize() {
			return false
		}
	}
	return true
}

// LeaderElectionConfig is the configuration used to elect a leader:
// C_old while joint, for stability (§4.5 step 4), and C_new once stable.
func (r ReconfigState) LeaderElectionConfig() Config {
	if r.Joint {
		return r.Old
	}
	return r.New
}
