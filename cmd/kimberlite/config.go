package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
	"github.com/kimberlitedb/kimberlite-sub005/ledger"
)

// clusterConfig is the on-disk descriptor `kimberlite init` writes and
// `kimberlite start`/`status` read: this replica's identity, its data
// directory, and the address of every peer in the cluster's initial
// configuration. Reconfiguration afterward happens through the VSR
// protocol itself (CommandReconfigure), never by editing this file.
type clusterConfig struct {
	ReplicaID         uint8            `yaml:"replica_id"`
	DataDir           string           `yaml:"data_dir"`
	ListenAddr        string           `yaml:"listen_addr"`
	ClientListenAddr  string           `yaml:"client_listen_addr"`
	Peers             map[uint8]string `yaml:"peers"`
	SyncMode          string           `yaml:"sync_mode"`
	SigningKey        string           `yaml:"jwt_signing_key"`
	CheckpointBackend string           `yaml:"checkpoint_backend"`
	AzureContainer    string           `yaml:"azure_checkpoint_container"`
}

func (c clusterConfig) replicaIDs() []ids.ReplicaId {
	out := make([]ids.ReplicaId, 0, len(c.Peers)+1)
	out = append(out, ids.ReplicaId(c.ReplicaID))
	for peer := range c.Peers {
		out = append(out, ids.ReplicaId(peer))
	}
	return out
}

func (c clusterConfig) peerAddrs() map[ids.ReplicaId]string {
	out := make(map[ids.ReplicaId]string, len(c.Peers)+1)
	out[ids.ReplicaId(c.ReplicaID)] = c.ListenAddr
	for peer, addr := range c.Peers {
		out[ids.ReplicaId(peer)] = addr
	}
	return out
}

func (c clusterConfig) syncMode() (ledger.SyncMode, error) {
	switch c.SyncMode {
	case "", "fsync":
		return ledger.SyncFsync, nil
	case "async":
		return ledger.SyncAsync, nil
	default:
		return 0, fmt.Errorf("kimberlite: unknown sync_mode %q (want \"fsync\" or \"async\")", c.SyncMode)
	}
}

func loadClusterConfig(path string) (clusterConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return clusterConfig{}, err
	}
	var c clusterConfig
	if err := yaml.Unmarshal(b, &c); err != nil {
		return clusterConfig{}, err
	}
	return c, nil
}

func writeClusterConfig(path string, c clusterConfig) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func (c clusterConfig) checkpointBackend() (string, error) {
	switch c.CheckpointBackend {
	case "", "local":
		return "local", nil
	case "azure":
		if c.AzureContainer == "" {
			return "", fmt.Errorf("kimberlite: checkpoint_backend \"azure\" requires azure_checkpoint_container")
		}
		return "azure", nil
	default:
		return "", fmt.Errorf("kimberlite: unknown checkpoint_backend %q (want \"local\" or \"azure\")", c.CheckpointBackend)
	}
}

const configFileName = "cluster.yaml"

// azureCheckpointConnStringEnv names the environment variable start.go
// reads the Azure Storage connection string from when
// checkpoint_backend is "azure": a connection string is a secret, so it
// never lives in cluster.yaml alongside the rest of the config.
const azureCheckpointConnStringEnv = "KIMBERLITE_AZURE_CHECKPOINT_CONNECTION_STRING"
