package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
	"github.com/kimberlitedb/kimberlite-sub005/ledger"
)

func TestSyncModeDefaultsToFsync(t *testing.T) {
	var c clusterConfig
	mode, err := c.syncMode()
	require.NoError(t, err)
	assert.Equal(t, ledger.SyncFsync, mode)
}

func TestSyncModeRejectsUnknownValue(t *testing.T) {
	c := clusterConfig{SyncMode: "nope"}
	_, err := c.syncMode()
	assert.Error(t, err)
}

func TestCheckpointBackendDefaultsToLocal(t *testing.T) {
	var c clusterConfig
	backend, err := c.checkpointBackend()
	require.NoError(t, err)
	assert.Equal(t, "local", backend)
}

func TestCheckpointBackendAzureRequiresContainer(t *testing.T) {
	c := clusterConfig{CheckpointBackend: "azure"}
	_, err := c.checkpointBackend()
	assert.Error(t, err)

	c.AzureContainer = "checkpoints"
	backend, err := c.checkpointBackend()
	require.NoError(t, err)
	assert.Equal(t, "azure", backend)
}

func TestReplicaIDsAndPeerAddrsIncludeSelf(t *testing.T) {
	c := clusterConfig{
		ReplicaID:  1,
		ListenAddr: "localhost:9001",
		Peers:      map[uint8]string{2: "localhost:9002"},
	}
	assert.ElementsMatch(t, []ids.ReplicaId{1, 2}, c.replicaIDs())

	addrs := c.peerAddrs()
	assert.Equal(t, "localhost:9001", addrs[ids.ReplicaId(1)])
	assert.Equal(t, "localhost:9002", addrs[ids.ReplicaId(2)])
}
