package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	initDataDir           string
	initReplicaID         uint8
	initListenAddr        string
	initClientListenAddr  string
	initPeers             []string
	initSigningKey        string
	initCheckpointBackend string
	initAzureContainer    string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a new replica's cluster.yaml and create its data directory",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().StringVar(&initDataDir, "data-dir", "", "directory to hold this replica's segments and config (required)")
	initCmd.Flags().Uint8Var(&initReplicaID, "replica-id", 0, "this replica's numeric ID, 1-254 (required)")
	initCmd.Flags().StringVar(&initListenAddr, "listen-addr", "", "host:port this replica accepts peer connections on (required)")
	initCmd.Flags().StringVar(&initClientListenAddr, "client-listen-addr", "", "host:port this replica accepts client connections on (required)")
	initCmd.Flags().StringArrayVar(&initPeers, "peer", nil, "other replica as \"id=host:port\"; repeatable")
	initCmd.Flags().StringVar(&initSigningKey, "jwt-signing-key", "", "HMAC key clients' bearer tokens are signed with (required)")
	initCmd.Flags().StringVar(&initCheckpointBackend, "checkpoint-backend", "local", "where signed checkpoints are published: \"local\" or \"azure\"")
	initCmd.Flags().StringVar(&initAzureContainer, "azure-checkpoint-container", "", "blob container name, required when --checkpoint-backend=azure")
	_ = initCmd.MarkFlagRequired("data-dir")
	_ = initCmd.MarkFlagRequired("replica-id")
	_ = initCmd.MarkFlagRequired("listen-addr")
	_ = initCmd.MarkFlagRequired("client-listen-addr")
	_ = initCmd.MarkFlagRequired("jwt-signing-key")
}

func runInit(cmd *cobra.Command, args []string) error {
	if initReplicaID == 0 || initReplicaID == 255 {
		return &exitErr{exitUsageError, fmt.Errorf("kimberlite: --replica-id must be in 1..254")}
	}

	peers := make(map[uint8]string, len(initPeers))
	for _, p := range initPeers {
		var id uint8
		var addr string
		if _, err := fmt.Sscanf(p, "%d=%s", &id, &addr); err != nil {
			return &exitErr{exitUsageError, fmt.Errorf("kimberlite: malformed --peer %q, want id=host:port", p)}
		}
		peers[id] = addr
	}

	if err := os.MkdirAll(initDataDir, 0o750); err != nil {
		return &exitErr{exitConfigError, err}
	}

	cfg := clusterConfig{
		ReplicaID:         initReplicaID,
		DataDir:           initDataDir,
		ListenAddr:        initListenAddr,
		ClientListenAddr:  initClientListenAddr,
		Peers:             peers,
		SyncMode:          "fsync",
		SigningKey:        initSigningKey,
		CheckpointBackend: initCheckpointBackend,
		AzureContainer:    initAzureContainer,
	}
	if _, err := cfg.checkpointBackend(); err != nil {
		return &exitErr{exitUsageError, err}
	}
	path := filepath.Join(initDataDir, configFileName)
	if err := writeClusterConfig(path, cfg); err != nil {
		return &exitErr{exitConfigError, err}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}
