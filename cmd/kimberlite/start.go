package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/spf13/cobra"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
	"github.com/kimberlitedb/kimberlite-sub005/internal/logging"
	"github.com/kimberlitedb/kimberlite-sub005/kcrypto"
	"github.com/kimberlitedb/kimberlite-sub005/ledger"
	"github.com/kimberlitedb/kimberlite-sub005/runtime"
	"github.com/kimberlitedb/kimberlite-sub005/vsr"
)

var startDataDir string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start this replica and join the cluster",
	RunE:  runStart,
}

func init() {
	startCmd.Flags().StringVar(&startDataDir, "data-dir", "", "directory written by \"kimberlite init\" (required)")
	_ = startCmd.MarkFlagRequired("data-dir")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadClusterConfig(filepath.Join(startDataDir, configFileName))
	if err != nil {
		return &exitErr{exitConfigError, fmt.Errorf("kimberlite: loading cluster config: %w", err)}
	}
	syncMode, err := cfg.syncMode()
	if err != nil {
		return &exitErr{exitConfigError, err}
	}

	log := logging.NewDevelopment()
	defer log.Sync()

	vsrCfg, err := vsr.NewConfig(cfg.replicaIDs())
	if err != nil {
		return &exitErr{exitConfigError, fmt.Errorf("kimberlite: building cluster configuration: %w", err)}
	}
	replica := vsr.NewReplica(ids.ReplicaId(cfg.ReplicaID), vsrCfg, log)

	master, err := kcrypto.NewLocalMasterKeyProvider()
	if err != nil {
		return &exitErr{exitConfigError, err}
	}
	keys := kcrypto.NewKeyManager(master, log)

	checkpointStore, err := newCheckpointStore(cfg, log)
	if err != nil {
		return &exitErr{exitConfigError, err}
	}
	checkpointSigner, err := kcrypto.NewCheckpointSigner(fmt.Sprintf("kimberlite-%d", cfg.ReplicaID))
	if err != nil {
		return &exitErr{exitConfigError, err}
	}
	checkpoints := ledger.NewCheckpointPublisher(checkpointStore, checkpointSigner)

	transport := runtime.NewNetTransport(ids.ReplicaId(cfg.ReplicaID), cfg.peerAddrs(), log)

	rt := runtime.New(runtime.Config{
		Replica:     replica,
		DataDir:     cfg.DataDir,
		SyncMode:    syncMode,
		Transport:   transport,
		Keys:        keys,
		Erasure:     ledger.NewErasureFilter(),
		Checkpoints: checkpoints,
		Log:         log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	peerErrCh := make(chan error, 1)
	go func() {
		peerErrCh <- transport.Listen(cfg.ListenAddr, rt)
	}()

	clientServer := runtime.NewClientServer(rt, []byte(cfg.SigningKey), fmt.Sprintf("kimberlite-%d", cfg.ReplicaID), log)
	clientErrCh := make(chan error, 1)
	go func() {
		clientErrCh <- clientServer.ListenAndServe(ctx, cfg.ClientListenAddr)
	}()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- rt.Run(ctx) }()

	select {
	case err := <-peerErrCh:
		if err != nil {
			return &exitErr{exitJoinFailure, fmt.Errorf("kimberlite: listening on %s: %w", cfg.ListenAddr, err)}
		}
		return nil
	case err := <-clientErrCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return &exitErr{exitJoinFailure, fmt.Errorf("kimberlite: client listener on %s: %w", cfg.ClientListenAddr, err)}
		}
		return nil
	case err := <-runErrCh:
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		if errors.Is(err, ids.ErrLogCorrupt) {
			return &exitErr{exitDataCorruption, err}
		}
		return &exitErr{exitJoinFailure, err}
	case <-ctx.Done():
		<-runErrCh
		return nil
	}
}

// newCheckpointStore builds the ObjectStore checkpoint publication
// writes signed checkpoints to, per cfg.checkpoint_backend: "local"
// (the default) writes under the replica's data directory; "azure"
// publishes to immutable off-cluster blob storage, authenticating with
// the connection string in azureCheckpointConnStringEnv.
func newCheckpointStore(cfg clusterConfig, log logging.Logger) (ledger.ObjectStore, error) {
	backend, err := cfg.checkpointBackend()
	if err != nil {
		return nil, err
	}
	switch backend {
	case "azure":
		connStr := os.Getenv(azureCheckpointConnStringEnv)
		if connStr == "" {
			return nil, fmt.Errorf("kimberlite: checkpoint_backend \"azure\" requires %s to be set", azureCheckpointConnStringEnv)
		}
		client, err := azblob.NewClientFromConnectionString(connStr, nil)
		if err != nil {
			return nil, fmt.Errorf("kimberlite: azure checkpoint client: %w", err)
		}
		return ledger.NewAzureBlobStore(client, cfg.AzureContainer, log), nil
	default:
		return ledger.NewLocalFileStore(filepath.Join(cfg.DataDir, "checkpoints"))
	}
}
