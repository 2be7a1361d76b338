package main

import (
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var statusDataDir string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether this replica's configured peers are reachable",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusDataDir, "data-dir", "", "directory written by \"kimberlite init\" (required)")
	_ = statusCmd.MarkFlagRequired("data-dir")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadClusterConfig(filepath.Join(statusDataDir, configFileName))
	if err != nil {
		return &exitErr{exitConfigError, fmt.Errorf("kimberlite: loading cluster config: %w", err)}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "replica %d, data-dir %s, listen %s\n", cfg.ReplicaID, cfg.DataDir, cfg.ListenAddr)
	for id, addr := range cfg.Peers {
		reachable := "unreachable"
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err == nil {
			reachable = "reachable"
			conn.Close()
		}
		fmt.Fprintf(out, "  peer %d (%s): %s\n", id, addr, reachable)
	}
	return nil
}
