package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Rebuild the relational mirror from the flat logs",
		Long:  "Replaces users, balances and history in the database with the content of the flat logs in data_dir.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to mailslot config file")
	return cmd
}

func runSync(cmd *cobra.Command, configPath string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	l, err := openLedger(cfg, gormDB)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	before, err := l.Stats()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Mirror before sync: %d users, %d balances, %d history entries\n",
		before.Users, before.Balances, before.History)
	counts, err := l.Reconcile()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Synced: %d users, %d balances, %d history entries\n",
		counts.Users, counts.Balances, counts.History)
	return nil
}
