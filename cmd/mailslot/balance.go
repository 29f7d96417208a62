package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/zulandar/mailslot/internal/ledger"
)

func newBalanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Inspect or correct user balances",
	}

	cmd.AddCommand(newBalanceGetCmd())
	cmd.AddCommand(newBalanceSetCmd())
	return cmd
}

func newBalanceGetCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "get <user-id>",
		Short: "Print a user's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBalanceGet(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to mailslot config file")
	return cmd
}

func newBalanceSetCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "set <user-id> <amount>",
		Short: "Overwrite a user's balance in both representations",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBalanceSet(cmd, configPath, args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to mailslot config file")
	return cmd
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

func parseAmount(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

func runBalanceGet(cmd *cobra.Command, configPath, rawID string) error {
	userID, err := parseUserID(rawID)
	if err != nil {
		return err
	}
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	l, err := openLedger(cfg, gormDB)
	if err != nil {
		return err
	}
	bal, err := l.Balance(userID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n", userID, ledger.FormatAmount(bal))
	return nil
}

func runBalanceSet(cmd *cobra.Command, configPath, rawID, rawAmount string) error {
	userID, err := parseUserID(rawID)
	if err != nil {
		return err
	}
	amount, err := parseAmount(rawAmount)
	if err != nil {
		return err
	}
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	l, err := openLedger(cfg, gormDB)
	if err != nil {
		return err
	}
	if err := l.SetBalance(userID, amount); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d: balance set to %s\n", userID, ledger.FormatAmount(amount))
	return nil
}
