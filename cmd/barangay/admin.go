// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/blinklabs-io/barangay/internal/config"
	"github.com/blinklabs-io/barangay/lifecycle"
	"github.com/blinklabs-io/barangay/roles"
	"github.com/blinklabs-io/barangay/treasury"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func rolesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Manage role grants for the database role oracle",
	}
	var grantedBy string
	grantCmd := &cobra.Command{
		Use:   "grant <role> <principal>",
		Short: "Grant a role (official, vendor, citizen) to a principal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := roles.ParseRole(args[0])
			if err != nil {
				return err
			}
			cfg := mustConfig(cmd)
			logger := adminLogger()
			db, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			oracle := roles.NewDatabaseOracle(db, logger)
			if err := oracle.Grant(cmd.Context(), role, args[1], grantedBy); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted %s to %s\n", role, args[1])
			return nil
		},
	}
	grantCmd.Flags().StringVar(&grantedBy, "granted-by", "cli", "principal recorded as the grantor")
	revokeCmd := &cobra.Command{
		Use:   "revoke <role> <principal>",
		Short: "Revoke a role from a principal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := roles.ParseRole(args[0])
			if err != nil {
				return err
			}
			cfg := mustConfig(cmd)
			logger := adminLogger()
			db, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			existed, err := roles.NewDatabaseOracle(db, logger).Revoke(cmd.Context(), role, args[1])
			if err != nil {
				return err
			}
			if !existed {
				return fmt.Errorf("%s does not hold role %s", args[1], role)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s from %s\n", role, args[1])
			return nil
		},
	}
	listCmd := &cobra.Command{
		Use:   "list [role]",
		Short: "List role grants",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var role roles.Role
			if len(args) == 1 {
				var err error
				if role, err = roles.ParseRole(args[0]); err != nil {
					return err
				}
			}
			cfg := mustConfig(cmd)
			logger := adminLogger()
			db, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			grants, err := roles.NewDatabaseOracle(db, logger).ListGrants(cmd.Context(), role)
			if err != nil {
				return err
			}
			return printJSON(cmd, grants)
		},
	}
	cmd.AddCommand(grantCmd, revokeCmd, listCmd)
	return cmd
}

func treasuryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "treasury",
		Short: "Fund and inspect the custodial treasury",
	}
	var depositor string
	depositCmd := &cobra.Command{
		Use:   "deposit <amount>",
		Short: "Deposit funds into the treasury",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[0], err)
			}
			cfg := mustConfig(cmd)
			logger := adminLogger()
			db, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			t := treasury.NewTreasury(treasury.TreasuryConfig{Database: db, Logger: logger})
			balance, err := t.Deposit(cmd.Context(), depositor, amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deposited %d, balance %d\n", amount, balance)
			return nil
		},
	}
	depositCmd.Flags().StringVar(&depositor, "depositor", "cli", "depositor recorded with the deposit")
	balanceCmd := &cobra.Command{
		Use:   "balance",
		Short: "Show the treasury balance and release totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := mustConfig(cmd)
			logger := adminLogger()
			db, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			t := treasury.NewTreasury(treasury.TreasuryConfig{Database: db, Logger: logger})
			summary, err := t.Balance(cmd.Context())
			if err != nil {
				return err
			}
			byCategory, err := t.TotalReleasedByCategory()
			if err != nil {
				return err
			}
			released := make(map[string]uint64, len(byCategory))
			for category, amount := range byCategory {
				released[category.String()] = amount
			}
			return printJSON(cmd, struct {
				treasury.Summary
				ReleasedByCategory map[string]uint64 `json:"releasedByCategory"`
			}{summary, released})
		},
	}
	cmd.AddCommand(depositCmd, balanceCmd)
	return cmd
}

func projectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Inspect projects",
	}
	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project with its milestones and releases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid project id %q: %w", args[0], err)
			}
			cfg := mustConfig(cmd)
			logger := adminLogger()
			db, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			t := treasury.NewTreasury(treasury.TreasuryConfig{Database: db, Logger: logger})
			engine, err := lifecycle.NewEngine(lifecycle.EngineConfig{
				Database:  db,
				Roles:     roles.NewDatabaseOracle(db, logger),
				Custodian: t,
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			p, err := engine.GetProject(cmd.Context(), id)
			if err != nil {
				return err
			}
			releases, err := t.ListReleases(id)
			if err != nil {
				return err
			}
			return printJSON(cmd, struct {
				Project    any                `json:"project"`
				Releases   []treasury.Release `json:"releases"`
				IsComplete bool               `json:"isComplete"`
			}{p, releases, p.IsComplete()})
		},
	}
	cmd.AddCommand(showCmd)
	return cmd
}

func configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or encrypt configuration",
	}
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(mustConfig(cmd))
		},
	}
	var output string
	encryptCmd := &cobra.Command{
		Use:   "encrypt <file>",
		Short: "Encrypt a config file with SOPS using the BARANGAY_*_KMS_* keys",
		Args:  cobra.ExactArgs(1),
		// Encrypting a file does not need a valid config of its own
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnvFile(); err != nil {
				return err
			}
			plain, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			encrypted, err := config.Encrypt(plain)
			if err != nil {
				if errors.Is(err, config.ErrAlreadyEncrypted) {
					return fmt.Errorf("%s is already encrypted", args[0])
				}
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(encrypted)
				return err
			}
			return os.WriteFile(output, encrypted, 0o600)
		},
	}
	encryptCmd.Flags().StringVarP(&output, "output", "o", "", "write the encrypted file here instead of stdout")
	cmd.AddCommand(showCmd, encryptCmd)
	return cmd
}
