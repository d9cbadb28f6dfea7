package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/paywall/pkg/entitlement"
	"github.com/dmitrymomot/paywall/pkg/logger"
)

func newUsersCmd(load func() (Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user subscription state",
	}
	cmd.AddCommand(newUsersSetPlanCmd(load))
	return cmd
}

func newUsersSetPlanCmd(load func() (Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "set-plan USER_ID PLAN",
		Short: "Grant or revoke a plan outside of billing (free, premium, unlimited)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}

			cfg, err := load()
			if err != nil {
				return err
			}
			cfg.QuotaStore = cfg.StoreDriver
			ctx := cmd.Context()
			log := newLogger(cfg)

			st, err := openStores(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer st.Close()

			state, err := entitlement.SetPlan(ctx, st.users, userID, entitlement.Plan(args[1]), time.Now())
			if err != nil {
				return err
			}
			log.InfoContext(ctx, "Plan updated", logger.UserID(userID),
				"plan", string(state.Plan), "status", string(state.Status))
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", userID, state.Plan, state.Status)
			return nil
		},
	}
}
