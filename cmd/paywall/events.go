package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/paywall/pkg/entitlement"
)

func newEventsCmd(load func() (Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the webhook event ledger",
	}
	cmd.AddCommand(newEventsUnmatchedCmd(load))
	return cmd
}

func newEventsUnmatchedCmd(load func() (Config, error)) *cobra.Command {
	var (
		since time.Duration
		limit int
	)

	cmd := &cobra.Command{
		Use:   "unmatched",
		Short: "List recorded events that could not be linked to a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			cfg.QuotaStore = cfg.StoreDriver
			ctx := cmd.Context()

			st, err := openStores(ctx, cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer st.Close()

			types, err := cfg.Billing.EventTypes()
			if err != nil {
				return err
			}
			resolver := entitlement.NewResolver(types, st.users, st.users)
			events, err := resolver.Unmatched(ctx, time.Now().Add(-since), limit)
			if err != nil {
				return err
			}
			return printEvents(cmd, events)
		},
	}
	cmd.Flags().DurationVar(&since, "since", 7*24*time.Hour, "look back window")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of events")
	return cmd
}

func printEvents(cmd *cobra.Command, events []entitlement.WebhookEvent) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECEIVED\tEVENT ID\tTYPE\tAPP USER\tORIGINAL APP USER\tPRODUCT")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ReceivedAt.UTC().Format(time.RFC3339), e.EventID, e.EventType,
			e.ExternalUserID, e.OriginalExternalUserID, e.ProductID)
	}
	return w.Flush()
}
