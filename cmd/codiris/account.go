package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/codiris/voice/internal/history"
	"github.com/codiris/voice/internal/web"
)

func (c *cli) historyCmd() *cobra.Command {
	var (
		limit int
		clear bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent dictations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, _, err := c.client(ctx)
			if err != nil {
				return err
			}
			defer client.Close()
			store := client.History()
			if store == nil {
				return errHistoryDisabled
			}
			if clear {
				if err := store.Clear(ctx); err != nil {
					return err
				}
				fmt.Println("History cleared.")
				return nil
			}
			entries, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No dictations yet.")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
					e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Mode, e.Words, preview(e.Text, 60))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	cmd.Flags().BoolVar(&clear, "clear", false, "delete all history and statistics")
	return cmd
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show words dictated and typing time saved",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, _, err := c.client(ctx)
			if err != nil {
				return err
			}
			defer client.Close()
			store := client.History()
			if store == nil {
				return errHistoryDisabled
			}
			today, err := store.Today(ctx)
			if err != nil {
				return err
			}
			total, err := store.Totals(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "\tdictations\twords\ttime saved")
			fmt.Fprintf(tw, "today\t%d\t%d\t%s\n", today.Count, today.Words, today.TimeSaved().Round(time.Second))
			fmt.Fprintf(tw, "all time\t%d\t%d\t%s\n", total.Count, total.Words, total.TimeSaved().Round(time.Second))
			return tw.Flush()
		},
	}
}

func (c *cli) trialCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "trial",
		Short: "Show the trial or subscription status",
		Long: `Show the trial or subscription status. With --email the premium status
is refreshed from the codiris web API first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, cfg, err := c.client(ctx)
			if err != nil {
				return err
			}
			defer client.Close()
			store := client.History()
			if store == nil {
				return errHistoryDisabled
			}

			var st history.Status
			if email != "" {
				st, err = client.RefreshSubscription(ctx, apiClient(cfg.Web.Origin), email)
				if err != nil {
					return err
				}
			} else {
				sub, err := store.Subscription(ctx)
				if err != nil {
					return err
				}
				st = sub.Status(time.Now())
			}

			switch {
			case st.Premium:
				fmt.Println("Premium: active")
			case st.TrialActive:
				fmt.Printf("Trial: %d day(s) left, ends %s\n", st.DaysLeft, st.TrialEnds.Local().Format("2006-01-02"))
			default:
				fmt.Println("Trial expired. Run `codiris upgrade --email you@example.com` to subscribe.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "refresh premium status for this email")
	return cmd
}

func (c *cli) upgradeCmd() *cobra.Command {
	var email, machineID string
	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Open a subscription checkout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.load()
			if err != nil {
				return err
			}
			if machineID == "" {
				machineID, _ = os.Hostname()
			}
			out, err := apiClient(cfg.Web.Origin).Checkout(cmd.Context(), email, machineID)
			if err != nil {
				return err
			}
			fmt.Println("Complete your purchase at:")
			fmt.Println(out.URL)
			fmt.Println("Then run `codiris trial --email " + email + "` to activate premium.")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email (required)")
	cmd.Flags().StringVar(&machineID, "machine-id", "", "identifier for this device (default: hostname)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

var errHistoryDisabled = errors.New("history is disabled (history.backend: none)")

func apiClient(origin string) *web.Client {
	return web.NewClient(origin, &http.Client{Timeout: 30 * time.Second})
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
