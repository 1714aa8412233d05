package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/codiris/voice/internal/credential"
	"github.com/codiris/voice/internal/prefs"
	"github.com/codiris/voice/pkg/mode"
)

// ── key ──────────────────────────────────────────────────────────────────────

func (c *cli) keyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the OpenAI API key",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set [key]",
		Short: "Store the API key (read from stdin when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			key := ""
			if len(args) == 1 {
				key = args[0]
			} else {
				fmt.Fprint(os.Stderr, "API key: ")
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read key: %w", err)
				}
				key = line
			}
			client, _, err := c.client(ctx)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := client.Credentials().Set(ctx, key); err != nil {
				return err
			}
			fmt.Println("API key saved.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the stored API key, masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, _, err := c.client(ctx)
			if err != nil {
				return err
			}
			defer client.Close()
			key, err := client.Credentials().Get(ctx)
			if err != nil && !errors.Is(err, credential.ErrNotFound) {
				return err
			}
			fmt.Println(credential.Mask(key))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Remove the stored API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, _, err := c.client(ctx)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := client.Credentials().Delete(ctx); err != nil {
				return err
			}
			fmt.Println("API key removed.")
			return nil
		},
	})
	return cmd
}

// ── prefs ────────────────────────────────────────────────────────────────────

func (c *cli) prefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change preferences",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print every preference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, _, err := c.client(ctx)
			if err != nil {
				return err
			}
			defer client.Close()
			p, err := client.Prefs().Load(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, k := range prefs.Keys() {
				v, _ := p.Get(k)
				fmt.Fprintf(tw, "%s\t%s\n", k, v)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one preference",
		Long:  "Change one preference. Keys: " + strings.Join(prefs.Keys(), ", ") + ".",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, _, err := c.client(ctx)
			if err != nil {
				return err
			}
			defer client.Close()
			p, err := client.Prefs().Load(ctx)
			if err != nil {
				return err
			}
			if err := p.Set(args[0], args[1]); err != nil {
				return err
			}
			return client.Prefs().Save(ctx, p)
		},
	})
	return cmd
}

// ── modes ────────────────────────────────────────────────────────────────────

func (c *cli) modesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List enhancement modes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, _, err := c.client(ctx)
			if err != nil {
				return err
			}
			defer client.Close()
			p, err := client.Prefs().Load(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, info := range mode.All() {
				if info.WebOnly {
					continue
				}
				marker := " "
				if info.ID == p.CurrentMode {
					marker = "*"
				}
				fmt.Fprintf(tw, "%s %s\t%s\t%s\n", marker, info.ID, info.DisplayName, info.Description)
			}
			return tw.Flush()
		},
	}
}
