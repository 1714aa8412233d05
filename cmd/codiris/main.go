// Command codiris is the dictation client: it records speech, transcribes
// and enhances it, and delivers the text to the clipboard or stdout. It also
// manages the API key, preferences, history and the trial.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codiris/voice/internal/app"
	"github.com/codiris/voice/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "codiris: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// cli carries the flags shared by every subcommand.
type cli struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "codiris",
		Short:         "Voice dictation with AI enhancement",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "~/.codiris/config.yaml", "path to the YAML configuration file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		c.dictateCmd(),
		c.keyCmd(),
		c.prefsCmd(),
		c.modesCmd(),
		c.historyCmd(),
		c.statsCmd(),
		c.trialCmd(),
		c.upgradeCmd(),
	)
	return root
}

// load reads the config file, falling back to defaults when it is missing,
// and installs the default logger.
func (c *cli) load() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(config.ExpandHome(c.configPath))
	if err != nil {
		return nil, err
	}
	level := app.ParseLevel(cfg.Server.LogLevel)
	if c.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return cfg, nil
}

// client loads the config and opens the dictation client. The caller closes
// it.
func (c *cli) client(ctx context.Context, opts ...app.ClientOption) (*app.Client, *config.Config, error) {
	cfg, err := c.load()
	if err != nil {
		return nil, nil, err
	}
	reg := config.NewRegistry()
	app.RegisterBuiltins(reg)
	client, err := app.NewClient(ctx, cfg, reg, opts...)
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}
