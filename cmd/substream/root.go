package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/guarzo/substream/common"
	"github.com/guarzo/substream/internal/app"
	"github.com/guarzo/substream/internal/config"
)

// cli carries state shared by every subcommand.
type cli struct {
	out io.Writer
	app *app.App

	limit  int
	after  string
	asJSON bool
}

func newRootCommand(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:           "substream",
		Short:         "Browse Reddit listings through an auto-refreshing OAuth session",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := common.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty)
			c.app, err = app.New(cmd.Context(), cfg, log)
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.app == nil {
				return nil
			}
			return c.app.Close()
		},
	}

	root.PersistentFlags().IntVar(&c.limit, "limit", 0, "items per page (1-100, default 25)")
	root.PersistentFlags().StringVar(&c.after, "after", "", "page cursor returned by a previous call")
	root.PersistentFlags().BoolVar(&c.asJSON, "json", false, "print JSON instead of a table")

	root.AddCommand(
		c.popularCommand(),
		c.searchCommand(),
		c.postsCommand(),
		c.sessionCommand(),
	)
	return root
}
