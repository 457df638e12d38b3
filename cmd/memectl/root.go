package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/timmy/memetag/internal/app"
	"github.com/timmy/memetag/internal/config"
	"github.com/timmy/memetag/internal/logger"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
	LogLevel   string

	app *app.App
}

var validFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "memectl",
		Short: "Maintain the meme index",
		Long: `memectl runs the maintenance operations of the meme bot from a shell:
rescanning the image store, retagging, backfilling thumbnails and clearing the index.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range validFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.app != nil {
				err := opts.app.Close()
				opts.app = nil
				return err
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to config file (default ./configs/config.yaml, or CONFIG_PATH)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level written to stderr")

	cmd.AddCommand(
		newDumpCommand(opts),
		newRetagCommand(opts),
		newRetagAllCommand(opts),
		newRescanCommand(opts),
		newImportCommand(opts),
		newThumbnailsCommand(opts),
		newDeleteCommand(opts),
		newClearCommand(opts),
		newJobsCommand(opts),
		newQueryCommand(opts),
	)
	return cmd
}

// open loads configuration and builds the services on first use.
func (o *rootOptions) open(cmd *cobra.Command) (*app.App, error) {
	if o.app != nil {
		return o.app, nil
	}
	path := o.ConfigPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.New(&logger.Config{
		Level:       o.LogLevel,
		Format:      cfg.Log.Format,
		Output:      cmd.ErrOrStderr(),
		ServiceName: "memectl",
	})
	logger.SetDefaultLogger(log)

	a, err := app.New(cmd.Context(), cfg, log)
	if err != nil {
		return nil, err
	}
	a.RecoverJobs(cmd.Context())
	o.app = a
	return a, nil
}

// emit writes v as JSON in json mode, or calls text otherwise.
func (o *rootOptions) emit(w io.Writer, v interface{}, text func(io.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
