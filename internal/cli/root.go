package cli

import (
	"context"
	"database/sql"
	"fmt"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootOptions holds global flags and the environment shared by subcommands.
type RootOptions struct {
	Format string // "json" | "text"

	cfg *config.Config
	log *zap.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the storectl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "storectl",
		Short: "Storefront operations tool",
		Long:  "Runs schema migrations, seeds the catalog and inspects orders of the storefront database.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewOrdersCommand(opts))

	return cmd
}

func (o *RootOptions) init() error {
	if o.cfg != nil {
		return nil
	}
	_ = godotenv.Load()
	o.cfg = config.Load()

	log, err := logger.New(o.cfg.Server.Env)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	o.log = logger.Component(log, "storectl")
	return nil
}

func (o *RootOptions) openDB(ctx context.Context) (*sql.DB, error) {
	return database.Open(ctx, o.cfg.Database)
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
