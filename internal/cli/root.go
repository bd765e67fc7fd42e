package cli

import (
	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fennel/config"
	"github.com/Ramsey-B/fennel/internal/app"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile string
}

// NewRootCommand creates the root command for the fennel CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "fennel",
		Short:         "fennel - template mock data service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file read before the environment")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))

	return cmd
}

// setup loads the configuration and the process logger shared by every
// command.
func setup(opts *RootOptions) (*config.Config, ectologger.Logger, func() error, error) {
	cfg, err := config.Load(opts.EnvFile)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, sync, err := app.NewLogger(cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		return nil, nil, nil, err
	}

	return cfg, logger, sync, nil
}
