package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fennel/internal/app"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, sync, err := setup(rootOpts)
			if err != nil {
				return err
			}
			defer sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a := app.New(cfg, logger, app.Options{Serve: true, Migrate: cfg.DatabaseMigrateOnStart})
			if err := a.Run(ctx); err != nil {
				logger.WithError(err).Error("fennel stopped with an error")
				return err
			}
			return nil
		},
	}
}
