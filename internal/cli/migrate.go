package cli

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fennel/internal/app"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, sync, err := setup(rootOpts)
			if err != nil {
				return err
			}
			defer sync()

			a := app.New(cfg, logger, app.Options{Migrate: true})
			if err := a.Start(cmd.Context()); err != nil {
				return err
			}
			return a.Stop(cmd.Context())
		},
	}
}
