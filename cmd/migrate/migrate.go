package migrate

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wmde/mismatch-finder/internal/conf"
	"github.com/wmde/mismatch-finder/internal/datastore"
)

// Command creates the migrate command, which applies database migrations
// and exits. Useful for provisioning a database before first serve.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds := datastore.New(settings)
			if err := ds.Open(); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			if err := ds.Close(); err != nil {
				return fmt.Errorf("closing datastore: %w", err)
			}

			fmt.Println("Database migrations applied")
			return nil
		},
	}
}
