package serve

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/wmde/mismatch-finder/internal/conf"
	"github.com/wmde/mismatch-finder/internal/server"
)

// Command creates the serve command, which runs the HTTP API.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Mismatch Finder API server",
		Long:  "Start serving the mismatch read and review endpoints over HTTP.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Run(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Server.Host, "host", viper.GetString("server.host"), "Interface to bind the API server to")
	cmd.Flags().StringVarP(&settings.Server.Port, "port", "p", viper.GetString("server.port"), "Port to listen on")
	cmd.Flags().StringVar(&settings.Database.SQLite.Path, "datapath", viper.GetString("database.sqlite.path"), "Path to the SQLite database file")
	cmd.Flags().BoolVar(&settings.Telemetry.Enabled, "telemetry", viper.GetBool("telemetry.enabled"), "Enable Prometheus telemetry endpoint")
	cmd.Flags().StringVar(&settings.Telemetry.Listen, "listen", viper.GetString("telemetry.listen"), "Listen address and port of telemetry endpoint")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
