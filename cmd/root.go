package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/wmde/mismatch-finder/cmd/migrate"
	"github.com/wmde/mismatch-finder/cmd/serve"
	"github.com/wmde/mismatch-finder/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mismatch-finder",
		Short: "Mismatch Finder CLI",
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, settings)

	serveCmd := serve.Command(settings)
	migrateCmd := migrate.Command(settings)

	subcommands := []*cobra.Command{
		serveCmd,
		migrateCmd,
	}

	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Parse the command line flags
		if err := cmd.Flags().Parse(args); err != nil {
			return err
		}

		return initialize(settings)
	}

	return rootCmd
}

// initialize is called before any subcommand runs. It normalizes settings
// that accept free-form input.
func initialize(settings *conf.Settings) error {
	normalized, err := conf.NormalizeLanguage(settings.Mismatches.Language)
	if err != nil {
		return err
	}
	settings.Mismatches.Language = normalized

	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Mismatches.Language, "language", viper.GetString("mismatches.language"), "Default language for labels and formatted values. Accepts a BCP 47 code.")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
