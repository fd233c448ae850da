package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/babelia-vision/babelia-go/cmd/search"
	"github.com/babelia-vision/babelia-go/cmd/selftest"
	"github.com/babelia-vision/babelia-go/cmd/top"
	"github.com/babelia-vision/babelia-go/internal/conf"
	"github.com/babelia-vision/babelia-go/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "babelia",
		Short: "Babelia image discovery agent",
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		logging.Fatal("error setting up flags", "error", err)
	}

	subcommands := []*cobra.Command{
		search.Command(settings),
		selftest.Command(settings),
		top.Command(settings),
	}

	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if settings.Debug {
			logging.SetLevel(slog.LevelDebug)
		}
		return conf.ValidateSettings(settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Babelia.BaseURL, "baseurl", viper.GetString("babelia.baseurl"), "Base URL of the image archive")
	rootCmd.PersistentFlags().StringVar(&settings.Babelia.Sampling, "sampling", viper.GetString("babelia.sampling"), "Address sampling mode, random or sequential")
	rootCmd.PersistentFlags().StringVar(&settings.Analyzer.ModelPath, "model", viper.GetString("analyzer.modelpath"), "Path to the image embedding model file")
	rootCmd.PersistentFlags().Float64VarP(&settings.Analyzer.Threshold, "threshold", "t", viper.GetFloat64("analyzer.threshold"), "Significance threshold for discoveries, value between 0.0 and 1.0")
	rootCmd.PersistentFlags().Float64Var(&settings.Analyzer.AnomalyThreshold, "anomaly-threshold", viper.GetFloat64("analyzer.anomalythreshold"), "Noise gate threshold, value between 0.0 and 1.0")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
