package search

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/babelia-vision/babelia-go/internal/agent"
	"github.com/babelia-vision/babelia-go/internal/conf"
)

// Command creates the search command, the agent's main operating mode.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the archive for significant images",
		Long:  "Continuously sample archive addresses, fetch and score images, and persist discoveries until the image cap is reached or the process is interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// the alert-email shortcut enables alerting for this run
			if cmd.Flags().Changed("alert-email") && settings.Alert.To != "" {
				settings.Alert.Enabled = true
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return agent.Search(ctx, settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the search command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().IntVar(&settings.Search.MaxImages, "max-images", viper.GetInt("search.maximages"), "Stop after analyzing this many images, 0 for unbounded")
	cmd.Flags().StringVar(&settings.Alert.To, "alert-email", viper.GetString("alert.to"), "Send discovery alerts to this address")
	cmd.Flags().StringVar(&settings.Output.DBPath, "dbpath", viper.GetString("output.dbpath"), "Path to the discovery database")
	cmd.Flags().StringVar(&settings.Output.ImageDir, "imagedir", viper.GetString("output.imagedir"), "Directory for saved discovery images")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
