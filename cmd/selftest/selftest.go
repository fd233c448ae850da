package selftest

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/babelia-vision/babelia-go/internal/agent"
	"github.com/babelia-vision/babelia-go/internal/conf"
)

// Command creates the test command which verifies the pipeline end to end
// without touching the archive.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Verify the model, vocabulary and alert delivery",
		RunE: func(_ *cobra.Command, _ []string) error {
			return agent.SelfTest(context.Background(), settings)
		},
	}
}
