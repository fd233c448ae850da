package top

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/babelia-vision/babelia-go/internal/conf"
	"github.com/babelia-vision/babelia-go/internal/datastore"
)

// Command creates the top command which lists the highest scoring
// discoveries stored so far.
func Command(settings *conf.Settings) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "top",
		Short: "List the highest scoring discoveries",
		RunE: func(_ *cobra.Command, _ []string) error {
			store := datastore.New(settings)
			if err := store.Open(); err != nil {
				return err
			}
			defer func() {
				_ = store.Close()
			}()

			return printTop(store, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of discoveries to list")

	return cmd
}

// printTop writes the ranked discoveries to stdout.
func printTop(store datastore.Interface, limit int) error {
	discoveries, err := store.Top(limit)
	if err != nil {
		return err
	}

	total, err := store.Count()
	if err != nil {
		return err
	}

	if len(discoveries) == 0 {
		fmt.Println("No discoveries recorded yet.")
		return nil
	}

	fmt.Printf("Top %d of %d discoveries:\n\n", len(discoveries), total)
	for i, d := range discoveries {
		fmt.Printf("%2d. score %.3f  %s\n", i+1, d.Score, d.Slug())
		fmt.Printf("    reason: %s\n", d.Reason)
		fmt.Printf("    found:  %s\n", d.DiscoveredAt.Format("2006-01-02 15:04:05"))
		if d.ImagePath != "" {
			fmt.Printf("    image:  %s\n", d.ImagePath)
		}
		fmt.Println()
	}

	return nil
}
