package commands

import (
	"fmt"

	"github.com/bootcdev/diskctl/internal/config"
	"github.com/bootcdev/diskctl/pkg/errors"
	"github.com/bootcdev/diskctl/pkg/history"
	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove <build-id>",
	Short: "Remove a build from the history",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		return errors.Wrap(err, "history store failed")
	}

	if err := store.Remove(args[0]); err != nil {
		return errors.Wrapf(err, "failed to remove build %s", args[0])
	}

	fmt.Printf("Removed build %s\n", args[0])
	return nil
}
