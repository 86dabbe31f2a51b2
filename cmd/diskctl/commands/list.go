package commands

import (
	"fmt"
	"strings"

	"github.com/bootcdev/diskctl/internal/config"
	"github.com/bootcdev/diskctl/pkg/errors"
	"github.com/bootcdev/diskctl/pkg/history"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List build history",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		return errors.Wrap(err, "history store failed")
	}

	records := store.List()
	if len(records) == 0 {
		fmt.Println("No builds found")
		return nil
	}

	fmt.Printf("%-38s %-30s %-20s %-10s %-20s\n", "ID", "IMAGE", "FORMATS", "STATUS", "CREATED")
	fmt.Println(strings.Repeat("-", 120))

	for _, rec := range records {
		image := rec.Image
		if rec.Tag != "" {
			image = rec.Image + ":" + rec.Tag
		}
		fmt.Printf("%-38s %-30s %-20s %-10s %-20s\n",
			rec.ID, image, strings.Join(rec.Formats, ","), rec.Status,
			rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}

	return nil
}
