package commands

import (
	"context"
	"fmt"

	"github.com/bootcdev/diskctl/internal/config"
	"github.com/bootcdev/diskctl/pkg/errors"
	"github.com/bootcdev/diskctl/pkg/podman"
	"github.com/spf13/cobra"
)

var prereqsCmd = &cobra.Command{
	Use:   "prereqs",
	Short: "Check whether the environment can build disk images",
	RunE:  runPrereqs,
}

func init() {
	rootCmd.AddCommand(prereqsCmd)
}

func runPrereqs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	engine := podman.NewEngine(cfg.PodmanPath)
	checker := podman.NewChecker(engine, cfg.Connection)

	if message := checker.CheckPrereqs(context.Background()); message != "" {
		return fmt.Errorf("%s", message)
	}

	fmt.Println("Environment is ready to build disk images")
	return nil
}
