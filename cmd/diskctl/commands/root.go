package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "diskctl",
	Short: "diskctl - bootable disk images from bootc container images",
	Long:  `Builds bootable disk images (qcow2, raw, vmdk, anaconda-iso, ...) from bootc container images by driving bootc-image-builder through Podman.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("builder", "centos", "Builder image preset (centos or rhel)")
	rootCmd.PersistentFlags().String("podman-path", "podman", "Podman binary path")
	rootCmd.PersistentFlags().String("connection", "Podman Machine", "Engine connection display name")
	rootCmd.PersistentFlags().String("history-path", "", "Build history file")
	rootCmd.PersistentFlags().String("fsm-db-path", "", "Lifecycle state database path")
	rootCmd.PersistentFlags().String("aws-credentials-dir", "", "AWS credentials directory to mount for AMI uploads")
	rootCmd.PersistentFlags().Duration("build-timeout", 0, "Maximum duration for one build (0 = unlimited)")

	viper.BindPFlag("builder", rootCmd.PersistentFlags().Lookup("builder"))
	viper.BindPFlag("podman-path", rootCmd.PersistentFlags().Lookup("podman-path"))
	viper.BindPFlag("connection", rootCmd.PersistentFlags().Lookup("connection"))
	viper.BindPFlag("history-path", rootCmd.PersistentFlags().Lookup("history-path"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
	viper.BindPFlag("aws-credentials-dir", rootCmd.PersistentFlags().Lookup("aws-credentials-dir"))
	viper.BindPFlag("build-timeout", rootCmd.PersistentFlags().Lookup("build-timeout"))
}
