package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bootcdev/diskctl/internal/config"
	"github.com/bootcdev/diskctl/pkg/build"
	"github.com/bootcdev/diskctl/pkg/errors"
	"github.com/bootcdev/diskctl/pkg/history"
	"github.com/bootcdev/diskctl/pkg/lifecycle"
	"github.com/bootcdev/diskctl/pkg/podman"
	"github.com/bootcdev/diskctl/pkg/upload"
	"github.com/spf13/cobra"
	"github.com/superfly/fsm"
)

var (
	buildTag          string
	buildTypes        []string
	buildArch         string
	buildOutput       string
	buildRootfs       string
	buildChown        string
	buildConfigPath   string
	buildCustomize    string
	buildAWSBucket    string
	buildAWSRegion    string
	buildAWSAMIName   string
	buildBuilderImage string
	buildBackground   bool
	buildVerbose      bool
)

var buildCmd = &cobra.Command{
	Use:   "build <image>",
	Short: "Build bootable disk images from a bootc container image",
	Long: `Build bootable disk images from a bootc container image.

Examples:
  diskctl build quay.io/fedora/fedora-bootc --type qcow2 --output /var/tmp/images
  diskctl build myimage --tag v2 --type raw --type vmdk --arch aarch64 --output /var/tmp/images`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().StringVar(&buildTag, "tag", "latest", "Source image tag")
	buildCmd.Flags().StringArrayVar(&buildTypes, "type", []string{"qcow2"}, "Output format (repeatable)")
	buildCmd.Flags().StringVar(&buildArch, "arch", "", "Target architecture")
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "Output folder (absolute path)")
	buildCmd.Flags().StringVar(&buildRootfs, "rootfs", "", "Root filesystem type (xfs, ext4, btrfs)")
	buildCmd.Flags().StringVar(&buildChown, "chown", "", "Ownership (uid:gid) for the artifacts")
	buildCmd.Flags().StringVar(&buildConfigPath, "config", "", "Externally authored build config file (TOML or JSON)")
	buildCmd.Flags().StringVar(&buildCustomize, "customize", "", "Customizations file (JSON) materialized into a builder config")
	buildCmd.Flags().StringVar(&buildAWSBucket, "aws-bucket", "", "AWS bucket for AMI upload")
	buildCmd.Flags().StringVar(&buildAWSRegion, "aws-region", "", "AWS region for AMI upload")
	buildCmd.Flags().StringVar(&buildAWSAMIName, "aws-ami-name", "", "AMI name for AWS upload")
	buildCmd.Flags().StringVar(&buildBuilderImage, "builder-image", "", "Builder image override")
	buildCmd.Flags().BoolVar(&buildBackground, "background", false, "Return after the build is launched")
	buildCmd.Flags().BoolVarP(&buildVerbose, "verbose", "v", false, "Echo builder output")
	buildCmd.MarkFlagRequired("output")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}
	if err := ensureDirectories(cfg.HistoryPath, cfg.FSMDBPath); err != nil {
		return err
	}

	spec, err := buildSpecification(args[0], cfg)
	if err != nil {
		return err
	}

	if build.Exists(spec.Folder, spec.Formats) {
		fmt.Printf("Warning: %s already holds artifacts for the requested formats, they will be overwritten\n", spec.Folder)
	}

	if spec.AWS.Complete() {
		if err := upload.CheckBucket(ctx, spec.AWS.Bucket, spec.AWS.Region); err != nil {
			slog.Warn("aws_preflight_failed", "error", err)
		}
	}

	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		return errors.Wrap(err, "history store failed")
	}

	engine := podman.NewEngine(cfg.PodmanPath)
	checker := podman.NewChecker(engine, cfg.Connection)

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	observer := &lifecycle.ConsoleObserver{Verbose: buildVerbose}
	machine := lifecycle.NewMachine(checker, engine, store, build.Options{
		BuilderPreference: cfg.Builder,
		AWSCredentialsDir: upload.CredentialsDir(cfg.AWSCredentialsDir),
	}, observer)

	driver, err := lifecycle.NewDriver(ctx, manager, machine)
	if err != nil {
		return errors.Wrap(err, "driver init failed")
	}

	// The configured timeout advises this caller, not the engine.
	if cfg.BuildTimeout > 0 && !buildBackground {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.BuildTimeout)
		defer cancel()
	}

	handle, err := driver.Build(ctx, spec, buildBackground)
	if err != nil {
		return err
	}

	// A background build returns control right after launch; the process
	// still outlives the builder container but only the history record
	// reports the outcome.
	if buildBackground {
		fmt.Printf("Build %s launched, continuing in the background\n", handle.RecordID)
		if err := handle.Wait(ctx); err != nil {
			slog.Error("background_build_failed", "record_id", handle.RecordID, "error", err)
		}
		return nil
	}

	slog.Info("build_finished", "record_id", handle.RecordID, "status", handle.Result().Status)
	return nil
}

// buildSpecification assembles the specification from flags and config.
func buildSpecification(image string, cfg *config.Config) (*build.Specification, error) {
	folder := buildOutput
	if !filepath.IsAbs(folder) {
		abs, err := filepath.Abs(folder)
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve output folder")
		}
		folder = abs
	}

	spec := &build.Specification{
		Image:        image,
		Tag:          buildTag,
		Formats:      buildTypes,
		Arch:         buildArch,
		Folder:       folder,
		Filesystem:   buildRootfs,
		Chown:        buildChown,
		ConfigPath:   buildConfigPath,
		BuilderImage: buildBuilderImage,
		EngineID:     podman.MachineName(cfg.Connection),
	}

	if buildAWSBucket != "" || buildAWSRegion != "" || buildAWSAMIName != "" {
		spec.AWS = &build.AWSUpload{
			Bucket:  buildAWSBucket,
			Region:  buildAWSRegion,
			AMIName: buildAWSAMIName,
		}
	}

	if buildCustomize != "" {
		data, err := os.ReadFile(buildCustomize)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read customizations file")
		}
		var custom build.Config
		if err := json.Unmarshal(data, &custom); err != nil {
			return nil, errors.Wrap(err, "failed to parse customizations file")
		}
		spec.Customizations = &custom
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}
