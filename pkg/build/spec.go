// Package build translates a disk image build request into the container
// invocation that runs bootc-image-builder, and knows the on-disk layout of
// the artifacts the builder produces.
package build

import (
	"fmt"
	"path/filepath"
)

// Builder image presets selectable through configuration.
const (
	BuilderCentos = "quay.io/centos-bootc/bootc-image-builder:latest"
	BuilderRHEL   = "registry.redhat.io/rhel9/bootc-image-builder:latest"
)

// Status values for a build attempt.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// allowedFilesystems is the set of root filesystem types bootc-image-builder
// accepts for --rootfs. Anything else is silently dropped from the command.
var allowedFilesystems = map[string]bool{
	"xfs":   true,
	"ext4":  true,
	"btrfs": true,
}

// AWSUpload holds the parameters for uploading a finished AMI. The builder
// only performs the upload when all three are given, so partial sets are
// treated as absent.
type AWSUpload struct {
	Bucket  string
	Region  string
	AMIName string
}

// Complete reports whether every upload parameter is set.
func (u *AWSUpload) Complete() bool {
	return u != nil && u.Bucket != "" && u.Region != "" && u.AMIName != ""
}

// Specification is the user intent for one disk image build.
type Specification struct {
	// Image is the bootc container image reference to build from.
	Image string
	// Tag selects the image tag, defaulting to latest.
	Tag string
	// Formats lists the requested output formats (qcow2, raw, vmdk,
	// anaconda-iso, ...). Must not be empty.
	Formats []string
	// Arch is the target architecture. Only meaningful for some formats.
	Arch string
	// Folder is the absolute path receiving the build artifacts.
	Folder string
	// Filesystem optionally overrides the root filesystem type. Values
	// outside the allow-list are ignored.
	Filesystem string
	// Chown optionally sets a uid:gid ownership for the artifacts.
	Chown string
	// Customizations, when set, is materialized to a temporary JSON config
	// file and mounted into the builder. Takes precedence over ConfigPath.
	Customizations *Config
	// ConfigPath points at an externally authored TOML or JSON config file.
	ConfigPath string
	// AWS carries the optional AMI upload parameters.
	AWS *AWSUpload
	// BuilderImage overrides the configured builder image preset.
	BuilderImage string
	// EngineID identifies the container engine connection the build ran on.
	EngineID string
}

// Validate checks the invariants the translator relies on.
func (s *Specification) Validate() error {
	if s.Image == "" {
		return fmt.Errorf("image reference is required")
	}
	if len(s.Formats) == 0 {
		return fmt.Errorf("at least one output format is required")
	}
	if s.Folder == "" || !filepath.IsAbs(s.Folder) {
		return fmt.Errorf("output folder must be an absolute path, got %q", s.Folder)
	}
	return nil
}

// ImageRef returns the fully tagged source image reference.
func (s *Specification) ImageRef() string {
	tag := s.Tag
	if tag == "" {
		tag = "latest"
	}
	return s.Image + ":" + tag
}

// needsTargetArch reports whether --target-arch applies to the requested
// format set. The flag is only honored by the anaconda-iso pipeline and by
// multi-format builds; for a single non-installer format the builder infers
// the architecture from the source image.
func needsTargetArch(formats []string) bool {
	if len(formats) > 1 {
		return true
	}
	for _, f := range formats {
		if f == "anaconda-iso" {
			return true
		}
	}
	return false
}
