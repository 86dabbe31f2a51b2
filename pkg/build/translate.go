package build

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Fixed mount points inside the builder container.
const (
	outputMount  = "/output/"
	storageMount = "/var/lib/containers/storage"
	awsCredMount = "/root/.aws"
)

// containerLabel marks containers launched by this tool.
const containerLabel = "bootc.image.builder=true"

// Invocation is the fully resolved container run request for one build. It
// is a value object: the translator produces it and the engine consumes it.
type Invocation struct {
	// Name is the container name, already resolved to be unused.
	Name string
	// Image is the builder image reference.
	Image string
	// Args is the argument sequence passed to the builder entrypoint,
	// starting with the source image reference.
	Args []string
	// Binds lists the volume bind mounts in the order they must be applied:
	// output folder first, container storage second, then the optional
	// config and credential mounts.
	Binds []string
	// Env holds environment overrides for the container.
	Env map[string]string
}

// Options carries the caller-side configuration the translator needs.
type Options struct {
	// BuilderPreference selects a builder preset, "centos" or "rhel".
	// Unknown or empty values fall back to the centos preset.
	BuilderPreference string
	// AWSCredentialsDir is the host directory mounted for AMI uploads.
	AWSCredentialsDir string
}

// resolveBuilderImage picks the builder image: an explicit override wins,
// then the configured preference, then the centos default.
func resolveBuilderImage(override, preference string) string {
	if override != "" {
		return override
	}
	if strings.EqualFold(preference, "rhel") {
		return BuilderRHEL
	}
	return BuilderCentos
}

// Translate converts a build specification into the container invocation
// that runs bootc-image-builder. When the specification carries inline
// customizations they are written to a temporary JSON file before the
// invocation is returned, so the config bind always points at an existing
// file.
func Translate(name string, spec *Specification, opts Options) (*Invocation, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	inv := &Invocation{
		Name:  name,
		Image: resolveBuilderImage(spec.BuilderImage, opts.BuilderPreference),
		Binds: []string{
			spec.Folder + ":" + outputMount,
			storageMount + ":" + storageMount,
		},
	}

	// Inline customizations take precedence over an external config file.
	switch {
	case spec.Customizations != nil:
		path, err := spec.Customizations.WriteTemp()
		if err != nil {
			return nil, err
		}
		inv.Binds = append(inv.Binds, path+":/config.json:ro")
	case spec.ConfigPath != "":
		if err := ValidateConfigFile(spec.ConfigPath); err != nil {
			return nil, err
		}
		target := "/config.toml"
		if strings.EqualFold(filepath.Ext(spec.ConfigPath), ".json") {
			target = "/config.json"
		}
		inv.Binds = append(inv.Binds, spec.ConfigPath+":"+target+":ro")
	}

	if spec.AWS.Complete() && opts.AWSCredentialsDir != "" {
		inv.Binds = append(inv.Binds, opts.AWSCredentialsDir+":"+awsCredMount+":ro")
	}

	args := []string{spec.ImageRef(), "--output", outputMount, "--local", "--progress", "verbose"}
	for _, format := range spec.Formats {
		args = append(args, "--type", format)
	}
	if spec.Arch != "" && needsTargetArch(spec.Formats) {
		args = append(args, "--target-arch", spec.Arch)
	}
	if allowedFilesystems[spec.Filesystem] {
		args = append(args, "--rootfs", spec.Filesystem)
	} else if spec.Filesystem != "" {
		slog.Warn("rootfs_ignored", "filesystem", spec.Filesystem)
	}
	if spec.AWS.Complete() {
		args = append(args,
			"--aws-bucket", spec.AWS.Bucket,
			"--aws-region", spec.AWS.Region,
			"--aws-ami-name", spec.AWS.AMIName,
		)
	}
	if spec.Chown != "" {
		args = append(args, "--chown", spec.Chown)
	}
	inv.Args = args

	slog.Info("build_translated",
		"name", inv.Name,
		"builder", inv.Image,
		"binds", len(inv.Binds),
		"formats", spec.Formats,
	)

	return inv, nil
}

// CommandLine flattens an invocation into the podman CLI arguments used when
// no engine API is available. The returned slice starts at "run"; the binary
// path is the engine's concern.
func CommandLine(inv *Invocation) []string {
	args := []string{
		"run", "--rm",
		"--name", inv.Name,
		"--tty", "--privileged",
		"--security-opt", "label=type:unconfined_t",
	}
	for _, bind := range inv.Binds {
		args = append(args, "-v", bind)
	}
	for key, value := range inv.Env {
		args = append(args, "--env", key+"="+value)
	}
	args = append(args, "--label", containerLabel)
	args = append(args, inv.Image)
	args = append(args, inv.Args...)
	return args
}

// UnusedName returns base when no existing container uses it, otherwise the
// first base-N (N >= 2) that is free.
func UnusedName(base string, existing []string) string {
	used := make(map[string]bool, len(existing))
	for _, name := range existing {
		used[strings.TrimPrefix(name, "/")] = true
	}
	if !used[base] {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if !used[candidate] {
			return candidate
		}
	}
}

// artifactPath maps an output format to the artifact path the builder
// writes under the output folder. Unknown formats have no known artifact
// and never match an existence probe.
func artifactPath(format string) string {
	ext, ok := map[string]string{
		"qcow2":        "qcow2",
		"vmdk":         "vmdk",
		"raw":          "raw",
		"ami":          "raw",
		"anaconda-iso": "iso",
		"iso":          "iso",
		"vhd":          "vhd",
		"gce":          "tar.gz",
	}[format]
	if !ok {
		return ""
	}
	return filepath.Join(format, "disk."+ext)
}

// Exists reports whether a prior build already left an artifact for any of
// the requested formats under folder. Used to warn before overwriting, never
// to block a build.
func Exists(folder string, formats []string) bool {
	for _, format := range formats {
		rel := artifactPath(format)
		if rel == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(folder, rel)); err == nil {
			return true
		}
	}
	return false
}
