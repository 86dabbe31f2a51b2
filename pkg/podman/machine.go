package podman

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"github.com/Masterminds/semver"
)

// Fixed messages surfaced to the user when a precondition fails. Tests and
// callers match on these exactly.
const (
	MessageMachineVersion = "Building disk images requires Podman Machine v5.0 or higher"
	MessageMachineRootful = "The podman machine needs to run in rootful mode to build disk images"
)

// minimumMachineVersion gates the machine version check.
var minimumMachineVersion = semver.MustParse("5.0.0")

// MachineInspector is the slice of the engine the checker needs.
type MachineInspector interface {
	MachineInfo(ctx context.Context, provider string) (*MachineInfo, error)
}

// Checker validates that the podman machine environment can build disk
// images. On native Linux there is no machine and every check passes.
type Checker struct {
	engine MachineInspector
	// connection is the engine connection display name, used to resolve
	// the machine config file.
	connection string
	// goos and provider are overridable for tests.
	goos     string
	provider string
}

// NewChecker creates a checker for the given engine connection.
func NewChecker(engine MachineInspector, connection string) *Checker {
	return &Checker{
		engine:     engine,
		connection: connection,
		goos:       goruntime.GOOS,
		provider:   Provider(),
	}
}

// CheckPrereqs reports why a build cannot launch, or the empty string when
// all preconditions hold. It never returns an error: machine query and
// config parsing failures fail closed into one of the fixed messages.
func (c *Checker) CheckPrereqs(ctx context.Context) string {
	if c.goos == "linux" {
		return ""
	}

	info, err := c.engine.MachineInfo(ctx, c.provider)
	if err != nil {
		slog.Error("machine_info_failed", "error", err)
		return MessageMachineVersion
	}

	if !machineVersionOK(info.Version.Version) {
		return MessageMachineVersion
	}

	if !c.machineRootful(info) {
		return MessageMachineRootful
	}
	return ""
}

// machineVersionOK parses the reported version and compares its release
// core against the 5.0.0 minimum, so prerelease builds of 5.0 pass while
// anything unparseable fails closed.
func machineVersionOK(version string) bool {
	parsed, err := semver.NewVersion(version)
	if err != nil {
		slog.Error("machine_version_unparseable", "version", version, "error", err)
		return false
	}

	core, err := parsed.SetPrerelease("")
	if err != nil {
		slog.Error("machine_version_unparseable", "version", version, "error", err)
		return false
	}
	return core.Compare(minimumMachineVersion) >= 0
}

// machineConfig is the per-machine configuration file, which changed shape
// in podman 5: the rootful flag moved under HostUser.
type machineConfig struct {
	HostUser *struct {
		Rootful *bool `json:"Rootful"`
	} `json:"HostUser"`
	Rootful *bool `json:"Rootful"`
}

// machineRootful resolves the machine's rootful flag from its config file.
// Any failure along the way logs once and resolves to false.
func (c *Checker) machineRootful(info *MachineInfo) bool {
	machine := MachineName(c.connection)
	path := filepath.Join(info.Host.MachineConfigDir, machine+".json")

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("machine_config_unreadable", "path", path, "error", err)
		return false
	}

	var cfg machineConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		slog.Error("machine_config_unparseable", "path", path, "error", err)
		return false
	}

	if cfg.HostUser != nil && cfg.HostUser.Rootful != nil {
		return *cfg.HostUser.Rootful
	}
	if cfg.Rootful != nil {
		slog.Warn("machine_config_deprecated_rootful", "path", path)
		return *cfg.Rootful
	}

	slog.Error("machine_config_missing_rootful", "path", path)
	return false
}

// MachineName maps an engine connection display name to the machine
// identifier podman uses for its config file. "Podman Machine" and its
// suffixed variants become podman-machine-<suffix>; other names are machine
// identifiers already.
func MachineName(connection string) string {
	const display = "Podman Machine"
	if !strings.HasPrefix(connection, display) {
		return connection
	}

	suffix := strings.TrimSpace(strings.TrimPrefix(connection, display))
	if suffix == "" {
		suffix = "default"
	}
	return "podman-machine-" + suffix
}
