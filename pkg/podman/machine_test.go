package podman

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// fakeInspector serves canned machine info without a podman binary.
type fakeInspector struct {
	info *MachineInfo
	err  error
}

func (f *fakeInspector) MachineInfo(_ context.Context, _ string) (*MachineInfo, error) {
	return f.info, f.err
}

func machineInfo(version, configDir string) *MachineInfo {
	info := &MachineInfo{}
	info.Version.Version = version
	info.Host.MachineConfigDir = configDir
	return info
}

func writeMachineConfig(t *testing.T, dir, machine string, cfg any) {
	t.Helper()
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, machine+".json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestChecker(engine MachineInspector, goos string) *Checker {
	c := NewChecker(engine, "Podman Machine")
	c.goos = goos
	return c
}

func TestCheckPrereqs_LinuxAlwaysPasses(t *testing.T) {
	// No machine abstraction on native Linux: the engine must not even be
	// queried, so a failing inspector proves the short-circuit.
	checker := newTestChecker(&fakeInspector{err: fmt.Errorf("should not be called")}, "linux")
	if message := checker.CheckPrereqs(context.Background()); message != "" {
		t.Errorf("expected no message on linux, got %q", message)
	}
}

func TestCheckPrereqs_VersionGate(t *testing.T) {
	tests := []struct {
		version string
		ok      bool
	}{
		{"4.9.0", false},
		{"4.9.4", false},
		{"5.0.0", true},
		{"5.0.0-dev", true},
		{"5.2.1", true},
		{"garbage", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run("version_"+tt.version, func(t *testing.T) {
			dir := t.TempDir()
			writeMachineConfig(t, dir, "podman-machine-default", map[string]any{
				"HostUser": map[string]any{"Rootful": true},
			})

			checker := newTestChecker(&fakeInspector{info: machineInfo(tt.version, dir)}, "darwin")
			message := checker.CheckPrereqs(context.Background())

			if tt.ok && message != "" {
				t.Errorf("version %q: expected pass, got %q", tt.version, message)
			}
			if !tt.ok && message != MessageMachineVersion {
				t.Errorf("version %q: expected %q, got %q", tt.version, MessageMachineVersion, message)
			}
		})
	}
}

func TestCheckPrereqs_MachineInfoFailureFailsClosed(t *testing.T) {
	checker := newTestChecker(&fakeInspector{err: fmt.Errorf("machine not running")}, "darwin")
	if message := checker.CheckPrereqs(context.Background()); message != MessageMachineVersion {
		t.Errorf("expected %q, got %q", MessageMachineVersion, message)
	}
}

func TestCheckPrereqs_Rootful(t *testing.T) {
	tests := []struct {
		name    string
		config  any
		message string
	}{
		{
			name:    "hostuser rootful",
			config:  map[string]any{"HostUser": map[string]any{"Rootful": true}},
			message: "",
		},
		{
			name:    "hostuser rootless",
			config:  map[string]any{"HostUser": map[string]any{"Rootful": false}},
			message: MessageMachineRootful,
		},
		{
			name:    "legacy rootful",
			config:  map[string]any{"Rootful": true},
			message: "",
		},
		{
			name:    "legacy rootless",
			config:  map[string]any{"Rootful": false},
			message: MessageMachineRootful,
		},
		{
			name:    "hostuser wins over legacy",
			config:  map[string]any{"HostUser": map[string]any{"Rootful": true}, "Rootful": false},
			message: "",
		},
		{
			name:    "neither field",
			config:  map[string]any{"Created": "2024-01-01"},
			message: MessageMachineRootful,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeMachineConfig(t, dir, "podman-machine-default", tt.config)

			checker := newTestChecker(&fakeInspector{info: machineInfo("5.0.0", dir)}, "darwin")
			if message := checker.CheckPrereqs(context.Background()); message != tt.message {
				t.Errorf("expected %q, got %q", tt.message, message)
			}
		})
	}
}

func TestCheckPrereqs_MissingMachineConfigFailsClosed(t *testing.T) {
	checker := newTestChecker(&fakeInspector{info: machineInfo("5.0.0", t.TempDir())}, "darwin")
	if message := checker.CheckPrereqs(context.Background()); message != MessageMachineRootful {
		t.Errorf("expected %q, got %q", MessageMachineRootful, message)
	}
}

func TestMachineName(t *testing.T) {
	tests := []struct {
		connection string
		want       string
	}{
		{"Podman Machine", "podman-machine-default"},
		{"Podman Machine dev", "podman-machine-dev"},
		{"my-custom-machine", "my-custom-machine"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.connection, func(t *testing.T) {
			if got := MachineName(tt.connection); got != tt.want {
				t.Errorf("MachineName(%q): got %q, want %q", tt.connection, got, tt.want)
			}
		})
	}
}
