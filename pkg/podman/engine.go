// Package podman adapts the podman CLI as the container runtime for disk
// image builds and validates the podman machine environment before a build
// is allowed to launch.
package podman

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	goruntime "runtime"
	"strings"

	"github.com/bootcdev/diskctl/pkg/build"
	"github.com/bootcdev/diskctl/pkg/errors"
)

// CONTAINERS_MACHINE_PROVIDER scopes machine subcommands to one
// virtualization provider.
const providerEnv = "CONTAINERS_MACHINE_PROVIDER"

// Container is one entry from the engine's container listing.
type Container struct {
	ID    string   `json:"Id"`
	Names []string `json:"Names"`
	Image string   `json:"Image"`
	State string   `json:"State"`
}

// MachineInfo is the subset of `podman machine info` this tool reads.
type MachineInfo struct {
	Host struct {
		CurrentMachine   string `json:"CurrentMachine"`
		DefaultMachine   string `json:"DefaultMachine"`
		MachineConfigDir string `json:"MachineConfigDir"`
		MachineState     string `json:"MachineState"`
		VMType           string `json:"VMType"`
	} `json:"Host"`
	Version struct {
		Version    string `json:"Version"`
		APIVersion string `json:"APIVersion"`
	} `json:"Version"`
}

// Engine runs podman as a subprocess. All operations shell out to the
// configured binary; there is no long-lived connection.
type Engine struct {
	binary string
}

// NewEngine creates an engine for the given podman binary path. An empty
// path resolves to "podman" on PATH.
func NewEngine(binary string) *Engine {
	if binary == "" {
		binary = "podman"
	}
	return &Engine{binary: binary}
}

// Exec runs a podman subcommand and returns its stdout. env entries are
// appended to the inherited process environment as KEY=VALUE pairs.
func (e *Engine) Exec(ctx context.Context, args []string, env map[string]string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.Env = os.Environ()
	for key, value := range env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("podman_exec", "binary", e.binary, "args", args)
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("podman %s failed: %s", strings.Join(args, " "), msg)
	}
	return stdout.Bytes(), nil
}

// ListContainers returns all containers known to the engine, running or not.
func (e *Engine) ListContainers(ctx context.Context) ([]Container, error) {
	out, err := e.Exec(ctx, []string{"ps", "--all", "--format", "json"}, nil)
	if err != nil {
		return nil, err
	}

	var containers []Container
	if err := json.Unmarshal(out, &containers); err != nil {
		return nil, errors.Wrap(err, "failed to parse container listing")
	}
	return containers, nil
}

// ContainerNames returns the names of all known containers, flattened.
func (e *Engine) ContainerNames(ctx context.Context) ([]string, error) {
	containers, err := e.ListContainers(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, c := range containers {
		names = append(names, c.Names...)
	}
	return names, nil
}

// Run launches a build invocation via `podman run` and blocks until the
// container exits. Output lines are forwarded to onOutput as they arrive.
// A nonzero exit is returned as an error carrying the last output lines.
func (e *Engine) Run(ctx context.Context, inv *build.Invocation, onOutput func(line string)) error {
	args := build.CommandLine(inv)
	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.Env = os.Environ()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "failed to open builder output pipe")
	}
	cmd.Stderr = cmd.Stdout

	slog.Info("builder_container_start", "name", inv.Name, "image", inv.Image)
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "failed to launch builder container")
	}

	// Keep a bounded tail so a failure message carries the actual builder
	// error rather than just an exit code.
	const tailLines = 20
	var tail []string

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if onOutput != nil {
			onOutput(line)
		}
		tail = append(tail, line)
		if len(tail) > tailLines {
			tail = tail[1:]
		}
	}

	if err := cmd.Wait(); err != nil {
		detail := strings.TrimSpace(strings.Join(tail, "\n"))
		if detail == "" {
			detail = err.Error()
		}
		slog.Error("builder_container_failed", "name", inv.Name, "error", err)
		return fmt.Errorf("builder container %s failed: %s", inv.Name, detail)
	}

	slog.Info("builder_container_done", "name", inv.Name)
	return nil
}

// MachineInfo queries `podman machine info` scoped to the given provider.
func (e *Engine) MachineInfo(ctx context.Context, provider string) (*MachineInfo, error) {
	env := map[string]string{}
	if provider != "" {
		env[providerEnv] = provider
	}

	out, err := e.Exec(ctx, []string{"machine", "info", "--format", "json"}, env)
	if err != nil {
		return nil, err
	}

	var info MachineInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, errors.Wrap(err, "failed to parse machine info")
	}
	return &info, nil
}

// Provider returns the default podman machine provider for the host OS.
func Provider() string {
	switch goruntime.GOOS {
	case "darwin":
		return "applehv"
	case "windows":
		return "wsl"
	default:
		return ""
	}
}
