package build

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bootcdev/diskctl/pkg/errors"
)

// Config is the structured customization document for a build. It mirrors
// the bootc-image-builder config schema and is serialized under a top-level
// "customizations" key.
type Config struct {
	// Users to create in the image, in declaration order.
	Users []User `json:"users,omitempty"`
	// Filesystems adds custom mount points with minimum sizes.
	Filesystems []Filesystem `json:"filesystems,omitempty"`
	// KernelAppend is appended to the kernel command line.
	KernelAppend string `json:"kernelAppend,omitempty"`
	// ModulesEnable and ModulesDisable toggle installer modules.
	// Only honored by the anaconda-iso pipeline.
	ModulesEnable  []string `json:"modulesEnable,omitempty"`
	ModulesDisable []string `json:"modulesDisable,omitempty"`
	// KickstartPath points at a kickstart script whose raw text is embedded
	// in the generated document.
	KickstartPath string `json:"kickstartPath,omitempty"`
}

// User describes one account customization.
type User struct {
	Name     string   `json:"name"`
	Password string   `json:"password,omitempty"`
	Key      string   `json:"key,omitempty"`
	Groups   []string `json:"groups,omitempty"`
}

// Filesystem describes one custom mount point.
type Filesystem struct {
	Mountpoint string `json:"mountpoint"`
	MinSize    string `json:"minsize"`
}

// Wire form of the generated document. Empty substructures are omitted, but
// the customizations key itself is always present.
type document struct {
	Customizations customizations `json:"customizations"`
}

type customizations struct {
	User       []userDoc       `json:"user,omitempty"`
	Filesystem []filesystemDoc `json:"filesystem,omitempty"`
	Kernel     *kernelDoc      `json:"kernel,omitempty"`
	Installer  *installerDoc   `json:"installer,omitempty"`
}

type userDoc struct {
	Name     string   `json:"name"`
	Password string   `json:"password,omitempty"`
	Key      string   `json:"key,omitempty"`
	Groups   []string `json:"groups,omitempty"`
}

type filesystemDoc struct {
	Mountpoint string `json:"mountpoint"`
	MinSize    string `json:"minsize"`
}

type kernelDoc struct {
	Append string `json:"append"`
}

type installerDoc struct {
	Modules   *modulesDoc   `json:"modules,omitempty"`
	Kickstart *kickstartDoc `json:"kickstart,omitempty"`
}

type modulesDoc struct {
	Enable  []string `json:"enable,omitempty"`
	Disable []string `json:"disable,omitempty"`
}

type kickstartDoc struct {
	Contents string `json:"contents"`
}

// MarshalDocument renders the builder config document as JSON. A kickstart
// file, when configured, is read here and its raw text embedded verbatim.
func (c *Config) MarshalDocument() ([]byte, error) {
	doc := document{}

	for _, u := range c.Users {
		doc.Customizations.User = append(doc.Customizations.User, userDoc{
			Name:     u.Name,
			Password: u.Password,
			Key:      u.Key,
			Groups:   u.Groups,
		})
	}
	for _, f := range c.Filesystems {
		doc.Customizations.Filesystem = append(doc.Customizations.Filesystem, filesystemDoc{
			Mountpoint: f.Mountpoint,
			MinSize:    f.MinSize,
		})
	}
	if c.KernelAppend != "" {
		doc.Customizations.Kernel = &kernelDoc{Append: c.KernelAppend}
	}

	installer := &installerDoc{}
	if len(c.ModulesEnable) > 0 || len(c.ModulesDisable) > 0 {
		installer.Modules = &modulesDoc{
			Enable:  c.ModulesEnable,
			Disable: c.ModulesDisable,
		}
	}
	if c.KickstartPath != "" {
		raw, err := os.ReadFile(c.KickstartPath)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read kickstart file")
		}
		installer.Kickstart = &kickstartDoc{Contents: string(raw)}
	}
	if installer.Modules != nil || installer.Kickstart != nil {
		doc.Customizations.Installer = installer
	}

	return json.MarshalIndent(doc, "", "  ")
}

// WriteTemp materializes the document to a temporary JSON file and returns
// its path. The caller owns the file.
func (c *Config) WriteTemp() (string, error) {
	data, err := c.MarshalDocument()
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp("", "diskctl-config-*.json")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temporary config file")
	}
	path := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", errors.Wrap(err, "failed to write temporary config file")
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", errors.Wrap(err, "failed to close temporary config file")
	}

	slog.Info("build_config_materialized", "path", path, "bytes", len(data))
	return path, nil
}

// ValidateConfigFile checks that an externally authored config file parses
// as the format its extension claims. A file that does not parse would make
// the builder container fail late, so the build is rejected up front.
func ValidateConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "failed to read config file")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var v map[string]any
		if err := toml.Unmarshal(data, &v); err != nil {
			return errors.Wrapf(err, "config file %s is not valid TOML", path)
		}
	case ".json":
		var v map[string]any
		if err := json.Unmarshal(data, &v); err != nil {
			return errors.Wrapf(err, "config file %s is not valid JSON", path)
		}
	default:
		return fmt.Errorf("config file %s must end in .toml or .json", path)
	}
	return nil
}
