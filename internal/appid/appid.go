// Package appid loads the application identity: binary name, env prefix,
// config directory name and telemetry namespace.
package appid

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	appidentityassets "github.com/padillasconcrete/siteapi/internal/assets/appidentity"
)

// EnvIdentityPath points at an identity file that replaces the embedded one.
const EnvIdentityPath = "SITEAPI_APP_IDENTITY_PATH"

// Identity describes the application for CLI help, config and telemetry.
type Identity struct {
	BinaryName  string `yaml:"binary_name"`
	Vendor      string `yaml:"vendor"`
	EnvPrefix   string `yaml:"env_prefix"`
	ConfigName  string `yaml:"config_name"`
	Description string `yaml:"description"`

	Metadata Metadata `yaml:"-"`
}

type Metadata struct {
	TelemetryNamespace string `yaml:"telemetry_namespace"`
	Repository         string `yaml:"repository"`
}

type document struct {
	App      Identity `yaml:"app"`
	Metadata Metadata `yaml:"metadata"`
}

// TelemetryNamespace is the metric and log namespace, falling back to the
// binary name.
func (i *Identity) TelemetryNamespace() string {
	if i == nil {
		return ""
	}
	if i.Metadata.TelemetryNamespace != "" {
		return i.Metadata.TelemetryNamespace
	}
	return i.BinaryName
}

var (
	mu     sync.Mutex
	cached *Identity
)

// Get returns the process identity. An explicit file named by
// SITEAPI_APP_IDENTITY_PATH wins over the embedded copy; a missing explicit
// file is an error rather than a silent fallback.
func Get(ctx context.Context) (*Identity, error) {
	mu.Lock()
	defer mu.Unlock()

	if cached != nil {
		return cached, nil
	}

	data := appidentityassets.YAML
	source := "embedded"
	if path := strings.TrimSpace(os.Getenv(EnvIdentityPath)); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read app identity %s: %w", path, err)
		}
		data = raw
		source = path
	}

	identity, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse app identity (%s): %w", source, err)
	}
	cached = identity
	return identity, nil
}

// Parse decodes and validates an identity document.
func Parse(data []byte) (*Identity, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	identity := doc.App
	identity.Metadata = doc.Metadata

	if identity.BinaryName == "" {
		return nil, fmt.Errorf("app.binary_name is required")
	}
	if identity.EnvPrefix == "" {
		identity.EnvPrefix = strings.ToUpper(strings.ReplaceAll(identity.BinaryName, "-", "_")) + "_"
	}
	if !strings.HasSuffix(identity.EnvPrefix, "_") {
		identity.EnvPrefix += "_"
	}
	if identity.ConfigName == "" {
		identity.ConfigName = identity.BinaryName
	}
	return &identity, nil
}

// Reset drops the cached identity. Tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	cached = nil
}
