// Package branding provides compile-time identity values for the CLI.
//
// The values live in branding.yaml next to this file and are baked into the
// binary with //go:embed. Hard defaults below apply when a key is missing.
package branding

import (
	_ "embed"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

//go:embed branding.yaml
var rawBranding []byte

var (
	once     sync.Once
	defaults brand
)

type brand struct {
	CLIName     string `yaml:"cli_name"`
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
	HomeDir     string `yaml:"home_dir"`
	EnvPrefix   string `yaml:"env_prefix"`
	GoModule    string `yaml:"go_module"`
	TagsURL     string `yaml:"tags_url"`
	ObjectsURL  string `yaml:"objects_url"`
}

func load() {
	once.Do(func() {
		defaults = brand{
			CLIName:     "eoprobe",
			DisplayName: "EO Probe",
			Description: "Discovers foreign EO objects referenced by probe metas",
			HomeDir:     ".eoprobe",
			EnvPrefix:   "EOPROBE",
			GoModule:    "github.com/objectionary/eoprobe",
			TagsURL:     "https://home.objectionary.com/tags.txt",
			ObjectsURL:  "https://raw.githubusercontent.com/objectionary/home",
		}
		_ = yaml.Unmarshal(rawBranding, &defaults)
	})
}

// CLIName returns the root command name (e.g., "eoprobe").
func CLIName() string { load(); return defaults.CLIName }

// DisplayName returns the human-readable product name.
func DisplayName() string { load(); return defaults.DisplayName }

// Description returns the short product description.
func Description() string { load(); return defaults.Description }

// HomeDir returns the dot-directory name under $HOME (e.g., ".eoprobe").
func HomeDir() string { load(); return defaults.HomeDir }

// EnvPrefix returns the environment variable prefix (e.g., "EOPROBE").
func EnvPrefix() string { load(); return defaults.EnvPrefix }

// GoModule returns the Go module path.
func GoModule() string { load(); return defaults.GoModule }

// TagsURL returns the location of the Objectionary tags list.
func TagsURL() string { load(); return defaults.TagsURL }

// ObjectsURL returns the base URL objects are fetched from. A commit hash and
// the object path are appended to it.
func ObjectsURL() string { load(); return defaults.ObjectsURL }

// EnvVar returns a fully qualified env var name, e.g., EnvVar("TAG") → "EOPROBE_TAG".
func EnvVar(suffix string) string {
	load()
	return defaults.EnvPrefix + "_" + strings.ToUpper(suffix)
}
