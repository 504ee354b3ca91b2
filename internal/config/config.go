package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/objectionary/eoprobe/internal/branding"
	"github.com/spf13/viper"
)

const (
	fileName = "config"
	fileType = "yaml"
)

// Keys understood by the probe pass.
const (
	KeyTag            = "tag"
	KeyTagsURL        = "tags_url"
	KeyObjectsURL     = "objects_url"
	KeyCatalog        = "catalog"
	KeyStore          = "store"
	KeyParallel       = "parallel"
	KeyCacheDir       = "cache_dir"
	KeyDiskCache      = "disk_cache"
	KeyDefaultVersion = "default_version"
	KeyDebug          = "debug"
	KeyTracing        = "tracing.enabled"
	KeyTraceExporter  = "tracing.exporter"
	KeyOTLPEndpoint   = "tracing.otlp_endpoint"
)

// Keys lists every key in the order config commands print them.
var Keys = []string{
	KeyTag, KeyTagsURL, KeyObjectsURL, KeyCatalog, KeyStore, KeyParallel,
	KeyCacheDir, KeyDiskCache, KeyDefaultVersion, KeyDebug,
	KeyTracing, KeyTraceExporter, KeyOTLPEndpoint,
}

// IsKnown reports whether key is one of Keys.
func IsKnown(key string) bool {
	for _, k := range Keys {
		if k == key {
			return true
		}
	}
	return false
}

// Store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Settings is a typed snapshot of the configuration.
type Settings struct {
	Tag            string
	TagsURL        string
	ObjectsURL     string
	Catalog        string
	Store          string
	Parallel       int
	CacheDir       string
	DiskCache      bool
	DefaultVersion string
	Debug          bool
	Tracing        bool
	TraceExporter  string
	OTLPEndpoint   string
}

// Dir returns the path to the config directory (~/.eoprobe/).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return filepath.Join(home, branding.HomeDir())
}

// FilePath returns the full path to the config file (~/.eoprobe/config.yaml).
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// EnsureDir creates the config directory if it does not exist.
func EnsureDir() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

// SetDefaults registers default values for every known key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyTag, "master")
	v.SetDefault(KeyTagsURL, branding.TagsURL())
	v.SetDefault(KeyObjectsURL, branding.ObjectsURL())
	v.SetDefault(KeyCatalog, filepath.Join("target", "eo-foreign.yaml"))
	v.SetDefault(KeyStore, StoreFile)
	v.SetDefault(KeyParallel, runtime.NumCPU())
	v.SetDefault(KeyCacheDir, filepath.Join(Dir(), "objects"))
	v.SetDefault(KeyDiskCache, true)
	v.SetDefault(KeyDefaultVersion, "*.*.*")
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyTracing, false)
	v.SetDefault(KeyTraceExporter, "stdout")
	v.SetDefault(KeyOTLPEndpoint, "localhost:4317")
}

// Load initializes Viper to read from the config file and environment.
func Load() {
	viper.SetConfigFile(FilePath())
	viper.SetConfigType(fileType)
	viper.SetEnvPrefix(branding.EnvPrefix())
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	SetDefaults(viper.GetViper())

	// Ignore error if config file doesn't exist yet.
	_ = viper.ReadInConfig()
}

// Current returns the settings held by the global Viper instance.
func Current() Settings {
	return FromViper(viper.GetViper())
}

// FromViper reads Settings out of v.
func FromViper(v *viper.Viper) Settings {
	return Settings{
		Tag:            v.GetString(KeyTag),
		TagsURL:        v.GetString(KeyTagsURL),
		ObjectsURL:     v.GetString(KeyObjectsURL),
		Catalog:        v.GetString(KeyCatalog),
		Store:          v.GetString(KeyStore),
		Parallel:       v.GetInt(KeyParallel),
		CacheDir:       v.GetString(KeyCacheDir),
		DiskCache:      v.GetBool(KeyDiskCache),
		DefaultVersion: v.GetString(KeyDefaultVersion),
		Debug:          v.GetBool(KeyDebug),
		Tracing:        v.GetBool(KeyTracing),
		TraceExporter:  v.GetString(KeyTraceExporter),
		OTLPEndpoint:   v.GetString(KeyOTLPEndpoint),
	}
}

// Validate rejects settings the probe pass cannot run with.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Tag) == "" {
		return fmt.Errorf("%s must not be empty", KeyTag)
	}
	if s.Catalog == "" {
		return fmt.Errorf("%s must not be empty", KeyCatalog)
	}
	switch s.Store {
	case StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("unknown %s %q (want %q or %q)", KeyStore, s.Store, StoreFile, StoreSQLite)
	}
	if s.Parallel < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", KeyParallel, s.Parallel)
	}
	return nil
}

// Get returns a config value by key. Returns empty string if not set.
func Get(key string) string {
	return viper.GetString(key)
}

// Set writes a config key-value pair and saves the config file.
func Set(key, value string) error {
	if err := EnsureDir(); err != nil {
		return err
	}

	viper.Set(key, value)

	configFile := FilePath()

	// Create the file if it doesn't exist.
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("creating config file %s: %w", configFile, err)
		}
		f.Close()
	}

	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
