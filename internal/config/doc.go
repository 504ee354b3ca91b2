// Package config manages user-level settings stored at ~/.eoprobe/config.yaml.
// Values can be overridden with EOPROBE_* environment variables and, for the
// probe command, with flags. Settings collects the keys the probe pass reads.
package config
