// Package cli defines the Cobra command tree for the eoprobe CLI. Each file
// registers one top-level command (probe, catalog, config, version) with the
// root command. Commands resolve settings, build the store and Objectionary
// stack, and leave the pass itself to the probe package.
package cli
