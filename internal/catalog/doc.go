// Package catalog is the shared build catalog: one Record per object name,
// never deleted. A record describes a compiled program, a dependency found
// by probing, or both. Stores hand out copies; every change goes through
// Store.Update, which is atomic per record.
//
// The on-disk format is a YAML list of string attribute rows validated
// against an embedded JSON schema.
package catalog
