// Package xmir reads the parts of an XMIR document the probe pass cares
// about: the program name and its <metas> section. Probe references are the
// tails of every meta whose head is "probe".
//
// Documents are decoded as a token stream; the object tree under <objects>
// is skipped without being materialized.
package xmir
