package tracing

import "go.opentelemetry.io/otel/attribute"

// Span names.
const (
	SpanRun     = "probe.run"
	SpanProgram = "probe.program"
	SpanLookup  = "objectionary.get"
)

// Attribute keys.
const (
	AttrRunID    = attribute.Key("probe.run_id")
	AttrHash     = attribute.Key("probe.hash")
	AttrProgram  = attribute.Key("probe.program")
	AttrXMIR     = attribute.Key("probe.xmir")
	AttrProbes   = attribute.Key("probe.count")
	AttrFound    = attribute.Key("probe.found")
	AttrObject   = attribute.Key("objectionary.object")
	AttrPrograms = attribute.Key("probe.programs")
)
