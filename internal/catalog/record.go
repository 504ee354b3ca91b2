package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Attribute names used in persisted rows.
const (
	AttrID       = "id"
	AttrXMIR     = "xmir-path"
	AttrProbed   = "probed"
	AttrProbedAt = "probed-at"
	AttrVersion  = "version"
)

// DefaultVersion is assigned to discovered dependencies with no version.
const DefaultVersion = "*.*.*"

// ErrInvalidRecord is returned when a row cannot be turned into a Record.
var ErrInvalidRecord = errors.New("invalid catalog record")

// Record is one catalog entry.
type Record struct {
	Name       string
	Program    *Program
	Dependency *Dependency
	// Attrs keeps every attribute this package does not model, verbatim.
	Attrs map[string]string
}

// Program is the compiled-program view of a record.
type Program struct {
	XMIR string
	// Probed is the number of probes resolved from this program; nil until
	// the program has been probed.
	Probed *int
}

// Dependency is the discovered-dependency view of a record. An empty Version
// is the same as no version attribute: it is never persisted, and catalog
// files declaring `version: ""` fail validation.
type Dependency struct {
	Version  string
	ProbedAt string
}

// IsProbed reports whether the program carries the probed marker.
func (p *Program) IsProbed() bool {
	return p != nil && p.Probed != nil
}

// Unprobed selects programs that have not been probed yet.
func Unprobed(r Record) bool {
	return r.Program != nil && r.Program.XMIR != "" && !r.Program.IsProbed()
}

// All selects every record.
func All(Record) bool { return true }

// MarkProbed sets the probed marker of a program record.
func (r *Record) MarkProbed(count int) {
	if r.Program == nil {
		r.Program = &Program{}
	}
	n := count
	r.Program.Probed = &n
}

// Discover records that r was found through a probe in the program at
// probedAt. A non-empty version is kept; a missing or empty one is replaced
// by version.
func (r *Record) Discover(probedAt, version string) {
	if r.Dependency == nil {
		r.Dependency = &Dependency{}
	}
	if r.Dependency.Version == "" {
		r.Dependency.Version = version
	}
	r.Dependency.ProbedAt = probedAt
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	c := Record{Name: r.Name}
	if r.Program != nil {
		p := *r.Program
		if r.Program.Probed != nil {
			n := *r.Program.Probed
			p.Probed = &n
		}
		c.Program = &p
	}
	if r.Dependency != nil {
		d := *r.Dependency
		c.Dependency = &d
	}
	if r.Attrs != nil {
		c.Attrs = make(map[string]string, len(r.Attrs))
		for k, v := range r.Attrs {
			c.Attrs[k] = v
		}
	}
	return c
}

// Attributes flattens r into a persisted row.
func (r Record) Attributes() map[string]string {
	row := make(map[string]string, len(r.Attrs)+5)
	for k, v := range r.Attrs {
		row[k] = v
	}
	row[AttrID] = r.Name
	if r.Program != nil {
		if r.Program.XMIR != "" {
			row[AttrXMIR] = r.Program.XMIR
		}
		if r.Program.Probed != nil {
			row[AttrProbed] = strconv.Itoa(*r.Program.Probed)
		}
	}
	if r.Dependency != nil {
		if r.Dependency.Version != "" {
			row[AttrVersion] = r.Dependency.Version
		}
		if r.Dependency.ProbedAt != "" {
			row[AttrProbedAt] = r.Dependency.ProbedAt
		}
	}
	return row
}

// FromAttributes builds a Record from a persisted row.
func FromAttributes(row map[string]string) (Record, error) {
	name := row[AttrID]
	if name == "" {
		return Record{}, fmt.Errorf("%w: missing %q", ErrInvalidRecord, AttrID)
	}
	r := Record{Name: name}

	xmir, hasXMIR := row[AttrXMIR]
	probed, hasProbed := row[AttrProbed]
	if hasXMIR || hasProbed {
		r.Program = &Program{XMIR: xmir}
	}
	if hasProbed {
		n, err := strconv.Atoi(probed)
		if err != nil || n < 0 {
			return Record{}, fmt.Errorf("%w: %s: %q is not a probe count", ErrInvalidRecord, name, probed)
		}
		r.Program.Probed = &n
	}

	version, hasVersion := row[AttrVersion]
	probedAt, hasProbedAt := row[AttrProbedAt]
	if hasVersion || hasProbedAt {
		r.Dependency = &Dependency{Version: version, ProbedAt: probedAt}
	}

	for k, v := range row {
		switch k {
		case AttrID, AttrXMIR, AttrProbed, AttrProbedAt, AttrVersion:
			continue
		}
		if r.Attrs == nil {
			r.Attrs = make(map[string]string)
		}
		r.Attrs[k] = v
	}
	return r, nil
}

// CheckName rejects names no record can be stored under.
func CheckName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidRecord)
	}
	return nil
}

// ValidateVersion checks that v is a usable version constraint.
func ValidateVersion(v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("empty version constraint")
	}
	if _, err := semver.NewConstraint(v); err != nil {
		return fmt.Errorf("invalid version constraint %q: %w", v, err)
	}
	return nil
}

func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Name < records[j].Name
	})
}
