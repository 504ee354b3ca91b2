package probe

import (
	"errors"
	"fmt"
)

// ErrPartial is returned by Resolver.Run when some programs failed. The
// programs that succeeded are already recorded in the catalog.
var ErrPartial = errors.New("some programs could not be probed")

// Outcome classifies how a pass ended.
type Outcome int

const (
	// Processed means at least one program was probed or attempted.
	Processed Outcome = iota
	// NothingEmpty means the catalog holds no records at all.
	NothingEmpty
	// NothingAllProbed means every program was probed by an earlier pass.
	NothingAllProbed
)

func (o Outcome) String() string {
	switch o {
	case Processed:
		return "processed"
	case NothingEmpty:
		return "empty"
	case NothingAllProbed:
		return "all-probed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Failure describes one program that could not be probed.
type Failure struct {
	Name string
	Path string
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s (%s): %v", f.Name, f.Path, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Summary reports the result of one pass.
type Summary struct {
	Outcome Outcome
	// Programs is the number of programs marked probed by this pass.
	Programs int
	// Found holds the distinct objects registered by this pass, sorted.
	Found    []string
	Failures []Failure
}

func (s *Summary) String() string {
	switch s.Outcome {
	case NothingEmpty:
		return "Nothing to probe, since there are no programs"
	case NothingAllProbed:
		return "Nothing to probe, all programs checked already"
	}
	var line string
	if len(s.Found) == 0 {
		line = fmt.Sprintf("No probes found in %d programs", s.Programs)
	} else {
		line = fmt.Sprintf("Found %d probes in %d programs: %v", len(s.Found), s.Programs, s.Found)
	}
	if len(s.Failures) > 0 {
		line += fmt.Sprintf(", %d programs failed", len(s.Failures))
	}
	return line
}

// Err joins all failures under ErrPartial, or returns nil when there were none.
func (s *Summary) Err() error {
	if len(s.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(s.Failures))
	for _, f := range s.Failures {
		errs = append(errs, f)
	}
	return fmt.Errorf("%w: %w", ErrPartial, errors.Join(errs...))
}
