package probe

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/objectionary/eoprobe/internal/catalog"
	"github.com/objectionary/eoprobe/internal/ctxlog"
	"github.com/objectionary/eoprobe/internal/objectionary"
	"github.com/objectionary/eoprobe/internal/tracing"
	"github.com/objectionary/eoprobe/internal/xmir"
)

// Resolver runs probe passes against a catalog.
type Resolver struct {
	Store     catalog.Store
	Extractor xmir.Extractor

	// Hash pins the Objectionary tag. It is resolved once per pass and only
	// when there is something to probe.
	Hash objectionary.CommitHash

	// Open returns the Objectionary to use for the resolved hash.
	Open func(hash string) objectionary.Objectionary

	// Parallelism bounds how many programs are probed at once. Zero means
	// runtime.NumCPU().
	Parallelism int

	// DefaultVersion is given to discovered objects that have no version.
	// Empty means catalog.DefaultVersion.
	DefaultVersion string

	// Tracer records spans for the pass. Nil disables tracing.
	Tracer trace.Tracer
}

// Run performs one pass. The returned summary is valid even when the error
// wraps ErrPartial; any other error means the pass did not probe anything.
func (r *Resolver) Run(ctx context.Context) (*Summary, error) {
	if r.Store == nil || r.Extractor == nil || r.Hash == nil || r.Open == nil {
		return nil, errors.New("resolver is not fully configured")
	}

	runID := uuid.NewString()
	log := ctxlog.FromContext(ctx).With("run", runID)
	ctx = ctxlog.WithLogger(ctx, log)

	ctx, span := r.tracer().Start(ctx, tracing.SpanRun,
		trace.WithAttributes(tracing.AttrRunID.String(runID)))
	defer span.End()

	programs, err := r.Store.Select(ctx, catalog.Unprobed)
	if err != nil {
		return nil, failSpan(span, fmt.Errorf("selecting programs: %w", err))
	}
	span.SetAttributes(tracing.AttrPrograms.Int(len(programs)))

	if len(programs) == 0 {
		total, err := r.Store.Len(ctx)
		if err != nil {
			return nil, failSpan(span, fmt.Errorf("counting records: %w", err))
		}
		if total == 0 {
			log.Warn("catalog has no programs")
			return &Summary{Outcome: NothingEmpty}, nil
		}
		return &Summary{Outcome: NothingAllProbed}, nil
	}

	hash, err := r.Hash.Resolve(ctx)
	if err != nil {
		return nil, failSpan(span, fmt.Errorf("resolving objectionary hash: %w", err))
	}
	span.SetAttributes(tracing.AttrHash.String(hash))
	log.Debug("probing programs", "programs", len(programs), "hash", hash)

	oy := r.Open(hash)

	var (
		mu       sync.Mutex
		found    = make(map[string]struct{})
		failures []Failure
		probed   int
	)

	var g errgroup.Group
	g.SetLimit(r.parallelism())
	for _, p := range programs {
		g.Go(func() error {
			names, err := r.probe(ctx, oy, p)

			mu.Lock()
			defer mu.Unlock()
			for _, n := range names {
				found[n] = struct{}{}
			}
			if err != nil {
				log.Error("probing program failed", "program", p.Name, "error", err)
				failures = append(failures, Failure{Name: p.Name, Path: p.Program.XMIR, Err: err})
				return nil
			}
			probed++
			return nil
		})
	}
	// Workers never return errors; failures are collected above.
	_ = g.Wait()

	s := &Summary{
		Outcome:  Processed,
		Programs: probed,
		Found:    make([]string, 0, len(found)),
		Failures: failures,
	}
	for n := range found {
		s.Found = append(s.Found, n)
	}
	sort.Strings(s.Found)
	sort.Slice(s.Failures, func(i, j int) bool {
		return s.Failures[i].Name < s.Failures[j].Name
	})
	span.SetAttributes(tracing.AttrFound.Int(len(s.Found)))

	if err := s.Err(); err != nil {
		return s, failSpan(span, err)
	}
	return s, nil
}

// probe handles one program. It returns the objects registered so far even
// when it fails; the program is marked probed only on success.
func (r *Resolver) probe(ctx context.Context, oy objectionary.Objectionary, p catalog.Record) ([]string, error) {
	path := p.Program.XMIR
	ctx, span := r.tracer().Start(ctx, tracing.SpanProgram, trace.WithAttributes(
		tracing.AttrProgram.String(p.Name),
		tracing.AttrXMIR.String(path),
	))
	defer span.End()
	log := ctxlog.FromContext(ctx)

	probes, err := r.Extractor.Probes(path)
	if err != nil {
		return nil, failSpan(span, fmt.Errorf("extracting probes: %w", err))
	}
	span.SetAttributes(tracing.AttrProbes.Int(len(probes)))

	var registered []string
	for _, name := range probes {
		if err := ctx.Err(); err != nil {
			return registered, failSpan(span, err)
		}

		ok, err := r.lookup(ctx, oy, name)
		if err != nil {
			return registered, failSpan(span, fmt.Errorf("looking up %s: %w", name, err))
		}
		if !ok {
			log.Debug("probe is not in objectionary", "program", p.Name, "object", name)
			continue
		}

		_, err = r.Store.Update(ctx, name, func(rec *catalog.Record) error {
			rec.Discover(path, r.defaultVersion())
			return nil
		})
		if err != nil {
			return registered, failSpan(span, fmt.Errorf("registering %s: %w", name, err))
		}
		registered = append(registered, name)
	}

	_, err = r.Store.Update(ctx, p.Name, func(rec *catalog.Record) error {
		rec.MarkProbed(len(registered))
		return nil
	})
	if err != nil {
		return registered, failSpan(span, fmt.Errorf("marking %s probed: %w", p.Name, err))
	}

	span.SetAttributes(tracing.AttrFound.Int(len(registered)))
	log.Debug("program probed", "program", p.Name, "probes", len(probes), "found", registered)
	return registered, nil
}

func (r *Resolver) lookup(ctx context.Context, oy objectionary.Objectionary, name string) (bool, error) {
	ctx, span := r.tracer().Start(ctx, tracing.SpanLookup,
		trace.WithAttributes(tracing.AttrObject.String(name)))
	defer span.End()

	_, found, err := oy.Get(ctx, name)
	if err != nil {
		return false, failSpan(span, err)
	}
	span.SetAttributes(tracing.AttrFound.Bool(found))
	return found, nil
}

func (r *Resolver) tracer() trace.Tracer {
	if r.Tracer == nil {
		return noop.NewTracerProvider().Tracer("")
	}
	return r.Tracer
}

func (r *Resolver) parallelism() int {
	if r.Parallelism > 0 {
		return r.Parallelism
	}
	return runtime.NumCPU()
}

func (r *Resolver) defaultVersion() string {
	if r.DefaultVersion != "" {
		return r.DefaultVersion
	}
	return catalog.DefaultVersion
}

func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
