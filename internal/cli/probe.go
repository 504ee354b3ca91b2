package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/objectionary/eoprobe/internal/branding"
	"github.com/objectionary/eoprobe/internal/catalog"
	"github.com/objectionary/eoprobe/internal/config"
	"github.com/objectionary/eoprobe/internal/ctxlog"
	"github.com/objectionary/eoprobe/internal/objectionary"
	"github.com/objectionary/eoprobe/internal/probe"
	"github.com/objectionary/eoprobe/internal/tracing"
	"github.com/objectionary/eoprobe/internal/xmir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const httpTimeout = 30 * time.Second

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Register foreign objects referenced by probe metas",
	Long: `Read every program in the catalog that has not been probed yet, look up the
objects named by its probe metas in the Objectionary, and add the ones that
exist to the catalog as dependencies. Each program is marked with the number
of objects found, so a program is probed once.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := config.Current()
		if err := s.Validate(); err != nil {
			return fmt.Errorf("invalid settings: %w", err)
		}
		return runProbe(cmd.Context(), s, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	f := probeCmd.Flags()
	f.String("tag", "", "Objectionary tag or commit hash to look objects up at")
	f.String("catalog", "", "Catalog file (YAML, or a database with --store=sqlite)")
	f.String("store", "", "Catalog backend: file or sqlite")
	f.Int("parallel", 0, "Programs probed at once")
	f.String("cache-dir", "", "Directory for downloaded objects")
	f.Bool("disk-cache", true, "Keep downloaded objects in --cache-dir")
	f.String("default-version", "", "Version given to discovered objects")
	f.Bool("trace", false, "Record OpenTelemetry spans")
	f.String("trace-exporter", "", "Span exporter: stdout, otlp or none")

	for key, flag := range map[string]string{
		config.KeyTag:            "tag",
		config.KeyCatalog:        "catalog",
		config.KeyStore:          "store",
		config.KeyParallel:       "parallel",
		config.KeyCacheDir:       "cache-dir",
		config.KeyDiskCache:      "disk-cache",
		config.KeyDefaultVersion: "default-version",
		config.KeyTracing:        "trace",
		config.KeyTraceExporter:  "trace-exporter",
	} {
		_ = viper.BindPFlag(key, f.Lookup(flag))
	}
	rootCmd.AddCommand(probeCmd)
}

// runProbe runs one pass with s and prints its summary to out. Failed
// programs are listed on errOut and turn into a non-nil error.
func runProbe(ctx context.Context, s config.Settings, out, errOut io.Writer) error {
	if err := catalog.ValidateVersion(s.DefaultVersion); err != nil {
		return fmt.Errorf("invalid %s: %w", config.KeyDefaultVersion, err)
	}

	tp, err := tracing.NewProvider(tracing.Config{
		Enabled:      s.Tracing,
		Exporter:     s.TraceExporter,
		Writer:       errOut,
		OTLPEndpoint: s.OTLPEndpoint,
		ServiceName:  branding.CLIName(),
	})
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			ctxlog.FromContext(ctx).Warn("flushing traces failed", "error", err)
		}
	}()

	store, err := openStore(s)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer store.Close()

	client := &http.Client{Timeout: httpTimeout}
	resolver := &probe.Resolver{
		Store:          store,
		Extractor:      xmir.FileExtractor{},
		Hash:           objectionary.ForTag(s.Tag, s.TagsURL, client),
		Open:           objectionaryFor(s, client),
		Parallelism:    s.Parallel,
		DefaultVersion: s.DefaultVersion,
		Tracer:         tp.Tracer(),
	}

	summary, runErr := resolver.Run(ctx)
	if summary == nil {
		return fmt.Errorf("probing %s: %w", s.Catalog, runErr)
	}

	// Programs that succeeded are kept even when others failed.
	if summary.Outcome == probe.Processed {
		if err := store.Save(); err != nil {
			return fmt.Errorf("saving catalog: %w", err)
		}
	}

	fmt.Fprintln(out, summary)
	for _, f := range summary.Failures {
		fmt.Fprintf(errOut, "  %s\n", f)
	}
	if runErr != nil {
		return fmt.Errorf("%d programs failed, run again to retry them: %w", len(summary.Failures), probe.ErrPartial)
	}
	return nil
}

// objectionaryFor builds the lookup stack for a pinned hash: an in-memory
// cache over an optional disk copy over the remote repository.
func objectionaryFor(s config.Settings, client *http.Client) func(string) objectionary.Objectionary {
	return func(hash string) objectionary.Objectionary {
		var oy objectionary.Objectionary = objectionary.NewRemote(s.ObjectsURL, hash, objectionary.WithHTTPClient(client))
		if s.DiskCache && s.CacheDir != "" {
			oy = objectionary.NewDisk(oy, s.CacheDir, hash)
		}
		return objectionary.NewCached(oy, hash)
	}
}
