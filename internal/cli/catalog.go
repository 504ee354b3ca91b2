package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/objectionary/eoprobe/internal/catalog"
	"github.com/objectionary/eoprobe/internal/config"
	"github.com/objectionary/eoprobe/internal/xmir"
	"github.com/spf13/cobra"
)

var (
	catalogListJSON     bool
	catalogListUnprobed bool
	catalogAddXMIR      string
)

func init() {
	catalogListCmd.Flags().BoolVar(&catalogListJSON, "json", false, "Output in JSON format")
	catalogListCmd.Flags().BoolVar(&catalogListUnprobed, "unprobed", false, "Only show programs waiting to be probed")
	catalogAddCmd.Flags().StringVar(&catalogAddXMIR, "xmir", "", "Path to the program's XMIR document (required)")
	_ = catalogAddCmd.MarkFlagRequired("xmir")

	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogValidateCmd)
	catalogCmd.AddCommand(catalogAddCmd)
	rootCmd.AddCommand(catalogCmd)
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and edit the foreign-objects catalog",
	Long: `Inspect and edit the catalog the probe pass reads programs from and
registers discovered objects in. The catalog location and backend come from
the "catalog" and "store" settings.`,
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCatalogList(cmd.Context(), config.Current(), cmd.OutOrStdout(), catalogListJSON, catalogListUnprobed)
	},
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the catalog for structural problems",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCatalogValidate(cmd.Context(), config.Current(), cmd.OutOrStdout())
	},
}

var catalogAddCmd = &cobra.Command{
	Use:   "add [name] --xmir <path>",
	Short: "Register a compiled program",
	Long: `Register a compiled program so the next probe pass reads it. When the name
is omitted it is taken from the package meta and the program name of the
XMIR document.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		return runCatalogAdd(cmd.Context(), config.Current(), cmd.OutOrStdout(), name, catalogAddXMIR)
	},
}

// catalogEntry is the JSON and table view of a record.
type catalogEntry struct {
	Name     string `json:"name"`
	XMIR     string `json:"xmir,omitempty"`
	Probed   *int   `json:"probed,omitempty"`
	Version  string `json:"version,omitempty"`
	ProbedAt string `json:"probed_at,omitempty"`
}

func entryOf(r catalog.Record) catalogEntry {
	e := catalogEntry{Name: r.Name}
	if r.Program != nil {
		e.XMIR = r.Program.XMIR
		e.Probed = r.Program.Probed
	}
	if r.Dependency != nil {
		e.Version = r.Dependency.Version
		e.ProbedAt = r.Dependency.ProbedAt
	}
	return e
}

func runCatalogList(ctx context.Context, s config.Settings, out io.Writer, asJSON, unprobedOnly bool) error {
	store, err := openStore(s)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer store.Close()

	pred := catalog.All
	if unprobedOnly {
		pred = catalog.Unprobed
	}
	records, err := store.Select(ctx, pred)
	if err != nil {
		return fmt.Errorf("reading catalog: %w", err)
	}

	entries := make([]catalogEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, entryOf(r))
	}

	if asJSON {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "Catalog is empty.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tXMIR\tPROBED\tVERSION\tPROBED-AT")
	for _, e := range entries {
		probed := "-"
		if e.Probed != nil {
			probed = fmt.Sprint(*e.Probed)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Name, dash(e.XMIR), probed, dash(e.Version), dash(e.ProbedAt))
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func runCatalogValidate(ctx context.Context, s config.Settings, out io.Writer) error {
	if s.Store == config.StoreFile {
		result, err := catalog.ValidateFile(s.Catalog)
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(out, "%s does not exist yet.\n", s.Catalog)
			return nil
		}
		if err != nil {
			return err
		}
		if !result.Valid {
			for _, issue := range result.Issues {
				fmt.Fprintf(out, "  %s\n", issue)
			}
			return fmt.Errorf("%s: %d issues: %w", s.Catalog, len(result.Issues), catalog.ErrInvalidCatalog)
		}
	}

	store, err := openStore(s)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer store.Close()

	records, err := store.Select(ctx, catalog.All)
	if err != nil {
		return fmt.Errorf("reading catalog: %w", err)
	}
	bad := 0
	for _, r := range records {
		if r.Dependency == nil || r.Dependency.Version == "" {
			continue
		}
		if err := catalog.ValidateVersion(r.Dependency.Version); err != nil {
			fmt.Fprintf(out, "  %s: %v\n", r.Name, err)
			bad++
		}
	}
	if bad > 0 {
		return fmt.Errorf("%s: %d records with bad versions: %w", s.Catalog, bad, catalog.ErrInvalidCatalog)
	}

	fmt.Fprintf(out, "%s is valid (%d records).\n", s.Catalog, len(records))
	return nil
}

func runCatalogAdd(ctx context.Context, s config.Settings, out io.Writer, name, xmirPath string) error {
	if xmirPath == "" {
		return errors.New("an XMIR path is required")
	}
	if name == "" {
		doc, err := xmir.ParseFile(xmirPath)
		if err != nil {
			return fmt.Errorf("reading program name: %w", err)
		}
		name = doc.ObjectName()
		if name == "" {
			return fmt.Errorf("%s has no program name, pass one explicitly", xmirPath)
		}
	}

	store, err := openStore(s)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer store.Close()

	rec, err := store.Update(ctx, name, func(r *catalog.Record) error {
		if r.Program == nil {
			r.Program = &catalog.Program{}
		}
		r.Program.XMIR = xmirPath
		return nil
	})
	if err != nil {
		return fmt.Errorf("adding %s: %w", name, err)
	}
	if err := store.Save(); err != nil {
		return fmt.Errorf("saving catalog: %w", err)
	}

	if rec.Program.IsProbed() {
		fmt.Fprintf(out, "Updated %s (%s), already probed.\n", name, xmirPath)
		return nil
	}
	fmt.Fprintf(out, "Added %s (%s).\n", name, xmirPath)
	return nil
}
