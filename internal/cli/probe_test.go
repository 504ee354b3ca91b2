package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/objectionary/eoprobe/internal/catalog"
	"github.com/objectionary/eoprobe/internal/config"
	"github.com/objectionary/eoprobe/internal/objectionary"
	"github.com/objectionary/eoprobe/internal/probe"
)

const testSHA = "5f82cc1e0f3ee3de9b3f6d9a2a6f7c0e4b1d2a3c"

// fakeHome serves a tags list and a handful of objects, and counts requests.
type fakeHome struct {
	*httptest.Server
	tags    atomic.Int32
	objects atomic.Int32
}

func newFakeHome(t *testing.T, objects map[string]string) *fakeHome {
	t.Helper()
	h := &fakeHome{}
	mux := http.NewServeMux()
	mux.HandleFunc("/tags.txt", func(w http.ResponseWriter, r *http.Request) {
		h.tags.Add(1)
		fmt.Fprintf(w, "0000000000000000000000000000000000000000 0.27.0\n%s master\n", testSHA)
	})
	mux.HandleFunc("/"+testSHA+"/objects/", func(w http.ResponseWriter, r *http.Request) {
		h.objects.Add(1)
		path := strings.TrimPrefix(r.URL.Path, "/"+testSHA+"/objects/")
		content, ok := objects[path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, content)
	})
	h.Server = httptest.NewServer(mux)
	t.Cleanup(h.Close)
	return h
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func programXMIR(name string, probes ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<program name=%q><metas>\n", name)
	b.WriteString("<meta><head>package</head><tail>org.example</tail></meta>\n")
	for _, p := range probes {
		fmt.Fprintf(&b, "<meta><head>probe</head><tail>%s</tail></meta>\n", p)
	}
	b.WriteString("</metas></program>\n")
	return b.String()
}

func testSettings(home *fakeHome, dir string) config.Settings {
	return config.Settings{
		Tag:            "master",
		TagsURL:        home.URL + "/tags.txt",
		ObjectsURL:     home.URL,
		Catalog:        filepath.Join(dir, "target", "eo-foreign.yaml"),
		Store:          config.StoreFile,
		Parallel:       2,
		CacheDir:       filepath.Join(dir, "cache"),
		DiskCache:      true,
		DefaultVersion: catalog.DefaultVersion,
		TraceExporter:  "stdout",
	}
}

func TestRunProbeEndToEnd(t *testing.T) {
	dir := t.TempDir()
	home := newFakeHome(t, map[string]string{"org/eolang/io/stdout.eo": "[] > stdout"})
	s := testSettings(home, dir)

	xmirPath := filepath.Join(dir, "target", "app.xmir")
	writeFile(t, xmirPath, programXMIR("app", "org.eolang.io.stdout", "org.example.missing", "org.eolang.io.stdout"))
	writeFile(t, s.Catalog, fmt.Sprintf("- id: org.example.app\n  xmir-path: %s\n", xmirPath))

	var out, errOut bytes.Buffer
	if err := runProbe(context.Background(), s, &out, &errOut); err != nil {
		t.Fatalf("runProbe: %v\nstderr: %s", err, errOut.String())
	}
	if got, want := out.String(), "Found 1 probes in 1 programs: [org.eolang.io.stdout]\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}

	f, err := catalog.Open(s.Catalog)
	if err != nil {
		t.Fatalf("reopening catalog: %v", err)
	}
	app, _, _ := f.Get(context.Background(), "org.example.app")
	if !app.Program.IsProbed() || *app.Program.Probed != 1 {
		t.Errorf("app = %+v", app.Program)
	}
	dep, ok, _ := f.Get(context.Background(), "org.eolang.io.stdout")
	if !ok {
		t.Fatal("stdout not registered")
	}
	if dep.Dependency.Version != "*.*.*" || dep.Dependency.ProbedAt != xmirPath {
		t.Errorf("dependency = %+v", dep.Dependency)
	}
	if _, ok, _ := f.Get(context.Background(), "org.example.missing"); ok {
		t.Error("missing object was registered")
	}

	cached := filepath.Join(s.CacheDir, testSHA, "org", "eolang", "io", "stdout.eo")
	if data, err := os.ReadFile(cached); err != nil || string(data) != "[] > stdout" {
		t.Errorf("disk cache = %q, %v", data, err)
	}
	if home.tags.Load() != 1 || home.objects.Load() != 2 {
		t.Errorf("requests: tags=%d objects=%d", home.tags.Load(), home.objects.Load())
	}

	out.Reset()
	if err := runProbe(context.Background(), s, &out, &errOut); err != nil {
		t.Fatalf("second runProbe: %v", err)
	}
	if got, want := out.String(), "Nothing to probe, all programs checked already\n"; got != want {
		t.Errorf("second output = %q, want %q", got, want)
	}
	if home.tags.Load() != 1 || home.objects.Load() != 2 {
		t.Errorf("second run touched the network: tags=%d objects=%d", home.tags.Load(), home.objects.Load())
	}
}

func TestRunProbeEmptyCatalog(t *testing.T) {
	dir := t.TempDir()
	home := newFakeHome(t, nil)
	s := testSettings(home, dir)

	var out, errOut bytes.Buffer
	if err := runProbe(context.Background(), s, &out, &errOut); err != nil {
		t.Fatalf("runProbe: %v", err)
	}
	if got, want := out.String(), "Nothing to probe, since there are no programs\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if _, err := os.Stat(s.Catalog); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("catalog file should not be created, stat err = %v", err)
	}
	if home.tags.Load() != 0 {
		t.Error("tags fetched for an empty catalog")
	}
}

func TestRunProbeCommitHashTag(t *testing.T) {
	dir := t.TempDir()
	home := newFakeHome(t, map[string]string{"org/eolang/txt/sprintf.eo": "[] > sprintf"})
	s := testSettings(home, dir)
	s.Tag = testSHA
	s.DiskCache = false

	xmirPath := filepath.Join(dir, "app.xmir")
	writeFile(t, xmirPath, programXMIR("app", "org.eolang.txt.sprintf"))
	writeFile(t, s.Catalog, fmt.Sprintf("- id: app\n  xmir-path: %s\n", xmirPath))

	var out, errOut bytes.Buffer
	if err := runProbe(context.Background(), s, &out, &errOut); err != nil {
		t.Fatalf("runProbe: %v", err)
	}
	if home.tags.Load() != 0 {
		t.Error("a commit hash must not be looked up in the tags list")
	}
	if _, err := os.Stat(s.CacheDir); !errors.Is(err, os.ErrNotExist) {
		t.Error("disk cache used although disabled")
	}
}

func TestRunProbeUnknownTag(t *testing.T) {
	dir := t.TempDir()
	home := newFakeHome(t, nil)
	s := testSettings(home, dir)
	s.Tag = "9.9.9"

	xmirPath := filepath.Join(dir, "app.xmir")
	writeFile(t, xmirPath, programXMIR("app", "a.b"))
	original := fmt.Sprintf("- id: app\n  xmir-path: %s\n", xmirPath)
	writeFile(t, s.Catalog, original)

	var out, errOut bytes.Buffer
	err := runProbe(context.Background(), s, &out, &errOut)
	if !errors.Is(err, objectionary.ErrUnknownTag) {
		t.Fatalf("err = %v, want ErrUnknownTag", err)
	}
	data, _ := os.ReadFile(s.Catalog)
	if string(data) != original {
		t.Errorf("catalog rewritten after failure:\n%s", data)
	}
}

func TestRunProbePartialFailure(t *testing.T) {
	dir := t.TempDir()
	home := newFakeHome(t, map[string]string{"org/eolang/io/stdout.eo": "[] > stdout"})
	s := testSettings(home, dir)

	good := filepath.Join(dir, "good.xmir")
	writeFile(t, good, programXMIR("good", "org.eolang.io.stdout"))
	missing := filepath.Join(dir, "missing.xmir")
	writeFile(t, s.Catalog, fmt.Sprintf("- id: bad\n  xmir-path: %s\n- id: good\n  xmir-path: %s\n", missing, good))

	var out, errOut bytes.Buffer
	err := runProbe(context.Background(), s, &out, &errOut)
	if !errors.Is(err, probe.ErrPartial) {
		t.Fatalf("err = %v, want ErrPartial", err)
	}
	if !strings.Contains(errOut.String(), "bad") {
		t.Errorf("stderr does not name the failed program: %q", errOut.String())
	}
	if got, want := out.String(), "Found 1 probes in 1 programs: [org.eolang.io.stdout], 1 programs failed\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}

	f, err := catalog.Open(s.Catalog)
	if err != nil {
		t.Fatal(err)
	}
	bad, _, _ := f.Get(context.Background(), "bad")
	if bad.Program.IsProbed() {
		t.Error("failed program was marked probed")
	}
	goodRec, _, _ := f.Get(context.Background(), "good")
	if !goodRec.Program.IsProbed() {
		t.Error("successful program was not saved")
	}
}

func TestRunProbeRejectsBadDefaultVersion(t *testing.T) {
	dir := t.TempDir()
	home := newFakeHome(t, nil)
	s := testSettings(home, dir)
	s.DefaultVersion = "not a version"

	var out, errOut bytes.Buffer
	if err := runProbe(context.Background(), s, &out, &errOut); err == nil {
		t.Fatal("expected error for invalid default version")
	}
}

func TestRunProbeWithTracing(t *testing.T) {
	dir := t.TempDir()
	home := newFakeHome(t, map[string]string{"a/b.eo": "[] > b"})
	s := testSettings(home, dir)
	s.Tracing = true
	s.Parallel = 1

	xmirPath := filepath.Join(dir, "app.xmir")
	writeFile(t, xmirPath, programXMIR("app", "a.b"))
	writeFile(t, s.Catalog, fmt.Sprintf("- id: app\n  xmir-path: %s\n", xmirPath))

	var out, errOut bytes.Buffer
	if err := runProbe(context.Background(), s, &out, &errOut); err != nil {
		t.Fatalf("runProbe: %v", err)
	}
	for _, span := range []string{"probe.run", "probe.program", "objectionary.get"} {
		if !strings.Contains(errOut.String(), span) {
			t.Errorf("trace output has no %s span", span)
		}
	}
}

func TestSQLiteStoreWorkflow(t *testing.T) {
	dir := t.TempDir()
	home := newFakeHome(t, map[string]string{"org/eolang/io/stdout.eo": "[] > stdout"})
	s := testSettings(home, dir)
	s.Store = config.StoreSQLite
	s.Catalog = filepath.Join(dir, "target", "catalog.db")

	xmirPath := filepath.Join(dir, "app.xmir")
	writeFile(t, xmirPath, programXMIR("app", "org.eolang.io.stdout"))

	var out bytes.Buffer
	if err := runCatalogAdd(context.Background(), s, &out, "", xmirPath); err != nil {
		t.Fatalf("runCatalogAdd: %v", err)
	}
	if !strings.Contains(out.String(), "Added org.example.app") {
		t.Errorf("add output = %q", out.String())
	}

	out.Reset()
	var errOut bytes.Buffer
	if err := runProbe(context.Background(), s, &out, &errOut); err != nil {
		t.Fatalf("runProbe: %v", err)
	}

	out.Reset()
	if err := runCatalogList(context.Background(), s, &out, true, false); err != nil {
		t.Fatalf("runCatalogList: %v", err)
	}
	var entries []catalogEntry
	if err := json.Unmarshal(out.Bytes(), &entries); err != nil {
		t.Fatalf("decoding list output: %v\n%s", err, out.String())
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Name != "org.eolang.io.stdout" || entries[0].ProbedAt != xmirPath {
		t.Errorf("dependency entry = %+v", entries[0])
	}
	if entries[1].Name != "org.example.app" || entries[1].Probed == nil || *entries[1].Probed != 1 {
		t.Errorf("program entry = %+v", entries[1])
	}
}

func TestRunCatalogValidate(t *testing.T) {
	dir := t.TempDir()
	s := config.Settings{Catalog: filepath.Join(dir, "eo-foreign.yaml"), Store: config.StoreFile}

	var out bytes.Buffer
	if err := runCatalogValidate(context.Background(), s, &out); err != nil {
		t.Fatalf("missing catalog: %v", err)
	}

	writeFile(t, s.Catalog, "- id: app\n  xmir-path: app.xmir\n  probed: 2\n- id: a.b\n  version: \"*.*.*\"\n")
	out.Reset()
	if err := runCatalogValidate(context.Background(), s, &out); err != nil {
		t.Fatalf("valid catalog: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "valid (2 records)") {
		t.Errorf("output = %q", out.String())
	}

	writeFile(t, s.Catalog, "- id: app\n  probed: many\n")
	if err := runCatalogValidate(context.Background(), s, &out); !errors.Is(err, catalog.ErrInvalidCatalog) {
		t.Errorf("bad probed: err = %v, want ErrInvalidCatalog", err)
	}

	writeFile(t, s.Catalog, "- id: a.b\n  version: not a version\n")
	if err := runCatalogValidate(context.Background(), s, &out); !errors.Is(err, catalog.ErrInvalidCatalog) {
		t.Errorf("bad version: err = %v, want ErrInvalidCatalog", err)
	}
}
