package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/open-edge-platform/srcsec/internal/config"
	"github.com/open-edge-platform/srcsec/internal/recipe"
	"github.com/spf13/cobra"
)

func TestResolveRequestedLogLevelPrefersExplicitFlag(t *testing.T) {
	prev := logLevel
	logLevel = "warn"
	t.Cleanup(func() {
		logLevel = prev
	})

	if got := resolveRequestedLogLevel(nil); got != "warn" {
		t.Fatalf("expected explicit log level to win, got %q", got)
	}
}

func TestResolveRequestedLogLevelUsesVerboseFallback(t *testing.T) {
	prev := logLevel
	logLevel = ""
	t.Cleanup(func() {
		logLevel = prev
	})

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Bool("verbose", false, "")
	if err := cmd.Flags().Set("verbose", "true"); err != nil {
		t.Fatalf("set verbose: %v", err)
	}

	if got := resolveRequestedLogLevel(cmd); got != "debug" {
		t.Fatalf("expected verbose flag to set debug level, got %q", got)
	}
}

func TestResolveRequestedLogLevelIgnoresUnsetVerbose(t *testing.T) {
	prev := logLevel
	logLevel = ""
	t.Cleanup(func() {
		logLevel = prev
	})

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Bool("verbose", false, "")

	if got := resolveRequestedLogLevel(cmd); got != "" {
		t.Fatalf("expected empty when verbose not set, got %q", got)
	}
}

func TestAttachLoggingHooksAddsHookToSubcommands(t *testing.T) {
	root := createRootCommand()
	for _, path := range [][]string{{"ingest"}, {"keys", "sync"}, {"keys", "missing"}, {"probe"}, {"analyze"}, {"evaluate"}} {
		cmd, _, err := root.Find(path)
		if err != nil {
			t.Fatalf("find %v command: %v", path, err)
		}
		if cmd.PersistentPreRunE == nil {
			t.Fatalf("expected logging hook on %v command", path)
		}
	}
}

// srcinfoFor returns a recipe whose single source lives on base.
func srcinfoFor(base string) string {
	return `pkgbase = hello
	pkgver = 2.12
	pkgrel = 1
	url = https://www.gnu.org/software/hello/
	source = ` + base + `/hello-2.12.tar.gz
	sha256sums = cf04af86dc085268c5f4470fbae49b18afbc221b78096aab842d934a76bad0ab

pkgname = hello
`
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := createRootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestIngestProbeAnalyzeEvaluate(t *testing.T) {
	// upstream offers neither a signature nor https
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "srcsec.yml")
	cfg := "workDir: " + dir + "\noutputDir: " + filepath.Join(dir, "reports") +
		"\nprobe:\n  timeoutSeconds: 2\nlogging:\n  level: error\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	recipes := filepath.Join(dir, "recipes", "hello")
	if err := os.MkdirAll(recipes, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(recipes, ".SRCINFO"), []byte(srcinfoFor(srv.URL)), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "--config", cfgPath, "ingest", filepath.Join(dir, "recipes"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	var ingest struct {
		Inserted   int `json:"inserted"`
		URLsQueued int `json:"urlsQueued"`
	}
	if err := json.Unmarshal([]byte(out), &ingest); err != nil {
		t.Fatalf("decode ingest output: %v\n%s", err, out)
	}
	if ingest.Inserted != 1 || ingest.URLsQueued != 1 {
		t.Fatalf("unexpected ingest result %s", out)
	}

	out, err = runCLI(t, "--config", cfgPath, "keys", "missing")
	if err != nil {
		t.Fatalf("keys missing: %v", err)
	}
	if strings.TrimSpace(out) != "" {
		t.Fatalf("expected no missing keys, got %q", out)
	}

	// sources are not probed yet
	out, err = runCLI(t, "--config", cfgPath, "analyze")
	if err == nil {
		t.Fatal("expected analyze to fail before the probe pass")
	}
	if !strings.Contains(out, `"reason": "not-cached"`) {
		t.Fatalf("expected not-cached outcome, got %s", out)
	}

	if _, err := runCLI(t, "--config", cfgPath, "probe", "--workers", "2"); err != nil {
		t.Fatalf("probe: %v", err)
	}

	out, err = runCLI(t, "--config", cfgPath, "analyze")
	if err != nil {
		t.Fatalf("analyze: %v\n%s", err, out)
	}
	var res struct {
		Analyzed int `json:"analyzed"`
		Outcomes []struct {
			Package  string `json:"package"`
			Security string `json:"security"`
		} `json:"outcomes"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode analyze output: %v\n%s", err, out)
	}
	// strong hash but plain http and no signing key
	if res.Analyzed != 1 || res.Outcomes[0].Security != "LOW" {
		t.Fatalf("unexpected analyze result %s", out)
	}

	out, err = runCLI(t, "--config", cfgPath, "evaluate", "--format", "json")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !strings.Contains(out, `"LOW": 1`) {
		t.Fatalf("expected one LOW package in %s", out)
	}

	if _, err := runCLI(t, "--config", cfgPath, "evaluate", "--format", "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestAnalyzeReportsFailures(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "srcsec.yml")
	if err := os.WriteFile(cfgPath, []byte("workDir: "+dir+"\nlogging:\n  level: error\n"), 0644); err != nil {
		t.Fatal(err)
	}
	recipes := filepath.Join(dir, "recipes")
	if err := os.MkdirAll(recipes, 0755); err != nil {
		t.Fatal(err)
	}
	// no digest list at all
	broken := "pkgbase = broken\n\tpkgver = 1\n\tpkgrel = 1\n\tsource = https://x/broken.tar.gz\n"
	if err := os.WriteFile(filepath.Join(recipes, ".SRCINFO"), []byte(broken), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := runCLI(t, "--config", cfgPath, "ingest", recipes); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	out, err := runCLI(t, "--config", cfgPath, "analyze")
	if err == nil {
		t.Fatal("expected analyze to fail when a package cannot be rated")
	}
	if !strings.Contains(out, `"reason": "unknown-hash"`) {
		t.Fatalf("expected outcome with reason in output, got %s", out)
	}
}

func TestInvalidConfigIsRejected(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "srcsec.yml")
	if err := os.WriteFile(cfgPath, []byte("workers: lots\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, "--config", cfgPath, "probe"); err == nil {
		t.Fatal("expected error for invalid config")
	}
}

func TestOutputFormatFlag(t *testing.T) {
	var f outputFormat
	if err := f.Set("JSON"); err != nil {
		t.Fatalf("Set(JSON) error = %v", err)
	}
	if f != formatJSON {
		t.Fatalf("expected json, got %q", f)
	}
	if err := f.Set("yaml"); err == nil {
		t.Fatal("expected error for yaml")
	}
	if f != formatJSON {
		t.Fatalf("rejected value must not change the flag, got %q", f)
	}
}

func TestProbeRegistersStoredSources(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "srcsec.yml")
	cfg := "workDir: " + dir + "\nprobe:\n  timeoutSeconds: 2\nlogging:\n  level: error\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}

	prev := globalConfig
	t.Cleanup(func() { globalConfig = prev })
	loaded, err := config.LoadGlobalConfig(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	globalConfig = loaded

	// stored without going through ingest, so no url is registered
	e, err := openEnv(context.Background())
	if err != nil {
		t.Fatalf("openEnv: %v", err)
	}
	pkg := recipe.New("hello")
	pkg.Sources = []string{srv.URL + "/hello.tar.gz", "local.patch"}
	if _, err := e.packages.Upsert(context.Background(), pkg); err != nil {
		t.Fatalf("store package: %v", err)
	}
	e.Close()

	out, err := runCLI(t, "--config", cfgPath, "probe")
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	var stats struct {
		Probed int `json:"probed"`
	}
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode probe output: %v\n%s", err, out)
	}
	if stats.Probed != 1 {
		t.Fatalf("expected the stored source to be probed, got %s", out)
	}
}
