package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openfroyo/catalogd/pkg/config"
	"github.com/openfroyo/catalogd/pkg/engine"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, verbose, jsonOutput = "", false, false

	var out bytes.Buffer
	root := newRootCommand("1.2.3", "abc123", "2026-01-01")
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInitWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalogd.yaml")

	out, err := run(t, "init", "--config", path, "--storage", "sqlite", "--sender-url", "http://executor:8000/workitems")
	if err != nil {
		t.Fatalf("init error = %v\n%s", err, out)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Sender.Type != config.SenderWebhook {
		t.Errorf("config = %+v", cfg)
	}
	if _, err := os.Stat(cfg.Storage.Path); err != nil {
		t.Errorf("expected the database to be created: %v", err)
	}

	if _, err := run(t, "init", "--config", path); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected init to refuse overwriting, got %v", err)
	}
	if _, err := run(t, "init", "--config", path, "--force"); err != nil {
		t.Errorf("init --force error = %v", err)
	}
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalogd.yaml")
	if err := os.WriteFile(path, []byte("sender:\n  type: webhook\n  url: not a url\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := run(t, "validate", "--config", path); err == nil {
		t.Error("expected an invalid sender URL to fail validation")
	}

	if err := os.WriteFile(path, []byte("listen_address: \":9090\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	seed := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(seed, []byte("teams:\n  - {id: t1, name: Payments}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "validate", "--config", path, "--seed", seed)
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}
	if !strings.Contains(out, "1 teams") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestCatalogImportAndList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalogd.yaml")
	db := filepath.Join(dir, "catalogd.db")
	if err := os.WriteFile(path, []byte("storage:\n  driver: sqlite\n  path: "+db+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	seed := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(seed, []byte(`
teams:
  - {id: t1, name: Payments}
services:
  - {id: s1, team_id: t1, name: checkout}
modules:
  - {id: m1, service_id: s1, name: web, host_abbr: web}
`), 0o600); err != nil {
		t.Fatal(err)
	}

	if out, err := run(t, "catalog", "import", "--config", path, seed); err != nil {
		t.Fatalf("import error = %v\n%s", err, out)
	}

	out, err := run(t, "workitems", "list", "--config", path, "--json")
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	var items []*engine.WorkItem
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("list output is not JSON: %v\n%s", err, out)
	}
	if len(items) != 0 {
		t.Errorf("expected no work items, got %d", len(items))
	}
}

func TestCatalogBackfill(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalogd.yaml")
	db := filepath.Join(dir, "catalogd.db")
	if err := os.WriteFile(path, []byte("storage:\n  driver: sqlite\n  path: "+db+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	seed := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(seed, []byte(`
teams:
  - {id: t1, name: Payments}
services:
  - {id: s1, team_id: t1, name: checkout, abbr: chk}
modules:
  - {id: m1, service_id: s1, name: web, host_abbr: web}
`), 0o600); err != nil {
		t.Fatal(err)
	}
	hosts := filepath.Join(dir, "hosts.csv")
	if err := os.WriteFile(hosts, []byte("chk,web,dc1-prod-web-001,dc1,prod,java8,small\nchk,api,dc1-prod-api-001,dc1,prod,java8,small\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if out, err := run(t, "catalog", "import", "--config", path, seed); err != nil {
		t.Fatalf("import error = %v\n%s", err, out)
	}

	out, err := run(t, "catalog", "backfill", "--config", path, "--requestor", "jdoe", hosts)
	if err != nil {
		t.Fatalf("backfill error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "Registered 1 hosts") || !strings.Contains(out, "skipped row 2") {
		t.Errorf("unexpected output %q", out)
	}

	// The same file again registers nothing new.
	out, err = run(t, "catalog", "backfill", "--config", path, "--json", hosts)
	if err != nil {
		t.Fatalf("second backfill error = %v", err)
	}
	var result struct {
		HostIDs []string `json:"host_ids"`
		Skipped []struct {
			Row int `json:"row"`
		} `json:"skipped"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("backfill output is not JSON: %v\n%s", err, out)
	}
	if len(result.HostIDs) != 0 || len(result.Skipped) != 2 {
		t.Errorf("unexpected second backfill %+v", result)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version", "--json")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	var v map[string]string
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("version output is not JSON: %v", err)
	}
	if v["version"] != "1.2.3" || v["commit"] != "abc123" {
		t.Errorf("version = %v", v)
	}
}
