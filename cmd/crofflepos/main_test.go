package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"crofflepos/internal/domain"
	"crofflepos/internal/recipes"
)

// runCLI executes the root command against the seeded in-memory backend.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTemplatesExportWritesYAML(t *testing.T) {
	out, err := runCLI(t, "templates", "export")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if !strings.Contains(out, "templates:") || !strings.Contains(out, "Classic Nutella Croffle") {
		t.Fatalf("unexpected export output:\n%s", out)
	}
}

func TestTemplatesImportReportsCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	body := "templates:\n  - name: Matcha Croffle\n    category: Premium\n    suggested_price_cents: 14000\n    ingredients:\n      - ingredient_name: Croissant Dough\n        quantity: \"1\"\n        unit: pieces\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	out, err := runCLI(t, "templates", "import", "--file", path)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	var result recipes.ImportResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode import output: %v\n%s", err, out)
	}
	if len(result.Created) != 1 || len(result.Errors) != 0 {
		t.Fatalf("unexpected import result: %+v", result)
	}
}

func TestTemplatesImportRequiresFile(t *testing.T) {
	if _, err := runCLI(t, "templates", "import"); err == nil {
		t.Fatalf("expected missing --file to fail")
	}
}

func TestReconcilePrintsReport(t *testing.T) {
	out, err := runCLI(t, "reconcile", "--store", "main-store")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	var report domain.ReconciliationReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if report.StoreID != "main-store" || report.TotalTransactions != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestAvailabilitySyncSingleStore(t *testing.T) {
	out, err := runCLI(t, "availability", "sync", "--store", "main-store")
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	var result domain.AvailabilitySyncResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode sync output: %v\n%s", err, out)
	}
	if result.StoreID != "main-store" || result.TotalProducts == 0 {
		t.Fatalf("unexpected sync result: %+v", result)
	}
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	_, err := runCLI(t, "migrate")
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}
}

func TestServeRejectsWeakSecurityConfig(t *testing.T) {
	t.Setenv("AUTH_SECRET", "short")
	t.Setenv("MANAGER_PIN", "123456")
	_, err := runCLI(t, "serve")
	if err == nil || !strings.Contains(err.Error(), "security") {
		t.Fatalf("expected security configuration error, got %v", err)
	}
}
