package preflight

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"agenticdebugger/internal/config"
	"agenticdebugger/internal/models"
	"agenticdebugger/internal/permissions"
	"agenticdebugger/internal/services"
)

func setupPreflightTest(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DiscoveryFile = filepath.Join(dir, config.DiscoveryFileName)
	cfg.PermissionsFile = filepath.Join(dir, "permissions.yaml")
	return cfg
}

func find(t *testing.T, results []CheckResult, name string) CheckResult {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("No %q check in results", name)
	return CheckResult{}
}

func TestRunAll_FreshMachine(t *testing.T) {
	cfg := setupPreflightTest(t)

	results := NewChecker(cfg).RunAll()
	if HasFailures(results) {
		t.Fatalf("Expected no failures, got %+v", results)
	}
	if r := find(t, results, "Permissions"); r.Status != "warning" {
		t.Errorf("Expected a warning for a missing permissions file, got %s", r.Status)
	}
	if r := find(t, results, "Existing Primary"); r.Status != "pass" {
		t.Errorf("Expected pass without a descriptor, got %s", r.Status)
	}
}

func TestRunAll_BadSymbolIndexFails(t *testing.T) {
	cfg := setupPreflightTest(t)
	cfg.SymbolIndex = filepath.Join(t.TempDir(), "missing.yaml")

	results := NewChecker(cfg).RunAll()
	if !HasFailures(results) {
		t.Error("Expected a failure for an unreadable symbol index")
	}
}

func TestCheckPermissionsFile_ListsDisabled(t *testing.T) {
	cfg := setupPreflightTest(t)
	policy := permissions.DefaultPolicy().With(permissions.CapBuildControl, false)
	if err := permissions.NewFileSource(cfg.PermissionsFile, permissions.DefaultPolicy()).Save(policy); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	r := NewChecker(cfg).checkPermissionsFile()
	if r.Status != "pass" || r.Message != "Disabled: build-control" {
		t.Errorf("Unexpected result %+v", r)
	}
}

func TestCheckExistingPrimary(t *testing.T) {
	cfg := setupPreflightTest(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if err := services.WriteDiscovery(cfg.DiscoveryFile, models.DiscoveryInfo{Port: port, PID: os.Getpid()}); err != nil {
		t.Fatalf("WriteDiscovery failed: %v", err)
	}

	checker := NewChecker(cfg)
	if r := checker.checkExistingPrimary(); r.Status != "pass" {
		t.Errorf("Expected pass with a live primary, got %+v", r)
	}

	ln.Close()
	if r := checker.checkExistingPrimary(); r.Status != "warning" {
		t.Errorf("Expected a stale descriptor warning, got %+v", r)
	}
}

func TestCheckAPIKey_WarnsInProduction(t *testing.T) {
	cfg := setupPreflightTest(t)
	cfg.Environment = "production"
	if r := NewChecker(cfg).checkAPIKey(); r.Status != "warning" {
		t.Errorf("Expected a warning, got %s", r.Status)
	}
	cfg.APIKey = "s3cret"
	if r := NewChecker(cfg).checkAPIKey(); r.Status != "pass" {
		t.Errorf("Expected pass with a custom key, got %s", r.Status)
	}
}
