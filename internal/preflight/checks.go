package preflight

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agenticdebugger/internal/codeintel"
	"agenticdebugger/internal/config"
	"agenticdebugger/internal/permissions"
	"agenticdebugger/internal/services"
)

// CheckResult represents the result of a preflight check
type CheckResult struct {
	Name    string
	Status  string // "pass", "fail", "warning"
	Message string
	Error   error
}

// Checker performs pre-flight checks before a bridge starts
type Checker struct {
	cfg         *config.Config
	dialTimeout time.Duration
}

// NewChecker creates a new preflight checker
func NewChecker(cfg *config.Config) *Checker {
	return &Checker{cfg: cfg, dialTimeout: 500 * time.Millisecond}
}

// RunAll runs all preflight checks and returns results
func (c *Checker) RunAll() []CheckResult {
	log.Println("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkDiscoveryDir(),
		c.checkExistingPrimary(),
		c.checkPermissionsFile(),
		c.checkSymbolIndex(),
		c.checkAPIKey(),
	}

	// Print summary
	passed := 0
	failed := 0
	warnings := 0

	for _, result := range results {
		switch result.Status {
		case "pass":
			log.Printf("   ✅ %s: %s", result.Name, result.Message)
			passed++
		case "fail":
			log.Printf("   ❌ %s: %s", result.Name, result.Message)
			if result.Error != nil {
				log.Printf("      Error: %v", result.Error)
			}
			failed++
		case "warning":
			log.Printf("   ⚠️  %s: %s", result.Name, result.Message)
			warnings++
		}
	}

	log.Printf("📊 Pre-flight summary: %d passed, %d failed, %d warnings", passed, failed, warnings)

	return results
}

// HasFailures returns true if any check failed
func HasFailures(results []CheckResult) bool {
	for _, result := range results {
		if result.Status == "fail" {
			return true
		}
	}
	return false
}

// checkDiscoveryDir verifies the primary will be able to publish its descriptor
func (c *Checker) checkDiscoveryDir() CheckResult {
	dir := filepath.Dir(c.cfg.DiscoveryFile)
	err := os.MkdirAll(dir, 0o755)
	var probe *os.File
	if err == nil {
		probe, err = os.CreateTemp(dir, ".agentic-probe-*")
	}
	if err != nil {
		return CheckResult{
			Name:    "Discovery Directory",
			Status:  "fail",
			Message: fmt.Sprintf("Cannot write to %s", dir),
			Error:   err,
		}
	}
	probe.Close()
	os.Remove(probe.Name())

	return CheckResult{
		Name:    "Discovery Directory",
		Status:  "pass",
		Message: fmt.Sprintf("%s is writable", dir),
	}
}

// checkExistingPrimary reports a descriptor left by another bridge
func (c *Checker) checkExistingPrimary() CheckResult {
	info, err := services.ReadDiscovery(c.cfg.DiscoveryFile)
	if err != nil {
		return CheckResult{
			Name:    "Existing Primary",
			Status:  "pass",
			Message: "No descriptor found, this bridge should become the primary",
		}
	}

	addr := net.JoinHostPort("127.0.0.1", fmt.Sprint(info.Port))
	conn, err := net.DialTimeout("tcp", addr, c.dialTimeout)
	if err != nil {
		return CheckResult{
			Name:    "Existing Primary",
			Status:  "warning",
			Message: fmt.Sprintf("Stale descriptor for pid %d on port %d, it will be replaced", info.PID, info.Port),
		}
	}
	conn.Close()

	return CheckResult{
		Name:    "Existing Primary",
		Status:  "pass",
		Message: fmt.Sprintf("Primary answering on port %d, this bridge will start as a secondary", info.Port),
	}
}

// checkPermissionsFile verifies the capability settings parse
func (c *Checker) checkPermissionsFile() CheckResult {
	path := c.cfg.PermissionsFile
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return CheckResult{
			Name:    "Permissions",
			Status:  "warning",
			Message: fmt.Sprintf("%s not found, every capability is enabled", path),
		}
	}

	policy, err := permissions.NewFileSource(path, permissions.DefaultPolicy()).Load()
	if err != nil {
		return CheckResult{
			Name:    "Permissions",
			Status:  "warning",
			Message: "Settings file is unreadable, defaults apply until it is fixed",
			Error:   err,
		}
	}

	var denied []string
	for _, capability := range permissions.AllCapabilities() {
		if !policy.Allows(capability) {
			denied = append(denied, string(capability))
		}
	}
	message := "All capabilities enabled"
	if len(denied) > 0 {
		message = "Disabled: " + strings.Join(denied, ", ")
	}
	return CheckResult{
		Name:    "Permissions",
		Status:  "pass",
		Message: message,
	}
}

// checkSymbolIndex verifies the configured symbol index loads
func (c *Checker) checkSymbolIndex() CheckResult {
	if c.cfg.SymbolIndex == "" {
		return CheckResult{
			Name:    "Symbol Index",
			Status:  "warning",
			Message: "No symbol index configured, /code endpoints will find nothing",
		}
	}

	index, err := codeintel.LoadIndex(c.cfg.SymbolIndex)
	if err != nil {
		return CheckResult{
			Name:    "Symbol Index",
			Status:  "fail",
			Message: fmt.Sprintf("Cannot load %s", c.cfg.SymbolIndex),
			Error:   err,
		}
	}

	return CheckResult{
		Name:    "Symbol Index",
		Status:  "pass",
		Message: fmt.Sprintf("%d symbols", index.Len()),
	}
}

// checkAPIKey warns when production runs with the well-known development key
func (c *Checker) checkAPIKey() CheckResult {
	if c.cfg.APIKey == "" || c.cfg.APIKey == config.DefaultAPIKey {
		status := "pass"
		if strings.EqualFold(c.cfg.Environment, "production") {
			status = "warning"
		}
		return CheckResult{
			Name:    "API Key",
			Status:  status,
			Message: "Using the development key",
		}
	}

	return CheckResult{
		Name:    "API Key",
		Status:  "pass",
		Message: "Custom key configured",
	}
}
