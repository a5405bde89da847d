package commands

import (
	"fmt"
	"log"

	"agenticdebugger/internal/config"
	"agenticdebugger/internal/daemon"
	"agenticdebugger/internal/logging"
	"agenticdebugger/internal/preflight"

	"github.com/spf13/cobra"
)

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge in the foreground",
	Long: `Runs a bridge instance. The first bridge on a machine binds the
well-known port and becomes the primary; later ones bind an ephemeral port
and register with it as secondaries.`,
	RunE: RunServe,
}

func init() {
	AddServeFlags(ServeCmd)
}

// AddServeFlags registers the flags serve understands; main reuses them on
// the root command so a bare invocation serves
func AddServeFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("host", "127.0.0.1", "Interface to bind")
	flags.Int("port", config.DefaultPort, "Well-known port the primary binds")
	flags.String("api-key", config.DefaultAPIKey, "Shared API key")
	flags.String("discovery-file", config.DefaultDiscoveryFile(), "Where the primary publishes its descriptor")
	flags.String("permissions-file", config.DefaultPermissionsFile(), "Capability settings, reloaded on change")
	flags.String("symbol-index", "", "YAML symbol index served by /code endpoints")
	flags.String("solution-name", "", "Solution name reported by this instance")
	flags.Float64("command-rate", 0, "Sustained commands per second (0 disables the limit)")
	flags.Int("websocket-rate", 60, "WebSocket upgrades allowed per client per minute")
	flags.String("environment", "development", "development or production (JSON logs)")
}

// RunServe starts a bridge and blocks until it is interrupted
func RunServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	logging.Init(cfg.Environment, cfg.Verbose)

	log.Printf("🚀 Starting agentic debugger bridge %s", AppVersion)
	log.Printf("📍 Discovery: %s", cfg.DiscoveryFile)
	log.Printf("🔐 Permissions: %s", cfg.PermissionsFile)

	if results := preflight.NewChecker(cfg).RunAll(); preflight.HasFailures(results) {
		return fmt.Errorf("pre-flight checks failed")
	}

	bridge, err := daemon.New(daemon.Options{Config: cfg})
	if err != nil {
		return fmt.Errorf("failed to create bridge: %w", err)
	}
	return bridge.Run(cmd.Context())
}
