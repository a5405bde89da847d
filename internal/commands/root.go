// Package commands implements the agentic-bridge command line.
package commands

import (
	"fmt"
	"log"
	"strings"

	"agenticdebugger/internal/config"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// AppVersion is set by main
var AppVersion = "0.0.0-dev"

// ConfigFile is the --config flag shared by every command
var ConfigFile string

// loadConfig resolves configuration for a command: .env, then the optional
// YAML file, AGENTIC_* variables and finally the command's own flags
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err == nil {
		log.Println("📄 Loaded .env file")
	}

	v := viper.New()
	if err := bindFlags(v, flags); err != nil {
		return nil, err
	}
	cfg, err := config.Load(v, ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// bindFlags maps --discovery-file to the discovery_file key and so on.
// Only flags the user actually set override lower layers.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Name == "config" || f.Name == "help" {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if bindErr := v.BindPFlag(key, f); bindErr != nil {
			err = fmt.Errorf("bind flag --%s: %w", f.Name, bindErr)
		}
	})
	return err
}

// addConnectionFlags registers the flags every client command needs to find a bridge
func addConnectionFlags(flags *pflag.FlagSet) {
	flags.String("discovery-file", config.DefaultDiscoveryFile(), "Discovery descriptor written by the primary bridge")
	flags.String("api-key", "", "Shared key (defaults to the descriptor's key)")
	flags.Duration("proxy-timeout", 0, "Request timeout")
}
