package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"agenticdebugger/internal/commands"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=X.Y.Z"
	Version = "1.0.0"
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "agentic-bridge",
	Short: "Agentic debugger bridge - drive the debugger over HTTP",
	Long: `Agentic debugger bridge exposes a running debugger session to local
tools over HTTP and WebSocket.

Quick Start:
  agentic-bridge                  Run a bridge (same as 'serve')
  agentic-bridge discover         Show the primary bridge on this machine
  agentic-bridge instances        List every bridge the primary knows
  agentic-bridge watch            Stream state changes

Config: --config <file.yaml>, AGENTIC_* environment variables or .env
Docs:   http://127.0.0.1:27183/docs`,
	Version:      Version,
	SilenceUsage: true,
	RunE:         commands.RunServe,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&commands.ConfigFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	commands.AddServeFlags(rootCmd)

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.DiscoverCmd)
	rootCmd.AddCommand(commands.InstancesCmd)
	rootCmd.AddCommand(commands.WatchCmd)
}

func main() {
	commands.AppVersion = Version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
