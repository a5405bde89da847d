// Package daemon wires one bridge instance: it binds the listener, decides
// whether this process is the primary, starts the background work and tears
// everything down again.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"agenticdebugger/internal/automation"
	"agenticdebugger/internal/codeintel"
	"agenticdebugger/internal/config"
	"agenticdebugger/internal/engine"
	"agenticdebugger/internal/jobs"
	"agenticdebugger/internal/logging"
	"agenticdebugger/internal/models"
	"agenticdebugger/internal/permissions"
	"agenticdebugger/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Options configures a bridge. Only Config is required.
type Options struct {
	Config *config.Config

	// Host is the engine to drive; defaults to a simulator
	Host engine.Host
	// CodeIntel defaults to the symbol index named by Config.SymbolIndex
	CodeIntel codeintel.Service
	// Policies defaults to the YAML file named by Config.PermissionsFile,
	// which is then also watched for changes
	Policies permissions.Source
}

// Bridge is one running instance
type Bridge struct {
	cfg  *config.Config
	host engine.Host

	thread      *automation.Thread
	cache       *services.SnapshotCache
	executor    *services.CommandExecutor
	connections *services.ConnectionManager
	broadcaster *services.StateBroadcaster
	pump        *services.EventPump
	metrics     *services.Metrics
	requests    *services.RequestLogger
	provider    *permissions.Provider
	codeintel   *codeintel.Cached
	watchPath   string

	registry  *services.InstanceRegistry
	client    *services.RegistrationClient
	scheduler *jobs.JobScheduler
	app       *fiber.App
	listener  net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	served chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error
}

// New wires a bridge without binding anything
func New(opts Options) (*Bridge, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	host := opts.Host
	if host == nil {
		solution := cfg.SolutionName
		if solution == "" {
			solution = "Solution"
		}
		host = engine.NewSimulator(solution+".sln", solution)
	}

	intel := opts.CodeIntel
	if intel == nil {
		index := codeintel.NewIndex()
		if cfg.SymbolIndex != "" {
			loaded, err := codeintel.LoadIndex(cfg.SymbolIndex)
			if err != nil {
				return nil, fmt.Errorf("load symbol index: %w", err)
			}
			index = loaded
			log.Printf("🔎 [CODEINTEL] Loaded %d symbols from %s", index.Len(), cfg.SymbolIndex)
		}
		intel = index
	}
	cached := codeintel.NewCached(intel, 30*time.Second)

	source := opts.Policies
	watchPath := ""
	if source == nil {
		source = permissions.NewFileSource(cfg.PermissionsFile, permissions.DefaultPolicy())
		watchPath = cfg.PermissionsFile
	}

	b := &Bridge{
		cfg:         cfg,
		host:        host,
		thread:      automation.NewThread("automation", 256),
		cache:       services.NewSnapshotCache(),
		connections: services.NewConnectionManager(),
		requests:    services.NewRequestLogger(cfg.LogCapacity, cfg.LogBodyLimit),
		codeintel:   cached,
		watchPath:   watchPath,
		served:      make(chan struct{}),
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())

	b.metrics = services.NewMetrics(prometheus.NewRegistry(), b.connections.Count, b.instanceCount)
	b.executor = services.NewCommandExecutor(host, b.thread, b.cache, b.metrics, cfg.CommandTimeout)
	// symbols move when the solution is rebuilt
	b.executor.OnBuild = cached.Flush
	b.broadcaster = services.NewStateBroadcaster(b.connections, b.metrics)
	b.pump = services.NewEventPump(host.Events(), b.cache, b.broadcaster)
	b.provider = permissions.NewProvider(source, b.thread, permissions.DefaultPolicy())

	return b, nil
}

func (b *Bridge) instanceCount() int {
	if b.registry == nil {
		return 1
	}
	return b.registry.Count()
}

// apiKey is the key clients must present: the policy's when set, else the configured one
func (b *Bridge) apiKey() string {
	if key := b.provider.Current().APIKey; key != "" {
		return key
	}
	return b.defaultKey()
}

// defaultKey is the key a request without a key header is assumed to present
func (b *Bridge) defaultKey() string {
	if b.cfg.APIKey != "" {
		return b.cfg.APIKey
	}
	return config.DefaultAPIKey
}

// bind claims the well-known port, or an ephemeral one as a secondary
func (b *Bridge) bind() (net.Listener, bool, error) {
	addr := net.JoinHostPort(b.cfg.Host, fmt.Sprint(b.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err == nil {
		return ln, true, nil
	}
	log.Printf("ℹ️  [DAEMON] %s is taken (%v), starting as a secondary", addr, err)

	ln, err = net.Listen("tcp", net.JoinHostPort(b.cfg.Host, "0"))
	if err != nil {
		return nil, false, fmt.Errorf("bind ephemeral port: %w", err)
	}
	return ln, false, nil
}

// Start binds the listener and starts serving. It returns once the bridge is
// accepting connections.
func (b *Bridge) Start() error {
	b.thread.Start()

	if err := b.provider.Refresh(b.ctx); err != nil {
		log.Printf("⚠️  [DAEMON] Using default permissions: %v", err)
	}

	seed, err := b.executor.LiveSnapshot(b.ctx)
	if err != nil {
		log.Printf("⚠️  [DAEMON] Initial state capture failed: %v", err)
	}
	solution := b.cfg.SolutionName
	if solution == "" {
		solution = seed.SolutionName
	}

	ln, primary, err := b.bind()
	if err != nil {
		b.cancel()
		b.thread.Stop(time.Second)
		return err
	}
	b.listener = ln
	port := ln.Addr().(*net.TCPAddr).Port

	self := models.InstanceInfo{
		ID:           uuid.New().String(),
		PID:          os.Getpid(),
		Port:         port,
		SolutionName: solution,
		IsPrimary:    primary,
	}
	b.registry = services.NewInstanceRegistry(self, b.cfg.InstanceTTL)
	logger := logging.WithInstance(self.ID, port, primary)

	b.app = b.buildApp()

	b.pump.Start(b.ctx)
	if b.watchPath != "" {
		if err := b.provider.Watch(b.ctx, b.watchPath); err != nil {
			log.Printf("⚠️  [DAEMON] Permissions hot reload disabled: %v", err)
		}
	}

	if err := b.startJobs(primary); err != nil {
		_ = ln.Close()
		b.cancel()
		b.thread.Stop(time.Second)
		return err
	}

	go func() {
		defer close(b.served)
		if err := b.app.Listener(ln); err != nil {
			logger.Error("listener stopped", "error", err)
		}
	}()

	if primary {
		info := b.Discovery()
		if err := services.WriteDiscovery(b.cfg.DiscoveryFile, info); err != nil {
			log.Printf("⚠️  [DAEMON] Failed to write discovery descriptor: %v", err)
		} else {
			log.Printf("📍 [DAEMON] Discovery descriptor written to %s", b.cfg.DiscoveryFile)
		}
	}

	role := "secondary"
	if primary {
		role = "primary"
	}
	log.Printf("🚀 [DAEMON] Bridge %s listening on %s as %s", self.ID, b.BaseURL(), role)
	logger.Info("bridge started", "solution", solution, "role", role)
	return nil
}

func (b *Bridge) startJobs(primary bool) error {
	scheduler, err := jobs.NewJobScheduler()
	if err != nil {
		return err
	}

	list := []jobs.Job{
		jobs.NewSnapshotRefreshJob(b.executor, b.cfg.SnapshotRefreshInterval),
		jobs.NewPolicyRefreshJob(b.provider, b.cfg.PolicyRefreshInterval),
	}
	if primary {
		list = append(list, jobs.NewRegistrySweepJob(b.registry, b.cfg.SweepInterval))
	} else {
		fallback := models.DiscoveryInfo{
			Port:          b.cfg.Port,
			KeyHeader:     b.cfg.KeyHeader,
			DefaultAPIKey: b.apiKey(),
			BaseURL:       b.cfg.BaseURL(b.cfg.Port),
		}
		b.client = services.NewRegistrationClient(b.registry, b.cfg.DiscoveryFile, fallback, b.cfg.HeartbeatInterval)
		list = append(list, jobs.NewHeartbeatJob(b.client, b.cfg.HeartbeatInterval))
	}

	for _, job := range list {
		if err := scheduler.Register(job); err != nil {
			_ = scheduler.Stop()
			return err
		}
	}
	scheduler.Start()
	b.scheduler = scheduler
	return nil
}

// Discovery is the descriptor this bridge publishes when primary
func (b *Bridge) Discovery() models.DiscoveryInfo {
	self := b.registry.Self()
	return models.DiscoveryInfo{
		Port:          self.Port,
		PID:           self.PID,
		KeyHeader:     b.cfg.KeyHeader,
		DefaultAPIKey: b.apiKey(),
		BaseURL:       b.BaseURL(),
		InstanceID:    self.ID,
	}
}

// Shutdown stops the bridge. Every step runs even if an earlier one fails;
// the combined error is returned for logging only.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.shutdownOnce.Do(func() {
		b.shutdownErr = b.shutdown(ctx)
	})
	return b.shutdownErr
}

func (b *Bridge) shutdown(ctx context.Context) error {
	timeout := b.cfg.ShutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	log.Println("🛑 [DAEMON] Shutting down bridge...")

	var errs []error
	step := func(name string, fn func() error) {
		defer func() {
			if r := recover(); r != nil {
				errs = append(errs, fmt.Errorf("%s: panic: %v", name, r))
			}
		}()
		if err := fn(); err != nil {
			log.Printf("⚠️  [DAEMON] %s: %v", name, err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	step("stop jobs", func() error {
		if b.scheduler == nil {
			return nil
		}
		return b.scheduler.Stop()
	})
	b.cancel()

	step("close websockets", func() error {
		if !b.connections.CloseAll(timeout) {
			return errors.New("subscribers did not close in time")
		}
		return nil
	})
	step("stop listener", func() error {
		if b.app == nil {
			return nil
		}
		return b.app.ShutdownWithTimeout(timeout)
	})
	step("stop automation thread", func() error {
		if !b.thread.Stop(timeout) {
			return errors.New("automation thread did not stop in time")
		}
		return nil
	})
	step("remove discovery descriptor", func() error {
		if b.registry == nil || !b.registry.IsPrimary() {
			return nil
		}
		removed, err := services.RemoveDiscovery(b.cfg.DiscoveryFile, b.registry.Self().PID)
		if removed {
			log.Printf("🧹 [DAEMON] Removed discovery descriptor %s", b.cfg.DiscoveryFile)
		}
		return err
	})

	log.Println("✅ [DAEMON] Bridge stopped")
	return errors.Join(errs...)
}

// Run starts the bridge and blocks until ctx is cancelled, SIGINT or SIGTERM
// arrives, or the listener stops
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
	case sig := <-sigChan:
		slog.Info("signal received", "signal", sig.String())
	case <-b.served:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), b.cfg.ShutdownTimeout)
	defer cancel()
	if err := b.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown completed with errors", "error", err)
	}
	return nil
}

// Port is the bound port; zero before Start
func (b *Bridge) Port() int {
	if b.listener == nil {
		return 0
	}
	return b.listener.Addr().(*net.TCPAddr).Port
}

// IsPrimary reports whether this bridge owns the well-known port
func (b *Bridge) IsPrimary() bool {
	return b.registry != nil && b.registry.IsPrimary()
}

// InstanceID is this bridge's id; empty before Start
func (b *Bridge) InstanceID() string {
	if b.registry == nil {
		return ""
	}
	return b.registry.Self().ID
}

// BaseURL is the address clients use to reach this bridge
func (b *Bridge) BaseURL() string {
	return b.cfg.BaseURL(b.Port())
}

// Registry exposes the instance table
func (b *Bridge) Registry() *services.InstanceRegistry {
	return b.registry
}

// Host is the engine this bridge drives
func (b *Bridge) Host() engine.Host {
	return b.host
}

// Heartbeats reports the secondary's heartbeat counters
func (b *Bridge) Heartbeats() (sent, failures int64) {
	if b.client == nil {
		return 0, 0
	}
	return b.client.Stats()
}

// JobStatus reports the background jobs this bridge runs
func (b *Bridge) JobStatus() []jobs.JobStatus {
	if b.scheduler == nil {
		return nil
	}
	return b.scheduler.GetStatus()
}
