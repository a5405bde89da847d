package jobs

import (
	"context"
	"time"

	"agenticdebugger/internal/permissions"
	"agenticdebugger/internal/services"
)

// Job names
const (
	RegistrySweepJobName   = "registry-sweep"
	HeartbeatJobName       = "heartbeat"
	SnapshotRefreshJobName = "snapshot-refresh"
	PolicyRefreshJobName   = "policy-refresh"
)

// RegistrySweepJob evicts instances that stopped heartbeating. Primary only.
type RegistrySweepJob struct {
	registry *services.InstanceRegistry
	interval time.Duration
}

// NewRegistrySweepJob creates a sweep job
func NewRegistrySweepJob(registry *services.InstanceRegistry, interval time.Duration) *RegistrySweepJob {
	return &RegistrySweepJob{registry: registry, interval: interval}
}

func (j *RegistrySweepJob) Name() string            { return RegistrySweepJobName }
func (j *RegistrySweepJob) Interval() time.Duration { return j.interval }

// Run evicts stale entries
func (j *RegistrySweepJob) Run(ctx context.Context) error {
	j.registry.Sweep()
	return nil
}

// HeartbeatJob republishes a secondary's record to the primary
type HeartbeatJob struct {
	client   *services.RegistrationClient
	interval time.Duration
}

// NewHeartbeatJob creates a heartbeat job
func NewHeartbeatJob(client *services.RegistrationClient, interval time.Duration) *HeartbeatJob {
	return &HeartbeatJob{client: client, interval: interval}
}

func (j *HeartbeatJob) Name() string            { return HeartbeatJobName }
func (j *HeartbeatJob) Interval() time.Duration { return j.interval }

// Run posts one heartbeat
func (j *HeartbeatJob) Run(ctx context.Context) error {
	return j.client.Heartbeat(ctx)
}

// SnapshotRefreshJob recaptures engine state when the automation thread is idle
type SnapshotRefreshJob struct {
	executor *services.CommandExecutor
	interval time.Duration
}

// NewSnapshotRefreshJob creates a refresh job
func NewSnapshotRefreshJob(executor *services.CommandExecutor, interval time.Duration) *SnapshotRefreshJob {
	return &SnapshotRefreshJob{executor: executor, interval: interval}
}

func (j *SnapshotRefreshJob) Name() string            { return SnapshotRefreshJobName }
func (j *SnapshotRefreshJob) Interval() time.Duration { return j.interval }

// Run refreshes the snapshot cache
func (j *SnapshotRefreshJob) Run(ctx context.Context) error {
	_, err := j.executor.RefreshSnapshot(ctx)
	return err
}

// PolicyRefreshJob pulls the permission policy from its source
type PolicyRefreshJob struct {
	provider *permissions.Provider
	interval time.Duration
}

// NewPolicyRefreshJob creates a policy refresh job
func NewPolicyRefreshJob(provider *permissions.Provider, interval time.Duration) *PolicyRefreshJob {
	return &PolicyRefreshJob{provider: provider, interval: interval}
}

func (j *PolicyRefreshJob) Name() string            { return PolicyRefreshJobName }
func (j *PolicyRefreshJob) Interval() time.Duration { return j.interval }

// Run refreshes the cached policy
func (j *PolicyRefreshJob) Run(ctx context.Context) error {
	return j.provider.Refresh(ctx)
}
