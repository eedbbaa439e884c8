// Package cluster defines the cluster control-plane collaborator and the
// environment lifecycle rules built on top of it.
package cluster

import (
	"context"

	"github.com/ledgerline/ledgerline/models"
)

// ReleaseConfig parameterizes a deploy of one release line into a
// namespace.
type ReleaseConfig struct {
	Namespace string
	Version   string
	Block     models.BlockVersion
	Color     models.IngestColor
	Minting   bool
}

// UpgradeConfig parameterizes an in-place protocol upgrade of a running
// deployment.
type UpgradeConfig struct {
	Namespace string
	Version   string
	Block     models.BlockVersion
	Minting   bool
}

// TestConfig parameterizes a verification pass against a namespace.
type TestConfig struct {
	Namespace string
	Color     models.IngestColor
	Block     models.BlockVersion
	FogLoad   bool // include fog-distribution load generation
}

// ControlPlane is the cluster collaborator. Credentials are opaque to the
// orchestrator and passed through by the implementation; the core never
// inspects or logs them.
type ControlPlane interface {
	// ResetNamespace clears stale workloads. With delete=true it removes
	// the namespace entirely. Both forms are idempotent and safe to
	// invoke redundantly.
	ResetNamespace(ctx context.Context, name string, delete bool) error
	Deploy(ctx context.Context, cfg ReleaseConfig) error
	RunTests(ctx context.Context, cfg TestConfig) error
	Upgrade(ctx context.Context, cfg UpgradeConfig) error
}
