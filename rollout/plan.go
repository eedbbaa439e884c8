// Package rollout implements the staged rollout state machine: a strictly
// ordered sequence of deploy, test and upgrade phases across two release
// lines and three protocol block-version checkpoints, executed against a
// single shared namespace to validate upgrade-in-place semantics rather
// than fresh-install correctness.
package rollout

import (
	"fmt"

	"github.com/ledgerline/ledgerline/models"
)

// Block version checkpoints exercised by the plan.
const (
	BlockV0 models.BlockVersion = 0
	BlockV2 models.BlockVersion = 2
	BlockV3 models.BlockVersion = 3
)

// Options parameterizes plan construction and execution.
type Options struct {
	// Line1Version is the oldest supported release line, deployed at
	// block 0 to prove backward compatibility.
	Line1Version string
	// Line2Version is the previous release line, deployed at block 0 and
	// upgraded in place through block 2.
	Line2Version string
	// AlwaysTeardown makes teardown of ephemeral namespaces best-effort
	// on failure too, instead of only on the success path. Off by
	// default: a mid-sequence failure leaves the namespace stopped for
	// inspection, pending the next run's reset.
	AlwaysTeardown bool
}

// BuildPlan produces the rollout phase sequence for one run. The current
// build's version comes from the resolved metadata; the two earlier
// release lines come from options.
//
// Deploy phases alternate ingest colors (blue, green, blue) so each new
// deployment targets the color not currently serving.
func BuildPlan(meta models.EnvironmentMetadata, opts Options) []models.RolloutPhase {
	return []models.RolloutPhase{
		{Name: "deploy-line1", Kind: models.PhaseDeploy, Block: BlockV0, Color: models.ColorBlue, Minting: false, Version: opts.Line1Version},
		{Name: "test-line1-block0", Kind: models.PhaseTest, Block: BlockV0, Color: models.ColorBlue},
		{Name: "deploy-line2", Kind: models.PhaseDeploy, Block: BlockV0, Color: models.ColorGreen, Minting: true, Version: opts.Line2Version},
		{Name: "test-line2-block0", Kind: models.PhaseTest, Block: BlockV0, Color: models.ColorGreen},
		{Name: "upgrade-line2-block2", Kind: models.PhaseUpgrade, Block: BlockV2, Minting: true, Version: opts.Line2Version},
		{Name: "test-line2-block2", Kind: models.PhaseTest, Block: BlockV2, Color: models.ColorGreen},
		{Name: "deploy-current", Kind: models.PhaseDeploy, Block: BlockV2, Color: models.ColorBlue, Minting: true, Version: meta.VersionTag},
		{Name: "test-current-block2", Kind: models.PhaseTest, Block: BlockV2, Color: models.ColorBlue, FogLoad: true},
		{Name: "upgrade-current-block3", Kind: models.PhaseUpgrade, Block: BlockV3, Minting: true, Version: meta.VersionTag},
		{Name: "test-current-block3", Kind: models.PhaseTest, Block: BlockV3, Color: models.ColorBlue, FogLoad: true},
	}
}

// ValidatePlan checks the plan invariants:
//   - block versions are monotonically non-decreasing
//   - no two consecutive deploy phases use the same ingest color
//   - deploy and upgrade phases carry a release version
func ValidatePlan(plan []models.RolloutPhase) error {
	var lastBlock models.BlockVersion
	var lastDeployColor models.IngestColor
	haveDeploy := false

	for i, phase := range plan {
		if phase.Block < lastBlock {
			return fmt.Errorf("phase %s decreases block version %d -> %d", phase.Name, lastBlock, phase.Block)
		}
		lastBlock = phase.Block

		switch phase.Kind {
		case models.PhaseDeploy:
			if haveDeploy && phase.Color == lastDeployColor {
				return fmt.Errorf("phase %s repeats ingest color %s of the previous deploy", phase.Name, phase.Color)
			}
			lastDeployColor = phase.Color
			haveDeploy = true
			if phase.Version == "" {
				return fmt.Errorf("deploy phase %s has no release version", phase.Name)
			}
		case models.PhaseUpgrade:
			if phase.Version == "" {
				return fmt.Errorf("upgrade phase %s has no release version", phase.Name)
			}
		case models.PhaseTest:
			// nothing beyond the block monotonicity above
		default:
			return fmt.Errorf("phase %d has unknown kind %q", i, phase.Kind)
		}
	}
	return nil
}
