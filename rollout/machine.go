package rollout

import (
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/ledgerline/ledgerline/cluster"
	"github.com/ledgerline/ledgerline/models"
)

// Machine executes a rollout plan strictly sequentially against one shared
// namespace. Each phase is gated on the previous phase's success; any
// failure halts the machine immediately with no automatic retry or
// rollback of the already-mutated namespace.
type Machine struct {
	cp     cluster.ControlPlane
	life   *cluster.Lifecycle
	logger log.Logger
}

// NewMachine wires a rollout machine.
func NewMachine(cp cluster.ControlPlane, life *cluster.Lifecycle, logger log.Logger) *Machine {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Machine{
		cp:     cp,
		life:   life,
		logger: log.With(logger, "component", "rollout"),
	}
}

// Execute resets the namespace, runs every phase in order, and tears the
// namespace down at the end of ephemeral (pull request) runs. On failure
// teardown only happens when Options.AlwaysTeardown is set, and then only
// best-effort: the phase failure is what gets returned.
func (m *Machine) Execute(ctx context.Context, trigger models.TriggerContext, meta models.EnvironmentMetadata, plan []models.RolloutPhase, opts Options) error {
	if err := ValidatePlan(plan); err != nil {
		return err
	}

	// Guarantee no leftover state from a previous run interferes.
	if err := m.life.Reset(ctx, meta.Namespace); err != nil {
		return err
	}

	for _, phase := range plan {
		if err := m.runPhase(ctx, meta, phase); err != nil {
			level.Error(m.logger).Log("phase", phase.Name, "halted", true, "err", err)
			if opts.AlwaysTeardown && cluster.Ephemeral(trigger.Event) {
				if terr := m.life.Teardown(ctx, meta.Namespace); terr != nil {
					level.Warn(m.logger).Log("namespace", meta.Namespace, "teardown", "best-effort failed", "err", terr)
				}
			}
			return err
		}
	}

	if cluster.Ephemeral(trigger.Event) {
		return m.life.Teardown(ctx, meta.Namespace)
	}
	return nil
}

func (m *Machine) runPhase(ctx context.Context, meta models.EnvironmentMetadata, phase models.RolloutPhase) error {
	level.Info(m.logger).Log(
		"phase", phase.Name,
		"kind", string(phase.Kind),
		"block", int(phase.Block),
		"color", string(phase.Color),
		"minting", phase.Minting,
	)

	switch phase.Kind {
	case models.PhaseDeploy:
		cfg := cluster.ReleaseConfig{
			Namespace: meta.Namespace,
			Version:   phase.Version,
			Block:     phase.Block,
			Color:     phase.Color,
			Minting:   phase.Minting,
		}
		if err := m.cp.Deploy(ctx, cfg); err != nil {
			return models.ErrDeploy(phase.Name, meta, err)
		}

	case models.PhaseTest:
		cfg := cluster.TestConfig{
			Namespace: meta.Namespace,
			Color:     phase.Color,
			Block:     phase.Block,
			FogLoad:   phase.FogLoad,
		}
		if err := m.cp.RunTests(ctx, cfg); err != nil {
			return models.ErrTest(phase.Name, meta, err)
		}

	case models.PhaseUpgrade:
		cfg := cluster.UpgradeConfig{
			Namespace: meta.Namespace,
			Version:   phase.Version,
			Block:     phase.Block,
			Minting:   phase.Minting,
		}
		if err := m.cp.Upgrade(ctx, cfg); err != nil {
			return models.ErrUpgrade(phase.Name, meta, err)
		}
	}
	return nil
}
