// Package ledgerline orchestrates the staged deployment-and-verification
// pipeline of a multi-service ledger network: build, publish, deploy,
// upgrade and test stages sequenced over an explicit dependency graph.
package ledgerline

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/ledgerline/ledgerline/build"
	"github.com/ledgerline/ledgerline/cache"
	"github.com/ledgerline/ledgerline/cluster"
	"github.com/ledgerline/ledgerline/config"
	"github.com/ledgerline/ledgerline/gate"
	"github.com/ledgerline/ledgerline/meta"
	"github.com/ledgerline/ledgerline/models"
	"github.com/ledgerline/ledgerline/publish"
	"github.com/ledgerline/ledgerline/rollout"
)

// FingerprintSource computes the content-derived source fingerprint of an
// artifact group.
type FingerprintSource interface {
	Fingerprint(ctx context.Context, group models.ArtifactGroup) (string, error)
}

// BaseImageRefresher is the base-image refresh collaborator the image
// matrix depends on.
type BaseImageRefresher interface {
	Refresh(ctx context.Context, tag string) error
}

// Collaborators are the external systems a run drives. All are opaque to
// the orchestration core.
type Collaborators struct {
	Toolchain    build.Toolchain
	Measurer     build.Measurer
	Fingerprints FingerprintSource
	Cache        cache.Store
	Base         BaseImageRefresher
	Images       publish.ImageRegistry
	Charts       publish.ChartRegistry
	Cluster      cluster.ControlPlane
}

// Runner assembles and executes the full stage graph for single triggers.
type Runner struct {
	cfg       *config.Config
	collab    Collaborators
	logger    log.Logger
	listeners []models.EventListener
}

// NewRunner wires a runner.
func NewRunner(cfg *config.Config, collab Collaborators, logger log.Logger) *Runner {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Runner{
		cfg:    cfg,
		collab: collab,
		logger: logger,
	}
}

// AddListener registers a listener attached to every run's pipeline.
func (r *Runner) AddListener(listener models.EventListener) {
	r.listeners = append(r.listeners, listener)
}

// RunReport is the outcome of one pipeline run.
type RunReport struct {
	Trigger   models.TriggerContext
	Meta      models.EnvironmentMetadata
	Decisions gate.Decisions
	Plan      []models.RolloutPhase
	Stages    map[string]models.StageResult
	Err       error
}

// Plan resolves a trigger without executing anything: gate decisions,
// environment metadata and the rollout plan the run would follow.
func (r *Runner) Plan(trigger models.TriggerContext) (*RunReport, error) {
	trigger = r.withRunID(trigger)
	decisions, err := gate.Resolve(trigger, r.cfg.GateConfig())
	if err != nil {
		return &RunReport{Trigger: trigger, Err: err}, err
	}

	environment, err := meta.Resolve(trigger)
	if err != nil {
		return &RunReport{Trigger: trigger, Decisions: decisions, Err: err}, err
	}

	return &RunReport{
		Trigger:   trigger,
		Meta:      environment,
		Decisions: decisions,
		Plan:      rollout.BuildPlan(environment, r.rolloutOptions()),
	}, nil
}

// Run executes the full pipeline for one trigger and reports how every
// stage finished. The returned error is the first fatal error, if any.
func (r *Runner) Run(ctx context.Context, trigger models.TriggerContext) (*RunReport, error) {
	trigger = r.withRunID(trigger)
	logger := log.With(r.logger, "run", trigger.RunID, "ref", trigger.Ref)

	decisions, err := gate.Resolve(trigger, r.cfg.GateConfig())
	if err != nil {
		return &RunReport{Trigger: trigger, Err: err}, err
	}

	// Metadata resolution always runs; it is harmless and everything
	// else requires its output.
	environment, err := meta.Resolve(trigger)
	if err != nil {
		return &RunReport{Trigger: trigger, Decisions: decisions, Err: err}, err
	}

	report := &RunReport{
		Trigger:   trigger,
		Meta:      environment,
		Decisions: decisions,
		Plan:      rollout.BuildPlan(environment, r.rolloutOptions()),
		Stages:    map[string]models.StageResult{},
	}

	if decisions.SuppressAll() {
		return report, nil
	}

	pipe, err := r.assemble(decisions, environment, trigger, report)
	if err != nil {
		report.Err = err
		return report, err
	}

	for _, listener := range r.listeners {
		pipe.AddListener(listener)
	}

	level.Info(logger).Log("namespace", environment.Namespace, "version", environment.VersionTag, "event", string(trigger.Event))

	started := time.Now()
	pipe.eventBus.EmitRunStarted(trigger.RunID, trigger)

	runErr := pipe.Execute(ctx)
	report.Stages = pipe.Results()
	report.Err = runErr
	if runErr != nil {
		pipe.eventBus.EmitRunError(trigger.RunID, runErr)
		level.Error(logger).Log("namespace", environment.Namespace, "version", environment.VersionTag, "err", runErr)
	} else {
		pipe.eventBus.EmitRunCompleted(trigger.RunID, time.Since(started))
	}
	pipe.eventBus.Wait()
	return report, runErr
}

// assemble builds the stage graph:
//
//	build-enclave ─┐
//	build-gateway ─┼─ publish-images ── publish-charts ── rollout
//	refresh-base ──┘
func (r *Runner) assemble(decisions gate.Decisions, environment models.EnvironmentMetadata, trigger models.TriggerContext, report *RunReport) (*Pipeline, error) {
	builder := build.NewBuilder(r.collab.Toolchain, r.collab.Measurer, r.collab.Cache, r.cfg.Cache.Buster, r.logger)
	builder.SetTargets(r.cfg.Targets.Enclave, r.cfg.Targets.Gateway)

	imagePub := publish.NewImagePublisher(r.collab.Images, r.cfg.Images, r.cfg.Parallelism, r.logger)
	chartPub := publish.NewChartPublisher(r.collab.Charts, r.cfg.Charts, r.cfg.Parallelism, r.logger)
	machine := rollout.NewMachine(r.collab.Cluster, cluster.NewLifecycle(r.collab.Cluster, r.logger), r.logger)

	// Shared run state. Each field is written by exactly one stage and
	// only read by stages downstream of the writer.
	var (
		enclaveBundle *models.ArtifactBundle
		gatewayBundle *models.ArtifactBundle
		imageResults  []publish.Result
	)

	buildGroup := func(group models.ArtifactGroup, out **models.ArtifactBundle) StageFunc {
		return func(ctx context.Context) error {
			fingerprint, err := r.collab.Fingerprints.Fingerprint(ctx, group)
			if err != nil {
				return models.ErrBuild(group, "fingerprinting sources", err)
			}
			bundle, err := builder.BuildGroup(ctx, group, fingerprint)
			if err != nil {
				return err
			}
			*out = bundle
			return nil
		}
	}

	pipe := NewPipeline(r.logger, r.cfg.Parallelism)

	buildEnclave := NewStage("build-enclave", buildGroup(models.GroupEnclave, &enclaveBundle)).
		When(decisions.Predicate(gate.ClassBuild))
	buildGateway := NewStage("build-gateway", buildGroup(models.GroupGateway, &gatewayBundle)).
		When(decisions.Predicate(gate.ClassBuild))
	refreshBase := NewStage("refresh-base-image", func(ctx context.Context) error {
		return r.collab.Base.Refresh(ctx, environment.ImageTag)
	}).When(decisions.Predicate(gate.ClassDocker))

	publishImages := NewStage("publish-images", func(ctx context.Context) error {
		bundles := map[models.ArtifactGroup]*models.ArtifactBundle{}
		if enclaveBundle != nil {
			bundles[models.GroupEnclave] = enclaveBundle
		}
		if gatewayBundle != nil {
			bundles[models.GroupGateway] = gatewayBundle
		}
		results, err := imagePub.PublishAll(ctx, environment, bundles)
		imageResults = results
		return err
	}).When(decisions.Predicate(gate.ClassDocker))

	publishCharts := NewStage("publish-charts", func(ctx context.Context) error {
		if err := publish.RequireImages(imageResults, len(imagePub.Matrix())); err != nil {
			return err
		}
		_, err := chartPub.PublishAll(ctx, environment)
		return err
	}).When(decisions.Predicate(gate.ClassCharts))

	rolloutStage := NewStage("rollout", func(ctx context.Context) error {
		// A skipped publish class means the artifacts the rollout needs
		// were never produced for this run.
		if !decisions.ShouldRun(gate.ClassDocker) {
			return models.ErrMissingPublished("images")
		}
		if !decisions.ShouldRun(gate.ClassCharts) {
			return models.ErrMissingPublished("charts")
		}
		return machine.Execute(ctx, trigger, environment, report.Plan, r.rolloutOptions())
	}).When(decisions.Predicate(gate.ClassDeploy))

	pipe.AddStage(buildEnclave)
	pipe.AddStage(buildGateway)
	pipe.AddStage(refreshBase)
	if err := pipe.AddStage(publishImages).After(buildEnclave, buildGateway, refreshBase); err != nil {
		return nil, err
	}
	if err := pipe.AddStage(publishCharts).After(publishImages); err != nil {
		return nil, err
	}
	if err := pipe.AddStage(rolloutStage).After(publishCharts); err != nil {
		return nil, err
	}

	return pipe, nil
}

func (r *Runner) rolloutOptions() rollout.Options {
	return rollout.Options{
		Line1Version:   r.cfg.Rollout.Line1Version,
		Line2Version:   r.cfg.Rollout.Line2Version,
		AlwaysTeardown: r.cfg.Rollout.AlwaysTeardown,
	}
}

func (r *Runner) withRunID(trigger models.TriggerContext) models.TriggerContext {
	if trigger.RunID == "" {
		trigger.RunID = uuid.NewString()
	}
	return trigger
}
