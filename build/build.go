// Package build runs the two compiled artifact group builds behind the
// artifact cache gate: the hardware/enclave group and the gateway group.
package build

import (
	"context"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/ledgerline/ledgerline/cache"
	"github.com/ledgerline/ledgerline/models"
)

// Outputs is the filesystem-like result of a toolchain invocation: one
// entry per produced file.
type Outputs map[string][]byte

// Toolchain is the external build collaborator. Nonzero exit surfaces as a
// non-nil error and is a hard failure.
type Toolchain interface {
	Build(ctx context.Context, group models.ArtifactGroup, targets []string) (Outputs, error)
}

// Measurer is the signing/measurement collaborator: given a signed enclave
// object it returns the measurement artifact of its measured region,
// one-to-one with the input.
type Measurer interface {
	Measure(ctx context.Context, name string, signedObject []byte) ([]byte, error)
}

// DefaultEnclaveTargets is the fixed target list of the enclave group.
var DefaultEnclaveTargets = []string{
	"consensus-service",
	"ingest-server",
	"view-server",
	"report-server",
	"ledger-server",
}

// DefaultGatewayTargets is the fixed target list of the gateway group.
var DefaultGatewayTargets = []string{
	"gateway",
	"watcher",
	"test-client",
	"bootstrap-tools",
}

const (
	signedSuffix   = ".signed.so"
	measurementExt = ".css"
)

// SignedObjectName returns the name of the signed enclave object produced
// for a target.
func SignedObjectName(target string) string {
	return target + "-enclave" + signedSuffix
}

// MeasurementName derives the measurement file name from a signed binary
// name by stripping the signed suffix.
func MeasurementName(signedName string) string {
	return strings.TrimSuffix(signedName, signedSuffix) + measurementExt
}

// Builder executes cache-gated group builds.
type Builder struct {
	toolchain Toolchain
	measurer  Measurer
	store     cache.Store
	buster    string
	logger    log.Logger

	enclaveTargets []string
	gatewayTargets []string
}

// NewBuilder wires a builder with its collaborators. The buster is the
// externally supplied cache invalidation value.
func NewBuilder(toolchain Toolchain, measurer Measurer, store cache.Store, buster string, logger log.Logger) *Builder {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Builder{
		toolchain:      toolchain,
		measurer:       measurer,
		store:          store,
		buster:         buster,
		logger:         log.With(logger, "component", "build"),
		enclaveTargets: DefaultEnclaveTargets,
		gatewayTargets: DefaultGatewayTargets,
	}
}

// SetTargets overrides the fixed target lists (configuration hook).
func (b *Builder) SetTargets(enclave, gateway []string) {
	if len(enclave) > 0 {
		b.enclaveTargets = enclave
	}
	if len(gateway) > 0 {
		b.gatewayTargets = gateway
	}
}

// Targets returns the fixed target list of a group.
func (b *Builder) Targets(group models.ArtifactGroup) []string {
	if group == models.GroupEnclave {
		return b.enclaveTargets
	}
	return b.gatewayTargets
}

// Key returns the cache key a build of the group with the given source
// fingerprint resolves to.
func (b *Builder) Key(group models.ArtifactGroup, fingerprint string) models.CacheKey {
	return models.CacheKey{Group: group, Buster: b.buster, Fingerprint: fingerprint}
}

// BuildGroup builds one artifact group, short-circuiting on a cache hit.
// On a miss the toolchain runs, outputs are collected into a bundle, and
// the bundle is recorded under the key.
func (b *Builder) BuildGroup(ctx context.Context, group models.ArtifactGroup, fingerprint string) (*models.ArtifactBundle, error) {
	key := b.Key(group, fingerprint)

	if cached, hit, err := b.store.Lookup(ctx, key); err != nil {
		return nil, models.ErrBuild(group, "cache lookup", err)
	} else if hit {
		level.Debug(b.logger).Log("group", group, "key", key.String(), "cache", "hit")
		return cached, nil
	}

	targets := b.Targets(group)
	level.Info(b.logger).Log("group", group, "targets", len(targets), "cache", "miss")

	outputs, err := b.toolchain.Build(ctx, group, targets)
	if err != nil {
		return nil, models.ErrBuild(group, "toolchain", err)
	}

	artifacts, err := b.collect(ctx, group, targets, outputs)
	if err != nil {
		return nil, err
	}

	bundle := &models.ArtifactBundle{
		Group:     group,
		Key:       key,
		Artifacts: artifacts,
		CreatedAt: time.Now(),
	}
	if err := b.store.Save(ctx, bundle); err != nil {
		return nil, models.ErrBuild(group, "cache save", err)
	}
	return bundle, nil
}

// collect verifies every expected output exists and, for the enclave
// group, derives one measurement file per signed object.
func (b *Builder) collect(ctx context.Context, group models.ArtifactGroup, targets []string, outputs Outputs) ([]models.Artifact, error) {
	var artifacts []models.Artifact

	for _, target := range targets {
		content, ok := outputs[target]
		if !ok {
			return nil, models.ErrBuild(group, "missing expected output "+target, nil)
		}
		artifacts = append(artifacts, artifact(target, content))

		if group != models.GroupEnclave {
			continue
		}

		signedName := SignedObjectName(target)
		signed, ok := outputs[signedName]
		if !ok {
			return nil, models.ErrBuild(group, "missing signed object "+signedName, nil)
		}
		artifacts = append(artifacts, artifact(signedName, signed))

		measurement, err := b.measurer.Measure(ctx, signedName, signed)
		if err != nil {
			return nil, models.ErrBuild(group, "measuring "+signedName, err)
		}
		artifacts = append(artifacts, artifact(MeasurementName(signedName), measurement))
	}

	return artifacts, nil
}

func artifact(name string, content []byte) models.Artifact {
	return models.Artifact{
		Name:   name,
		Digest: cache.Fingerprint(content),
		Size:   int64(len(content)),
	}
}
