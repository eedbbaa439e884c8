package build

import (
	"context"
	"fmt"
	"testing"

	"github.com/ledgerline/ledgerline/cache"
	"github.com/ledgerline/ledgerline/models"
)

// mockToolchain produces one output per target, plus signed objects for
// the enclave group when withSigned is set.
type mockToolchain struct {
	calls      int
	withSigned bool
	omit       string // target (or signed object) to leave out of the outputs
	err        error
}

func (m *mockToolchain) Build(_ context.Context, group models.ArtifactGroup, targets []string) (Outputs, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := Outputs{}
	for _, target := range targets {
		if target != m.omit {
			out[target] = []byte("binary:" + target)
		}
		if group == models.GroupEnclave && m.withSigned {
			name := SignedObjectName(target)
			if name != m.omit {
				out[name] = []byte("signed:" + target)
			}
		}
	}
	return out, nil
}

type mockMeasurer struct {
	calls int
	err   error
}

func (m *mockMeasurer) Measure(_ context.Context, name string, signed []byte) ([]byte, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return []byte("measurement of " + name), nil
}

func newTestBuilder(tc *mockToolchain, ms *mockMeasurer, store cache.Store) *Builder {
	return NewBuilder(tc, ms, store, "buster-1", nil)
}

func TestBuildGroup_GatewayCollectsAllTargets(t *testing.T) {
	tc := &mockToolchain{}
	b := newTestBuilder(tc, &mockMeasurer{}, cache.NewMemoryStore())

	bundle, err := b.BuildGroup(context.Background(), models.GroupGateway, "fp")
	if err != nil {
		t.Fatalf("BuildGroup failed: %v", err)
	}

	if len(bundle.Artifacts) != len(DefaultGatewayTargets) {
		t.Errorf("expected %d artifacts, got %d", len(DefaultGatewayTargets), len(bundle.Artifacts))
	}
	for _, target := range DefaultGatewayTargets {
		if _, ok := bundle.Find(target); !ok {
			t.Errorf("missing artifact %q", target)
		}
	}
}

func TestBuildGroup_EnclaveDerivesMeasurements(t *testing.T) {
	tc := &mockToolchain{withSigned: true}
	ms := &mockMeasurer{}
	b := newTestBuilder(tc, ms, cache.NewMemoryStore())

	bundle, err := b.BuildGroup(context.Background(), models.GroupEnclave, "fp")
	if err != nil {
		t.Fatalf("BuildGroup failed: %v", err)
	}

	// binary + signed object + measurement per target
	if want := 3 * len(DefaultEnclaveTargets); len(bundle.Artifacts) != want {
		t.Errorf("expected %d artifacts, got %d", want, len(bundle.Artifacts))
	}
	if ms.calls != len(DefaultEnclaveTargets) {
		t.Errorf("expected one measurement per signed object, got %d calls", ms.calls)
	}

	for _, target := range DefaultEnclaveTargets {
		signed := SignedObjectName(target)
		if _, ok := bundle.Find(signed); !ok {
			t.Errorf("missing signed object %q", signed)
		}
		if _, ok := bundle.Find(MeasurementName(signed)); !ok {
			t.Errorf("missing measurement for %q", signed)
		}
	}
}

func TestBuildGroup_CacheHitSkipsToolchain(t *testing.T) {
	tc := &mockToolchain{withSigned: true}
	store := cache.NewMemoryStore()
	b := newTestBuilder(tc, &mockMeasurer{}, store)

	first, err := b.BuildGroup(context.Background(), models.GroupEnclave, "fp")
	if err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	second, err := b.BuildGroup(context.Background(), models.GroupEnclave, "fp")
	if err != nil {
		t.Fatalf("second build failed: %v", err)
	}

	if tc.calls != 1 {
		t.Errorf("expected toolchain to run once, ran %d times", tc.calls)
	}
	if first != second {
		t.Error("cache hit must reuse the same bundle reference")
	}
}

func TestBuildGroup_DifferentFingerprintRebuilds(t *testing.T) {
	tc := &mockToolchain{withSigned: true}
	b := newTestBuilder(tc, &mockMeasurer{}, cache.NewMemoryStore())

	if _, err := b.BuildGroup(context.Background(), models.GroupEnclave, "fp-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.BuildGroup(context.Background(), models.GroupEnclave, "fp-b"); err != nil {
		t.Fatal(err)
	}

	if tc.calls != 2 {
		t.Errorf("different fingerprints must rebuild, toolchain ran %d times", tc.calls)
	}
}

func TestBuildGroup_ToolchainFailureIsBuildFailure(t *testing.T) {
	tc := &mockToolchain{err: fmt.Errorf("exit status 1")}
	b := newTestBuilder(tc, &mockMeasurer{}, cache.NewMemoryStore())

	_, err := b.BuildGroup(context.Background(), models.GroupGateway, "fp")
	if err == nil {
		t.Fatal("expected build failure")
	}
	if _, ok := err.(*models.BuildFailure); !ok {
		t.Errorf("expected *models.BuildFailure, got %T", err)
	}
}

func TestBuildGroup_MissingOutputIsBuildFailure(t *testing.T) {
	tc := &mockToolchain{withSigned: true, omit: "watcher"}
	b := newTestBuilder(tc, &mockMeasurer{}, cache.NewMemoryStore())

	_, err := b.BuildGroup(context.Background(), models.GroupGateway, "fp")
	if err == nil {
		t.Fatal("expected build failure for missing output")
	}
}

func TestBuildGroup_MissingSignedObjectIsBuildFailure(t *testing.T) {
	tc := &mockToolchain{withSigned: true, omit: SignedObjectName("view-server")}
	b := newTestBuilder(tc, &mockMeasurer{}, cache.NewMemoryStore())

	_, err := b.BuildGroup(context.Background(), models.GroupEnclave, "fp")
	if err == nil {
		t.Fatal("expected build failure for missing signed object")
	}
}

func TestBuildGroup_MeasurerFailureIsBuildFailure(t *testing.T) {
	tc := &mockToolchain{withSigned: true}
	ms := &mockMeasurer{err: fmt.Errorf("sgx_sign: bad object")}
	b := newTestBuilder(tc, ms, cache.NewMemoryStore())

	_, err := b.BuildGroup(context.Background(), models.GroupEnclave, "fp")
	if err == nil {
		t.Fatal("expected build failure for measurer error")
	}
}

func TestMeasurementName(t *testing.T) {
	got := MeasurementName("consensus-service-enclave.signed.so")
	if got != "consensus-service-enclave.css" {
		t.Errorf("unexpected measurement name %q", got)
	}
}
