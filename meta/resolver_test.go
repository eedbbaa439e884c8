package meta

import (
	"testing"

	"github.com/ledgerline/ledgerline/models"
)

func TestResolve_TagRun(t *testing.T) {
	trigger := models.TriggerContext{
		Event: models.EventTag,
		Ref:   "release/1.2.3",
		RunID: "0123456789abcdef",
	}

	meta, err := Resolve(trigger)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if meta.VersionTag != "1.2.3" {
		t.Errorf("expected version tag '1.2.3', got %q", meta.VersionTag)
	}
	if meta.ImageTag != meta.VersionTag {
		t.Errorf("image tag %q should equal version tag %q", meta.ImageTag, meta.VersionTag)
	}
	if meta.Namespace != "release-1-2-3" {
		t.Errorf("unexpected namespace %q", meta.Namespace)
	}
}

func TestResolve_TagRunWithVPrefix(t *testing.T) {
	trigger := models.TriggerContext{Event: models.EventTag, Ref: "v5.1.0", RunID: "x"}

	meta, err := Resolve(trigger)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if meta.VersionTag != "5.1.0" {
		t.Errorf("expected version tag '5.1.0', got %q", meta.VersionTag)
	}
}

func TestResolve_MalformedTagIsFatal(t *testing.T) {
	trigger := models.TriggerContext{Event: models.EventTag, Ref: "release/not-a-version", RunID: "x"}

	_, err := Resolve(trigger)
	if err == nil {
		t.Fatal("expected resolution error for malformed tag")
	}
	if _, ok := err.(*models.ResolutionError); !ok {
		t.Errorf("expected *models.ResolutionError, got %T", err)
	}
}

func TestResolve_BranchRunIsStable(t *testing.T) {
	trigger := models.TriggerContext{
		Event: models.EventPush,
		Ref:   "feature/Token_Minting",
		RunID: "abcdef0123456789",
	}

	first, err := Resolve(trigger)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	second, err := Resolve(trigger)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if first.Namespace != second.Namespace {
		t.Errorf("namespace not stable across runs: %q vs %q", first.Namespace, second.Namespace)
	}
	if first.Namespace != "feature-token-minting" {
		t.Errorf("unexpected namespace %q", first.Namespace)
	}
	if first.VersionTag != "0.0.0-dev.abcdef01" {
		t.Errorf("unexpected version tag %q", first.VersionTag)
	}
}

func TestResolve_PullRequestNamespace(t *testing.T) {
	trigger := models.TriggerContext{
		Event:    models.EventPullRequest,
		Ref:      "feature/whatever",
		PRNumber: 421,
		RunID:    "deadbeef",
	}

	meta, err := Resolve(trigger)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if meta.Namespace != "pr-421" {
		t.Errorf("expected namespace 'pr-421', got %q", meta.Namespace)
	}
}

func TestResolve_EmptyRefIsFatal(t *testing.T) {
	_, err := Resolve(models.TriggerContext{Event: models.EventPush})
	if err == nil {
		t.Fatal("expected resolution error for empty ref")
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, out string
	}{
		{"main", "main"},
		{"feature/Foo_Bar", "feature-foo-bar"},
		{"release/1.2.3", "release-1-2-3"},
		{"--weird--", "weird"},
		{"UPPER", "upper"},
	}

	for _, c := range cases {
		if got := Normalize(c.in); got != c.out {
			t.Errorf("Normalize(%q) = %q, expected %q", c.in, got, c.out)
		}
	}
}

func TestNormalize_Truncates(t *testing.T) {
	long := ""
	for i := 0; i < 20; i++ {
		long += "abcdefgh/"
	}
	if got := Normalize(long); len(got) > maxNamespaceLen {
		t.Errorf("normalized namespace too long: %d chars", len(got))
	}
}
