package gate

import (
	"testing"

	"github.com/ledgerline/ledgerline/models"
)

func TestResolve_BotSuppressesEverythingExceptMetadata(t *testing.T) {
	trigger := models.TriggerContext{
		Actor:   "dependabot[bot]",
		Event:   models.EventPullRequest,
		Ref:     "dependabot/cargo/serde-1.0.1",
		Message: "Bump serde from 1.0.0 to 1.0.1",
	}

	d, err := Resolve(trigger, DefaultConfig())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if !d.SuppressAll() {
		t.Fatal("expected bot run to be suppressed")
	}
	for _, class := range []Class{ClassBuild, ClassDocker, ClassCharts, ClassDeploy} {
		if d.ShouldRun(class) {
			t.Errorf("class %s should not run for bot trigger", class)
		}
	}
	if !d.ShouldRun(ClassMetadata) {
		t.Error("metadata should always run")
	}
}

func TestResolve_MarkersAreIndependentPerClass(t *testing.T) {
	trigger := models.TriggerContext{
		Actor:   "alice",
		Event:   models.EventPush,
		Ref:     "main",
		Message: "tune ingest batching [skip build]",
	}

	d, err := Resolve(trigger, DefaultConfig())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if d.ShouldRun(ClassBuild) {
		t.Error("build should be skipped")
	}
	// "skip build" must not suppress image publishing; missing artifacts
	// are surfaced downstream instead.
	if !d.ShouldRun(ClassDocker) {
		t.Error("docker should still run")
	}
	if !d.ShouldRun(ClassCharts) {
		t.Error("charts should still run")
	}
}

func TestResolve_MultipleMarkers(t *testing.T) {
	trigger := models.TriggerContext{
		Actor:   "alice",
		Event:   models.EventPush,
		Ref:     "main",
		Message: "docs only [skip build] [skip docker] [skip charts]",
	}

	d, err := Resolve(trigger, DefaultConfig())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	for _, class := range []Class{ClassBuild, ClassDocker, ClassCharts} {
		if d.ShouldRun(class) {
			t.Errorf("class %s should be skipped", class)
		}
	}
	if !d.ShouldRun(ClassDeploy) {
		t.Error("deploy has no marker and should run")
	}
}

func TestResolve_NoMarkersRunsEverything(t *testing.T) {
	trigger := models.TriggerContext{Actor: "alice", Event: models.EventPush, Ref: "main", Message: "fix typo"}

	d, err := Resolve(trigger, DefaultConfig())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	for _, class := range []Class{ClassMetadata, ClassBuild, ClassDocker, ClassCharts, ClassDeploy} {
		if !d.ShouldRun(class) {
			t.Errorf("class %s should run", class)
		}
	}
}

func TestPredicate(t *testing.T) {
	trigger := models.TriggerContext{Actor: "alice", Message: "[skip docker]"}
	d, err := Resolve(trigger, DefaultConfig())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if d.Predicate(ClassDocker)() {
		t.Error("docker predicate should be false")
	}
	if !d.Predicate(ClassBuild)() {
		t.Error("build predicate should be true")
	}
}

func TestCondition(t *testing.T) {
	trigger := models.TriggerContext{
		Actor:    "alice",
		Event:    models.EventPullRequest,
		Ref:      "feature/minting",
		Message:  "enable governors",
		PRNumber: 7,
	}
	d, err := Resolve(trigger, DefaultConfig())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	cases := []struct {
		expr string
		want bool
	}{
		{`event === "pull_request"`, true},
		{`pr > 0 && actor === "alice"`, true},
		{`message.includes("governors")`, true},
		{`ref.startsWith("release/")`, false},
	}

	for _, c := range cases {
		got, err := d.Condition(c.expr)
		if err != nil {
			t.Fatalf("Condition(%q) failed: %v", c.expr, err)
		}
		if got != c.want {
			t.Errorf("Condition(%q) = %v, expected %v", c.expr, got, c.want)
		}
	}
}

func TestCondition_InvalidExpression(t *testing.T) {
	d, err := Resolve(models.TriggerContext{Actor: "alice"}, DefaultConfig())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if _, err := d.Condition("this is not javascript"); err == nil {
		t.Fatal("expected error for invalid expression")
	}
}

func TestResolve_ConditionSkipsClass(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Conditions = map[Class]string{
		ClassDeploy: `event === "tag" || pr > 0`,
	}

	push := models.TriggerContext{Actor: "alice", Event: models.EventPush, Ref: "main"}
	d, err := Resolve(push, cfg)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if d.ShouldRun(ClassDeploy) {
		t.Error("deploy condition is false for a plain push and must skip the class")
	}
	if !d.ShouldRun(ClassBuild) {
		t.Error("other classes are unaffected by the deploy condition")
	}

	pr := models.TriggerContext{Actor: "alice", Event: models.EventPullRequest, PRNumber: 7, Ref: "feature/x"}
	d, err = Resolve(pr, cfg)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !d.ShouldRun(ClassDeploy) {
		t.Error("deploy condition is true for a pull request")
	}
}

func TestResolve_InvalidConditionFailsResolution(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Conditions = map[Class]string{ClassDeploy: "this is not javascript"}

	if _, err := Resolve(models.TriggerContext{Actor: "alice"}, cfg); err == nil {
		t.Fatal("expected resolution error for a malformed condition")
	}
}
