// Package gate decides which pipeline stages run for a given trigger.
//
// The trigger context is resolved exactly once into a Decisions value;
// stages consult the resolved decisions instead of re-parsing the trigger
// message per stage.
package gate

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/ledgerline/ledgerline/models"
)

// Class groups stages that share an opt-out marker.
type Class string

const (
	// ClassMetadata is never suppressed: resolving metadata is harmless
	// and everything else needs it.
	ClassMetadata Class = "metadata"
	ClassBuild    Class = "build"
	ClassDocker   Class = "docker"
	ClassCharts   Class = "charts"
	// ClassDeploy covers the environment lifecycle and rollout stages.
	ClassDeploy Class = "deploy"
)

// Config controls gate resolution.
type Config struct {
	// BotActors are actor identities whose runs are suppressed entirely
	// (dependency update bots).
	BotActors []string
	// Markers maps a stage class to the opt-out substring looked up in
	// the trigger message. Classes are evaluated independently.
	Markers map[Class]string
	// Conditions maps a stage class to a JavaScript expression over the
	// trigger context; a false result skips the class. Evaluated exactly
	// once, at resolution time.
	Conditions map[Class]string
}

// DefaultConfig returns the stock gate configuration.
func DefaultConfig() Config {
	return Config{
		BotActors: []string{"dependabot[bot]"},
		Markers: map[Class]string{
			ClassBuild:  "[skip build]",
			ClassDocker: "[skip docker]",
			ClassCharts: "[skip charts]",
		},
	}
}

// Decisions is the per-run gate state, resolved once from the trigger.
type Decisions struct {
	trigger     models.TriggerContext
	suppressAll bool
	skipped     map[Class]bool
}

// Resolve evaluates the gate rules against a trigger context. Pure; no
// side effects. A malformed condition expression is a configuration
// error and fails resolution.
func Resolve(trigger models.TriggerContext, cfg Config) (Decisions, error) {
	d := Decisions{
		trigger: trigger,
		skipped: make(map[Class]bool),
	}

	for _, bot := range cfg.BotActors {
		if trigger.Actor == bot {
			d.suppressAll = true
			return d, nil
		}
	}

	for class, marker := range cfg.Markers {
		if marker != "" && strings.Contains(trigger.Message, marker) {
			d.skipped[class] = true
		}
	}

	for class, expr := range cfg.Conditions {
		if expr == "" {
			continue
		}
		ok, err := d.Condition(expr)
		if err != nil {
			return d, fmt.Errorf("gate condition for class %s: %w", class, err)
		}
		if !ok {
			d.skipped[class] = true
		}
	}

	return d, nil
}

// SuppressAll reports whether the whole run (except metadata) is suppressed.
func (d Decisions) SuppressAll() bool {
	return d.suppressAll
}

// ShouldRun reports whether stages of the given class execute. A false
// result is a neutral skip, not an error.
func (d Decisions) ShouldRun(class Class) bool {
	if class == ClassMetadata {
		return true
	}
	if d.suppressAll {
		return false
	}
	return !d.skipped[class]
}

// Predicate returns a predicate function for the given class, suitable for
// attaching to a pipeline stage.
func (d Decisions) Predicate(class Class) func() bool {
	return func() bool { return d.ShouldRun(class) }
}

// Condition evaluates a JavaScript expression against the trigger context
// and returns its boolean value. The expression sees the bindings `actor`,
// `event`, `ref`, `message` and `pr`.
func (d Decisions) Condition(expr string) (bool, error) {
	runtime := goja.New()

	if err := runtime.Set("actor", d.trigger.Actor); err != nil {
		return false, err
	}
	if err := runtime.Set("event", string(d.trigger.Event)); err != nil {
		return false, err
	}
	if err := runtime.Set("ref", d.trigger.Ref); err != nil {
		return false, err
	}
	if err := runtime.Set("message", d.trigger.Message); err != nil {
		return false, err
	}
	if err := runtime.Set("pr", d.trigger.PRNumber); err != nil {
		return false, err
	}

	value, err := runtime.RunString(expr)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate condition %q: %w", expr, err)
	}

	return value.ToBoolean(), nil
}
