package models

import "fmt"

// EventKind classifies what caused a pipeline run
type EventKind string

const (
	EventPullRequest EventKind = "pull_request"
	EventPush        EventKind = "push"
	EventTag         EventKind = "tag"
	EventManual      EventKind = "manual"
)

// TriggerContext carries everything a run knows about its trigger.
// Supplied once per run and immutable thereafter.
type TriggerContext struct {
	Actor    string    // who (or what) caused the run
	Event    EventKind // pull_request, push, tag, manual
	Ref      string    // branch name or tag name
	PRNumber int       // > 0 only for pull_request events
	Message  string    // free-text trigger message (commit message, manual note)
	RunID    string    // unique per run
}

// Identity returns the branch/PR identity used for single-flight
// scheduling: two runs with the same identity never execute concurrently.
func (t TriggerContext) Identity() string {
	if t.Event == EventPullRequest && t.PRNumber > 0 {
		return fmt.Sprintf("pr/%d", t.PRNumber)
	}
	return string(t.Event) + "/" + t.Ref
}
