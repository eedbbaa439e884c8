package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ledgerline/ledgerline/models"
)

// triggerFlags are the flags shared by run and plan that describe the
// trigger being simulated from the command line.
type triggerFlags struct {
	Actor    string
	Event    string
	Ref      string
	PRNumber int
	Message  string
}

func (f *triggerFlags) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Actor, "actor", "", "identity that caused the trigger")
	cmd.Flags().StringVar(&f.Event, "event", string(models.EventManual), "trigger event kind: pull_request, push, tag or manual")
	cmd.Flags().StringVar(&f.Ref, "ref", "", "branch or tag reference")
	cmd.Flags().IntVar(&f.PRNumber, "pr", 0, "pull request number, for pull_request events")
	cmd.Flags().StringVar(&f.Message, "message", "", "commit or trigger message, scanned for opt-out markers")
}

func (f *triggerFlags) context() (models.TriggerContext, error) {
	kind := models.EventKind(f.Event)
	switch kind {
	case models.EventPullRequest, models.EventPush, models.EventTag, models.EventManual:
	default:
		return models.TriggerContext{}, fmt.Errorf("unknown event kind %q", f.Event)
	}
	if kind == models.EventPullRequest && f.PRNumber == 0 {
		return models.TriggerContext{}, fmt.Errorf("pull_request events need --pr")
	}
	return models.TriggerContext{
		Actor:    f.Actor,
		Event:    kind,
		Ref:      f.Ref,
		PRNumber: f.PRNumber,
		Message:  f.Message,
	}, nil
}
