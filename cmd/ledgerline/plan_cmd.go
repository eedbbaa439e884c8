package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ledgerline/ledgerline"
	"github.com/ledgerline/ledgerline/gate"
	"github.com/ledgerline/ledgerline/models"
)

type planOpts struct {
	*rootOpts
	trigger triggerFlags
}

func newPlan(parent *rootOpts) *planOpts {
	return &planOpts{rootOpts: parent}
}

func (opts *planOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Resolve a trigger without executing anything",
		Args:  cobra.NoArgs,
		RunE:  opts.RunE,
	}
	opts.trigger.addFlags(cmd)
	return cmd
}

func (opts *planOpts) RunE(cmd *cobra.Command, _ []string) error {
	trigger, err := opts.trigger.context()
	if err != nil {
		return err
	}

	runner, err := opts.newRunner(cmd.Context())
	if err != nil {
		return err
	}

	report, err := runner.Plan(trigger)
	if err != nil {
		return err
	}
	printPlan(cmd.OutOrStdout(), report)
	return nil
}

func printPlan(w io.Writer, report *ledgerline.RunReport) {
	fmt.Fprintf(w, "identity  %s\n", report.Trigger.Identity())
	fmt.Fprintf(w, "namespace %s\n", report.Meta.Namespace)
	fmt.Fprintf(w, "version   %s\n", report.Meta.VersionTag)

	fmt.Fprintln(w, "classes:")
	for _, class := range []gate.Class{gate.ClassBuild, gate.ClassDocker, gate.ClassCharts, gate.ClassDeploy} {
		verdict := "run"
		if !report.Decisions.ShouldRun(class) {
			verdict = "skip"
		}
		fmt.Fprintf(w, "  %-8s %s\n", class, verdict)
	}

	fmt.Fprintln(w, "phases:")
	for i, phase := range report.Plan {
		line := fmt.Sprintf("  %2d. %-24s %-7s block=%d version=%s", i+1, phase.Name, phase.Kind, phase.Block, phase.Version)
		if phase.Kind == models.PhaseDeploy {
			line += fmt.Sprintf(" ingest=%s", phase.Color)
		}
		if phase.Minting {
			line += " minting"
		}
		if phase.FogLoad {
			line += " fog-load"
		}
		fmt.Fprintln(w, line)
	}
}
