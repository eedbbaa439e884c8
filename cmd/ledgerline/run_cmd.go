package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ledgerline/ledgerline"
)

type runOpts struct {
	*rootOpts
	trigger triggerFlags
}

func newRun(parent *rootOpts) *runOpts {
	return &runOpts{rootOpts: parent}
}

func (opts *runOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the full pipeline for one trigger",
		Args:  cobra.NoArgs,
		RunE:  opts.RunE,
	}
	opts.trigger.addFlags(cmd)
	return cmd
}

func (opts *runOpts) RunE(cmd *cobra.Command, _ []string) error {
	trigger, err := opts.trigger.context()
	if err != nil {
		return err
	}

	runner, err := opts.newRunner(cmd.Context())
	if err != nil {
		return err
	}

	report, runErr := runner.Run(cmd.Context(), trigger)
	printReport(cmd.OutOrStdout(), report)
	return runErr
}

func printReport(w io.Writer, report *ledgerline.RunReport) {
	if report == nil {
		return
	}
	fmt.Fprintf(w, "run       %s\n", report.Trigger.RunID)
	fmt.Fprintf(w, "identity  %s\n", report.Trigger.Identity())
	fmt.Fprintf(w, "namespace %s\n", report.Meta.Namespace)
	fmt.Fprintf(w, "version   %s\n", report.Meta.VersionTag)

	ids := make([]string, 0, len(report.Stages))
	for id := range report.Stages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		result := report.Stages[id]
		if result.Err != nil {
			fmt.Fprintf(w, "  %-20s %-10s %v\n", id, result.Status, result.Err)
			continue
		}
		fmt.Fprintf(w, "  %-20s %s\n", id, result.Status)
	}

	if report.Err != nil {
		fmt.Fprintf(w, "error: %v\n", report.Err)
	}
}
