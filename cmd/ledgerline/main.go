package main

import "os"

func main() {
	root := newRoot()

	rootCmd := root.Command()
	rootCmd.AddCommand(
		newRun(root).Command(),
		newPlan(root).Command(),
		newServe(root).Command(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
