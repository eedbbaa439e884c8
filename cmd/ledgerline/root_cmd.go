package main

import (
	"context"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/ledgerline/ledgerline"
	"github.com/ledgerline/ledgerline/cache"
	"github.com/ledgerline/ledgerline/config"
	"github.com/ledgerline/ledgerline/extern"
	"github.com/ledgerline/ledgerline/metrics"
)

type rootOpts struct {
	ConfigPath string
	Verbose    bool

	Config *config.Config
	Logger log.Logger
}

func newRoot() *rootOpts {
	return &rootOpts{}
}

var rootLongHelp = strings.TrimSpace(`
ledgerline drives the staged deployment-and-verification pipeline of a
ledger network.

Workflow:
  ledgerline plan --event tag --ref release/1.2.3   # What would a run do?
  ledgerline run --event push --ref main            # Build, publish, roll out, verify.
  ledgerline serve                                  # Accept trigger webhooks.
`)

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "ledgerline",
		Long:              rootLongHelp,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: opts.PersistentPreRunE,
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "",
		"path to the YAML configuration file; stock defaults apply when unset")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false,
		"emit debug-level logs")
	return cmd
}

func (opts *rootOpts) PersistentPreRunE(*cobra.Command, []string) error {
	logger := log.NewLogfmtLogger(os.Stderr)
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	if opts.Verbose {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	opts.Logger = logger

	if opts.ConfigPath == "" {
		opts.Config = config.Default()
		return nil
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	opts.Config = cfg
	return nil
}

// newRunner wires a runner against the configured external tools and
// cache backend.
func (opts *rootOpts) newRunner(ctx context.Context) (*ledgerline.Runner, error) {
	var store cache.Store
	switch opts.Config.Cache.Backend {
	case "s3":
		s3store, err := cache.NewS3Store(ctx, opts.Config.Cache.Bucket, opts.Config.Cache.Prefix)
		if err != nil {
			return nil, err
		}
		store = s3store
	default:
		store = cache.NewMemoryStore()
	}

	driver := extern.NewDriver(opts.Config.Commands, opts.Logger)

	runner := ledgerline.NewRunner(opts.Config, ledgerline.Collaborators{
		Toolchain:    driver,
		Measurer:     driver,
		Fingerprints: driver,
		Cache:        store,
		Base:         driver,
		Images:       driver,
		Charts:       driver.Charts(),
		Cluster:      driver,
	}, opts.Logger)
	runner.AddListener(metrics.Listener())
	return runner, nil
}
