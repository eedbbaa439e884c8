package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/ledgerline/ledgerline/trigger"
)

type serveOpts struct {
	*rootOpts
	Listen string
}

func newServe(parent *rootOpts) *serveOpts {
	return &serveOpts{rootOpts: parent}
}

func (opts *serveOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept trigger webhooks and run pipelines for them",
		Args:  cobra.NoArgs,
		RunE:  opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.Listen, "listen", "l", "",
		"bind address; overrides the configured one")
	return cmd
}

func (opts *serveOpts) RunE(cmd *cobra.Command, _ []string) error {
	runner, err := opts.newRunner(cmd.Context())
	if err != nil {
		return err
	}

	listen := opts.Config.Listen
	if opts.Listen != "" {
		listen = opts.Listen
	}

	server := trigger.NewServer(runner, opts.Logger)
	srv := &http.Server{Addr: listen, Handler: server.Routes()}

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()
	go func() {
		level.Info(opts.Logger).Log("listen", listen)
		errc <- srv.ListenAndServe()
	}()

	reason := <-errc
	level.Info(opts.Logger).Log("shutdown", reason)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	server.WaitIdle()
	return nil
}
