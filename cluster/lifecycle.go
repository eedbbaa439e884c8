package cluster

import (
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/ledgerline/ledgerline/models"
)

// Lifecycle owns namespace creation/reset and deletion. Reset is always
// safe before a fresh deployment; deletion is terminal and only for
// ephemeral (pull request) environments. Trunk namespaces are long-lived
// and reused run to run.
type Lifecycle struct {
	cp     ControlPlane
	logger log.Logger
}

// NewLifecycle wires a lifecycle manager.
func NewLifecycle(cp ControlPlane, logger log.Logger) *Lifecycle {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Lifecycle{
		cp:     cp,
		logger: log.With(logger, "component", "lifecycle"),
	}
}

// Reset performs the non-destructive cleanup: stale workloads are cleared,
// the namespace shell is kept (and created on first use).
func (l *Lifecycle) Reset(ctx context.Context, namespace string) error {
	level.Info(l.logger).Log("namespace", namespace, "op", "reset")
	return errors.Wrapf(l.cp.ResetNamespace(ctx, namespace, false), "resetting namespace %s", namespace)
}

// Teardown fully removes the namespace.
func (l *Lifecycle) Teardown(ctx context.Context, namespace string) error {
	level.Info(l.logger).Log("namespace", namespace, "op", "teardown")
	return errors.Wrapf(l.cp.ResetNamespace(ctx, namespace, true), "deleting namespace %s", namespace)
}

// Ephemeral reports whether the trigger class owns an ephemeral namespace,
// i.e. one that is torn down at the end of the run.
func Ephemeral(event models.EventKind) bool {
	return event == models.EventPullRequest
}
