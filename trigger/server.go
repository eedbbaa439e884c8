// Package trigger exposes the webhook endpoint that turns trigger events
// into pipeline runs, enforcing single-flight execution per branch/PR
// identity.
package trigger

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ledgerline/ledgerline"
	"github.com/ledgerline/ledgerline/metrics"
	"github.com/ledgerline/ledgerline/models"
)

// Launcher runs a pipeline for a trigger. Satisfied by *ledgerline.Runner.
type Launcher interface {
	Run(ctx context.Context, trigger models.TriggerContext) (*ledgerline.RunReport, error)
}

// flight is one in-progress run for an identity.
type flight struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Server accepts trigger webhooks. A new trigger for an identity cancels
// the in-flight run for that identity and waits for it to stop before
// starting, so only one run ever mutates a given namespace.
type Server struct {
	launcher Launcher
	logger   log.Logger

	mu       sync.Mutex
	inflight map[string]*flight
	wg       sync.WaitGroup
}

// NewServer wires a trigger server.
func NewServer(launcher Launcher, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Server{
		launcher: launcher,
		logger:   log.With(logger, "component", "trigger"),
		inflight: make(map[string]*flight),
	}
}

// Routes returns the HTTP routes.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/v1/triggers", s.handleTrigger)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type triggerPayload struct {
	Actor    string `json:"actor"`
	Event    string `json:"event"`
	Ref      string `json:"ref"`
	PRNumber int    `json:"pr_number,omitempty"`
	Message  string `json:"message,omitempty"`
}

type triggerResponse struct {
	RunID    string `json:"run_id"`
	Identity string `json:"identity"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var payload triggerPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	kind := models.EventKind(payload.Event)
	switch kind {
	case models.EventPullRequest, models.EventPush, models.EventTag, models.EventManual:
	default:
		http.Error(w, "unknown event kind: "+payload.Event, http.StatusBadRequest)
		return
	}

	trigger := models.TriggerContext{
		Actor:    payload.Actor,
		Event:    kind,
		Ref:      payload.Ref,
		PRNumber: payload.PRNumber,
		Message:  payload.Message,
		RunID:    uuid.NewString(),
	}

	s.Dispatch(trigger)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(triggerResponse{
		RunID:    trigger.RunID,
		Identity: trigger.Identity(),
	})
}

// Dispatch starts a run for the trigger, cancelling any in-flight run with
// the same identity first.
func (s *Server) Dispatch(trigger models.TriggerContext) {
	identity := trigger.Identity()

	ctx, cancel := context.WithCancel(context.Background())
	next := &flight{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	prev := s.inflight[identity]
	s.inflight[identity] = next
	s.mu.Unlock()

	metrics.ObserveRun(trigger.Event)
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer close(next.done)
		defer s.clear(identity, next)

		if prev != nil {
			level.Info(s.logger).Log("identity", identity, "superseded", true)
			prev.cancel()
			<-prev.done
		}

		if _, err := s.launcher.Run(ctx, trigger); err != nil {
			level.Error(s.logger).Log("identity", identity, "run", trigger.RunID, "err", err)
		}
	}()
}

func (s *Server) clear(identity string, f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[identity] == f {
		delete(s.inflight, identity)
	}
}

// WaitIdle blocks until every dispatched run has finished.
func (s *Server) WaitIdle() {
	s.wg.Wait()
}
