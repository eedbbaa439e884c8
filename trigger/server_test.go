package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline"
	"github.com/ledgerline/ledgerline/models"
)

// slowLauncher blocks until its context is cancelled or release is closed.
type slowLauncher struct {
	mu        sync.Mutex
	started   []models.TriggerContext
	cancelled int
	release   chan struct{}
}

func newSlowLauncher() *slowLauncher {
	return &slowLauncher{release: make(chan struct{})}
}

func (l *slowLauncher) Run(ctx context.Context, trigger models.TriggerContext) (*ledgerline.RunReport, error) {
	l.mu.Lock()
	l.started = append(l.started, trigger)
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		l.mu.Lock()
		l.cancelled++
		l.mu.Unlock()
		return nil, ctx.Err()
	case <-l.release:
		return &ledgerline.RunReport{Trigger: trigger}, nil
	}
}

func (l *slowLauncher) startedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.started)
}

func TestDispatch_SingleFlightCancelsPrevious(t *testing.T) {
	launcher := newSlowLauncher()
	s := NewServer(launcher, nil)

	first := models.TriggerContext{Event: models.EventPullRequest, PRNumber: 7, Ref: "feature/x", RunID: "run-1"}
	second := models.TriggerContext{Event: models.EventPullRequest, PRNumber: 7, Ref: "feature/x", RunID: "run-2"}

	s.Dispatch(first)
	require.Eventually(t, func() bool { return launcher.startedCount() == 1 }, time.Second, time.Millisecond)

	s.Dispatch(second)
	require.Eventually(t, func() bool { return launcher.startedCount() == 2 }, time.Second, time.Millisecond)

	close(launcher.release)
	s.WaitIdle()

	launcher.mu.Lock()
	defer launcher.mu.Unlock()
	assert.Equal(t, 1, launcher.cancelled, "the superseded run must be cancelled")
	assert.Equal(t, "run-1", launcher.started[0].RunID)
	assert.Equal(t, "run-2", launcher.started[1].RunID)
}

func TestDispatch_DistinctIdentitiesRunConcurrently(t *testing.T) {
	launcher := newSlowLauncher()
	s := NewServer(launcher, nil)

	s.Dispatch(models.TriggerContext{Event: models.EventPullRequest, PRNumber: 1, RunID: "a"})
	s.Dispatch(models.TriggerContext{Event: models.EventPullRequest, PRNumber: 2, RunID: "b"})

	require.Eventually(t, func() bool { return launcher.startedCount() == 2 }, time.Second, time.Millisecond)

	close(launcher.release)
	s.WaitIdle()

	launcher.mu.Lock()
	defer launcher.mu.Unlock()
	assert.Zero(t, launcher.cancelled, "distinct identities must not cancel each other")
}

func TestHandleTrigger_Accepted(t *testing.T) {
	launcher := newSlowLauncher()
	close(launcher.release)
	s := NewServer(launcher, nil)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	body, _ := json.Marshal(triggerPayload{
		Actor: "alice",
		Event: "push",
		Ref:   "main",
	})

	resp, err := http.Post(srv.URL+"/v1/triggers", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out triggerResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, "push/main", out.Identity)

	s.WaitIdle()
}

func TestHandleTrigger_RejectsUnknownEvent(t *testing.T) {
	s := NewServer(newSlowLauncher(), nil)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/triggers", "application/json",
		bytes.NewReader([]byte(`{"event":"cron","ref":"main"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleTrigger_RejectsBadJSON(t *testing.T) {
	s := NewServer(newSlowLauncher(), nil)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/triggers", "application/json",
		bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	s := NewServer(newSlowLauncher(), nil)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
