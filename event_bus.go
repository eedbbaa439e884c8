package ledgerline

import (
	"sync"
	"time"

	"github.com/ledgerline/ledgerline/models"
)

// eventBus manages event distribution to registered listeners (private)
type eventBus struct {
	listeners []models.EventListener
	mutex     sync.RWMutex
	pendingWg sync.WaitGroup // Tracks events being processed
}

// newEventBus creates a new eventBus instance (private)
func newEventBus() *eventBus {
	return &eventBus{
		listeners: make([]models.EventListener, 0),
	}
}

// addListener registers a new listener
func (eb *eventBus) addListener(listener models.EventListener) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	eb.listeners = append(eb.listeners, listener)
}

// Emit sends an event to all registered listeners
func (eb *eventBus) Emit(eventType models.EventType, data map[string]interface{}) {
	eb.mutex.RLock()
	listeners := make([]models.EventListener, len(eb.listeners))
	copy(listeners, eb.listeners)
	eb.mutex.RUnlock()

	event := models.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	// Notify all listeners asynchronously to avoid blocking execution
	for _, listener := range listeners {
		eb.pendingWg.Add(1)
		go func(l models.EventListener) {
			defer eb.pendingWg.Done()
			l.OnEvent(event)
		}(listener)
	}
}

// Wait waits for all pending events to be processed
func (eb *eventBus) Wait() {
	eb.pendingWg.Wait()
}

// EmitRunStarted emits a run start event
func (eb *eventBus) EmitRunStarted(runID string, trigger models.TriggerContext) {
	eb.Emit(models.EventRunStarted, map[string]interface{}{
		"run_id": runID,
		"event":  string(trigger.Event),
		"ref":    trigger.Ref,
		"actor":  trigger.Actor,
	})
}

// EmitRunCompleted emits a run completion event
func (eb *eventBus) EmitRunCompleted(runID string, duration time.Duration) {
	eb.Emit(models.EventRunCompleted, map[string]interface{}{
		"run_id":   runID,
		"duration": duration,
	})
}

// EmitRunError emits a run error event
func (eb *eventBus) EmitRunError(runID string, err error) {
	eb.Emit(models.EventRunError, map[string]interface{}{
		"run_id": runID,
		"error":  err.Error(),
	})
}

// EmitStageStarted emits a stage start event
func (eb *eventBus) EmitStageStarted(stageID string) {
	eb.Emit(models.EventStageStarted, map[string]interface{}{
		"stage_id": stageID,
	})
}

// EmitStageCompleted emits a stage completion event
func (eb *eventBus) EmitStageCompleted(stageID string, duration time.Duration) {
	eb.Emit(models.EventStageCompleted, map[string]interface{}{
		"stage_id": stageID,
		"duration": duration,
	})
}

// EmitStageSkipped emits a stage skip event
func (eb *eventBus) EmitStageSkipped(stageID string) {
	eb.Emit(models.EventStageSkipped, map[string]interface{}{
		"stage_id": stageID,
	})
}

// EmitStageBlocked emits a stage blocked event
func (eb *eventBus) EmitStageBlocked(stageID string, cause string) {
	eb.Emit(models.EventStageBlocked, map[string]interface{}{
		"stage_id": stageID,
		"cause":    cause,
	})
}

// EmitStageError emits a stage error event
func (eb *eventBus) EmitStageError(stageID string, err error) {
	eb.Emit(models.EventStageError, map[string]interface{}{
		"stage_id": stageID,
		"error":    err.Error(),
	})
}
