package models

import "time"

// EventType identifies an event emitted by a pipeline run.
type EventType string

const (
	EventRunStarted   EventType = "run.started"
	EventRunCompleted EventType = "run.completed"
	EventRunError     EventType = "run.error"

	EventStageStarted   EventType = "stage.started"
	EventStageCompleted EventType = "stage.completed"
	EventStageSkipped   EventType = "stage.skipped"
	EventStageBlocked   EventType = "stage.blocked"
	EventStageError     EventType = "stage.error"

	EventPhaseStarted   EventType = "phase.started"
	EventPhaseCompleted EventType = "phase.completed"
	EventPhaseError     EventType = "phase.error"
)

// Event is a generic pipeline event.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// EventListener receives events from a pipeline run.
type EventListener interface {
	OnEvent(event Event)
}

// EventListenerFunc adapts a function to the EventListener interface.
type EventListenerFunc func(event Event)

func (f EventListenerFunc) OnEvent(event Event) {
	f(event)
}
