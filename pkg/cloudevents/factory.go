package cloudevents

import (
	"time"

	"github.com/google/uuid"
)

// EventFactory creates CloudEvents for simulator domain events
type EventFactory struct {
	source string
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// CreateEvent creates a new SimCloudEvent with the given parameters
func (f *EventFactory) CreateEvent(eventType string, subject string, data interface{}) *SimCloudEvent {
	return &SimCloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
		Extensions:      make(map[string]interface{}),
	}
}

// CreateRunEvent creates an event tagged with a run ID
func (f *EventFactory) CreateRunEvent(eventType string, runID string, data interface{}) *SimCloudEvent {
	event := f.CreateEvent(eventType, runID, data)
	event.RunID = runID
	return event
}
