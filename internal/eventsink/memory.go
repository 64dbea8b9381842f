package eventsink

import (
	"context"
	"sync"

	"github.com/hsichihchen-design/cpdoldsim/pkg/cloudevents"
)

// Memory is an in-process sink. The mutex matters because the HTTP layer
// reads events while a run is still producing them.
type Memory struct {
	mu     sync.Mutex
	events []*cloudevents.SimCloudEvent
}

// NewMemory builds an empty in-process sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish records the event.
func (m *Memory) Publish(_ context.Context, event *cloudevents.SimCloudEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Close is a no-op for the in-process sink.
func (m *Memory) Close() error {
	return nil
}

// Events returns a copy of everything published so far.
func (m *Memory) Events() []*cloudevents.SimCloudEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*cloudevents.SimCloudEvent, len(m.events))
	copy(out, m.events)
	return out
}

// ByType filters the published events down to one CloudEvent type.
func (m *Memory) ByType(eventType string) []*cloudevents.SimCloudEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*cloudevents.SimCloudEvent
	for _, event := range m.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

// Len reports how many events have been published.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
