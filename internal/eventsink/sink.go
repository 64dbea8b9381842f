// Package eventsink carries simulation lifecycle events out of the engine
// as CloudEvents: to Kafka in deployments, to memory in tests and CLI runs.
package eventsink

import (
	"context"

	"github.com/hsichihchen-design/cpdoldsim/pkg/cloudevents"
)

// Sink receives the engine's lifecycle events. Implementations are called
// from the single engine goroutine; Publish must not block the simulation
// for longer than its own delivery timeout.
type Sink interface {
	Publish(ctx context.Context, event *cloudevents.SimCloudEvent) error
	Close() error
}
