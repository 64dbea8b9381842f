package eventsink_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsichihchen-design/cpdoldsim/internal/eventsink"
	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/scheduler"
	"github.com/hsichihchen-design/cpdoldsim/pkg/cloudevents"
	"github.com/hsichihchen-design/cpdoldsim/pkg/contracts/asyncapi"
)

const asyncAPIPath = "../../api/asyncapi.yaml"

// TestEventSchemasCoverAllTypes renders one sample event per published type
// and validates it against the AsyncAPI schemas.
func TestEventSchemasCoverAllTypes(t *testing.T) {
	validator, err := asyncapi.NewEventValidator(asyncAPIPath)
	require.NoError(t, err)

	now := time.Now().UTC()
	factory := cloudevents.NewEventFactory(cloudevents.SourceSimulator)

	cases := []struct {
		name      string
		eventType string
		data      interface{}
	}{
		{
			name:      "run started",
			eventType: cloudevents.RunStarted,
			data: cloudevents.RunStartedData{
				RunID: "SIM_1", StartDate: "2025-07-07", EndDate: "2025-07-09", RandomSeed: 42,
			},
		},
		{
			name:      "run completed",
			eventType: cloudevents.RunCompleted,
			data: cloudevents.RunCompletedData{
				RunID: "SIM_1", State: "COMPLETED", SimulatedDays: 2,
				TasksCompleted: 49, WavesCompleted: 6, Efficiency: 0.87,
			},
		},
		{
			name:      "run failed",
			eventType: cloudevents.RunFailed,
			data: cloudevents.RunCompletedData{
				RunID: "SIM_1", State: "ERROR", Errors: 1,
			},
		},
		{
			name:      "day completed",
			eventType: cloudevents.DayCompleted,
			data: cloudevents.DayCompletedData{
				RunID: "SIM_1", Date: "2025-07-07", TasksCreated: 25, TasksCompleted: 24,
				WavesCompleted: 3, OvertimeSessions: 1, Exceptions: 1,
			},
		},
		{
			name:      "wave completed",
			eventType: cloudevents.WaveCompleted,
			data: cloudevents.WaveCompletedData{
				RunID: "SIM_1", WaveID: "W20250707_1", DeliveryAt: now, TaskCount: 8, CompletedAt: now,
			},
		},
		{
			name:      "overtime scheduled",
			eventType: cloudevents.OvertimeScheduled,
			data: cloudevents.OvertimeScheduledData{
				RunID: "SIM_1", TaskID: "T_SHIP_ORD000001_OT", OriginalTask: "T_SHIP_ORD000001",
				RequiredHours: 1.5, StartAt: now, EndAt: now.Add(90 * time.Minute),
			},
		},
		{
			name:      "exception resolved",
			eventType: cloudevents.ExceptionResolved,
			data: cloudevents.ExceptionResolvedData{
				RunID: "SIM_1", ExceptionID: "EXC_1a2b3c4d", ExceptionType: "SHIPPING",
				Priority: "HIGH", HandlingMinutes: 25, Escalated: false,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Truef(t, validator.HasSchema(tc.eventType), "no schema for %s", tc.eventType)

			raw, err := json.Marshal(factory.CreateRunEvent(tc.eventType, "SIM_1", tc.data))
			require.NoError(t, err)
			assert.NoError(t, validator.ValidateEventJSON(raw))
		})
	}
}

// TestLiveRunEventsMatchContract replays two demo days and validates every
// event the engine actually published.
func TestLiveRunEventsMatchContract(t *testing.T) {
	validator, err := asyncapi.NewEventValidator(asyncAPIPath)
	require.NoError(t, err)

	start := time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC)
	store, err := masterdata.NewStore(masterdata.DemoBundle(start), nil)
	require.NoError(t, err)

	sink := eventsink.NewMemory()
	engine, err := scheduler.NewEngine(store, scheduler.DefaultConfig(start, start.AddDate(0, 0, 2), 7), sink, nil, nil)
	require.NoError(t, err)

	_, err = engine.Initialize()
	require.NoError(t, err)
	require.NoError(t, engine.Run(context.Background()))

	events := sink.Events()
	require.NotEmpty(t, events)

	for _, event := range events {
		require.Truef(t, validator.HasSchema(event.Type), "no schema for %s", event.Type)
		assert.Equal(t, "1.0", event.SpecVersion)
		assert.NotEmpty(t, event.ID)

		raw, err := json.Marshal(event)
		require.NoError(t, err)
		assert.NoErrorf(t, validator.ValidateEventJSON(raw), "event %s (%s)", event.Type, event.ID)
	}
}
