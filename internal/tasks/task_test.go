package tasks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTask() *Task {
	return &Task{
		TaskID:            ShippingTaskID("ORD000001"),
		OrderID:           "ORD000001",
		Type:              TypeShipping,
		Status:            StatusPending,
		Priority:          PriorityP1,
		FamilyCode:        "F01",
		PartNumber:        "P1001",
		Quantity:          2,
		Floor:             2,
		EstimatedDuration: 1.5,
	}
}

func TestTaskLifecycle(t *testing.T) {
	task := newTestTask()
	start := time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC)

	require.NoError(t, task.Assign("ST2F01", 101))
	assert.Equal(t, StatusAssigned, task.Status)
	assert.Equal(t, "ST2F01", task.AssignedStation)
	assert.Equal(t, 101, task.AssignedStaff)

	require.NoError(t, task.Start(start, 1.8))
	assert.Equal(t, StatusInProgress, task.Status)
	assert.Equal(t, 1.8, task.ActualDuration)

	require.NoError(t, task.Complete(start.Add(2*time.Minute)))
	assert.Equal(t, StatusCompleted, task.Status)
	assert.False(t, task.ActualCompletion.Before(task.ActualStart))
	assert.True(t, task.Status.IsTerminal())
}

func TestTaskInvalidTransitions(t *testing.T) {
	at := time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		run  func(*Task) error
	}{
		{name: "start before assign", run: func(task *Task) error { return task.Start(at, 1) }},
		{name: "complete before start", run: func(task *Task) error { return task.Complete(at) }},
		{name: "pause pending", run: func(task *Task) error { return task.Pause() }},
		{name: "resume unpaused", run: func(task *Task) error { return task.Resume() }},
		{name: "double assign", run: func(task *Task) error {
			if err := task.Assign("ST2F01", 101); err != nil {
				return err
			}
			return task.Assign("ST2F02", 102)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(newTestTask()), ErrInvalidTransition)
		})
	}
}

func TestTaskCancelTerminalGuard(t *testing.T) {
	task := newTestTask()
	require.NoError(t, task.Cancel())
	assert.Equal(t, StatusCancelled, task.Status)

	assert.ErrorIs(t, task.Cancel(), ErrInvalidTransition)
}

func TestTaskCompletionNeverBeforeStart(t *testing.T) {
	task := newTestTask()
	start := time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC)

	require.NoError(t, task.Assign("ST2F01", 101))
	require.NoError(t, task.Start(start, 1))
	require.NoError(t, task.Complete(start.Add(-time.Minute)))

	assert.Equal(t, start, task.ActualCompletion)
}

func TestIsSubWarehouse(t *testing.T) {
	tests := []struct {
		name       string
		taskType   Type
		route      string
		partcustid string
		want       bool
	}{
		{name: "direct SDTC", taskType: TypeShipping, route: "SDTC", want: true},
		{name: "direct SDHN", taskType: TypeShipping, route: "SDHN", want: true},
		{name: "composite R15 SDTC", taskType: TypeShipping, route: "R15", partcustid: "SDTC", want: true},
		{name: "composite R16 SDHN", taskType: TypeShipping, route: "R16", partcustid: "SDHN", want: true},
		{name: "R15 other partcustid", taskType: TypeShipping, route: "R15", partcustid: "C001", want: false},
		{name: "normal route", taskType: TypeShipping, route: "R01", partcustid: "C001", want: false},
		{name: "receiving never", taskType: TypeReceiving, route: "SDTC", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &Task{Type: tt.taskType, RouteCode: tt.route, Partcustid: tt.partcustid}
			assert.Equal(t, tt.want, task.IsSubWarehouse())
		})
	}
}

func TestRemainingMinutes(t *testing.T) {
	start := time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC)

	task := newTestTask()
	assert.InDelta(t, 1.5, task.RemainingMinutes(start), 1e-9, "pending uses the estimate")

	require.NoError(t, task.Assign("ST2F01", 101))
	require.NoError(t, task.Start(start, 4))
	assert.InDelta(t, 3.0, task.RemainingMinutes(start.Add(time.Minute)), 1e-9)
	assert.Zero(t, task.RemainingMinutes(start.Add(10*time.Minute)))

	require.NoError(t, task.Complete(start.Add(4*time.Minute)))
	assert.Zero(t, task.RemainingMinutes(start.Add(5*time.Minute)))
}

func TestTaskIDs(t *testing.T) {
	assert.Equal(t, "T_SHIP_ORD000001", ShippingTaskID("ORD000001"))
	assert.Equal(t, "T_RCV_RCV_000001", ReceivingTaskID("RCV_000001"))
	assert.Equal(t, "T_SHIP_ORD000001_OT", OvertimeTaskID("T_SHIP_ORD000001"))
}

func TestEnumValidity(t *testing.T) {
	for _, p := range []Priority{PriorityP1, PriorityP2, PriorityP3, PriorityP4} {
		assert.True(t, p.IsValid())
	}
	assert.False(t, Priority("P9").IsValid())
	assert.Less(t, PriorityP1.Rank(), PriorityP2.Rank())

	for _, s := range []Status{StatusPending, StatusAssigned, StatusInProgress, StatusCompleted, StatusPaused, StatusCancelled} {
		assert.True(t, s.IsValid())
	}
	assert.False(t, Status("UNKNOWN").IsValid())

	for _, ty := range []Type{TypeShipping, TypeReceiving, TypeOvertime} {
		assert.True(t, ty.IsValid())
	}
	assert.False(t, Type("MYSTERY").IsValid())
}
