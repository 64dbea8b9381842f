package exceptions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hsichihchen-design/cpdoldsim/internal/tasks"
)

func TestTypeIsValid(t *testing.T) {
	for _, typ := range []Type{
		TypeInventoryShortage, TypeItemDamage, TypePickingError, TypeSystemError,
		TypeQualityIssue, TypeBarcodeUnreadable, TypePackagingError, TypeLocationError,
	} {
		assert.True(t, typ.IsValid(), typ)
	}
	assert.False(t, Type("FIRE").IsValid())
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusResolved.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusDetected.IsTerminal())
	assert.False(t, StatusEscalated.IsTerminal())
}

func TestPriorityBumpLadder(t *testing.T) {
	tests := []struct {
		from, want Priority
	}{
		{PriorityLow, PriorityMedium},
		{PriorityMedium, PriorityHigh},
		{PriorityHigh, PriorityCritical},
		{PriorityCritical, PriorityCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.Bump(), "bump %s", tt.from)
	}
}

func TestPriorityUrgency(t *testing.T) {
	assert.True(t, PriorityCritical.IsUrgent())
	assert.True(t, PriorityHigh.IsUrgent())
	assert.False(t, PriorityMedium.IsUrgent())
	assert.False(t, PriorityLow.IsUrgent())
}

func TestPriorityForBumpsUrgentOrders(t *testing.T) {
	tests := []struct {
		name         string
		typ          Type
		taskPriority tasks.Priority
		want         Priority
	}{
		{"system error is critical", TypeSystemError, tasks.PriorityP3, PriorityCritical},
		{"system error stays critical for P1", TypeSystemError, tasks.PriorityP1, PriorityCritical},
		{"inventory shortage on P1 escalates to critical", TypeInventoryShortage, tasks.PriorityP1, PriorityCritical},
		{"barcode on P1 becomes medium", TypeBarcodeUnreadable, tasks.PriorityP1, PriorityMedium},
		{"picking error keeps medium for P2", TypePickingError, tasks.PriorityP2, PriorityMedium},
		{"unknown type falls back to medium", Type("FIRE"), tasks.PriorityP4, PriorityMedium},
		{"unknown type on P1 becomes high", Type("FIRE"), tasks.PriorityP1, PriorityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, priorityFor(tt.typ, tt.taskPriority))
		})
	}
}

func TestExceptionIDFormats(t *testing.T) {
	at := time.Date(2025, 7, 7, 8, 30, 0, 0, time.UTC)
	assert.Equal(t, "EXC_20250707_083000_1234", ExceptionID(at, 1234))
	assert.Equal(t, "SYS_20250707_083000_0042", ambientExceptionID(at, 42))
}

func TestHandlingElapsedMinutes(t *testing.T) {
	event := &Event{}
	now := time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC)
	assert.Zero(t, event.HandlingElapsedMinutes(now))

	event.StartHandlingTime = now.Add(-25 * time.Minute)
	assert.InDelta(t, 25, event.HandlingElapsedMinutes(now), 0.001)
}

func TestSampleTablesAligned(t *testing.T) {
	assert.Equal(t, len(sampleTypes), len(sampleWeights))

	var sum float64
	for _, w := range sampleWeights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 0.001)

	for _, typ := range sampleTypes {
		assert.True(t, typ.IsValid(), typ)
		_, ok := handlingWindows[typ]
		assert.True(t, ok, "no handling window for %s", typ)
	}
}
