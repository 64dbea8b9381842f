package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/orders"
	"github.com/hsichihchen-design/cpdoldsim/internal/receiving"
	"github.com/hsichihchen-design/cpdoldsim/internal/sim"
	"github.com/hsichihchen-design/cpdoldsim/internal/tasks"
)

var (
	// ErrItemUnknown marks an order or receiving line whose part is
	// missing from the item master. The line is skipped, not fatal.
	ErrItemUnknown = errors.New("item not in master data")
	// ErrRouteGroupBad marks a non-numeric route group on a regular
	// shipping line.
	ErrRouteGroupBad = errors.New("invalid route group")
)

// ordersInWindow collects the order history for every day of the run.
func (e *Engine) ordersInWindow() []masterdata.OrderRecord {
	var records []masterdata.OrderRecord
	for day := masterdata.DateOf(e.cfg.StartDate); day.Before(e.cfg.EndDate); day = day.AddDate(0, 0, 1) {
		records = append(records, e.store.OrdersOn(day)...)
	}
	return records
}

// shippingTask builds the picking task for one classified order line.
// Lines whose part is off the item master or whose route group does not
// parse are rejected.
func (e *Engine) shippingTask(po *orders.ProcessedOrder) (*tasks.Task, error) {
	item, found := e.store.Item(po.Order.FamilyCode, po.Order.PartNumber)
	if !found {
		return nil, fmt.Errorf("%w: %s/%s", ErrItemUnknown, po.Order.FamilyCode, po.Order.PartNumber)
	}

	t := &tasks.Task{
		TaskID:         tasks.ShippingTaskID(po.Order.IndexNo),
		OrderID:        po.Order.IndexNo,
		Type:           tasks.TypeShipping,
		Status:         tasks.StatusPending,
		Priority:       po.Priority,
		FamilyCode:     po.Order.FamilyCode,
		PartNumber:     po.Order.PartNumber,
		Quantity:       po.Order.SaleQty,
		Floor:          item.Floor,
		RequiresRepack: item.RequiresRepack,
		Partcustid:     po.Order.Partcustid,
		RouteCode:      po.Order.RouteCode,
	}

	if po.OrderType == orders.TypeSubWarehouse {
		t.RouteGroup = strings.TrimSpace(po.Order.RouteGroup)
	} else {
		group, err := routeGroupNumber(po.Order.RouteGroup)
		if err != nil {
			return nil, err
		}
		t.RouteGroup = group
	}

	if !po.Deadline.DeliveryAt.IsZero() {
		t.DeliveryDeadline = po.Deadline.DeliveryAt
		t.AvailableWorkMinutes = float64(po.Deadline.AvailableMinutes)
	}
	t.EstimatedDuration = e.estimator.FixedEstimate(t)
	return t, nil
}

// receivingTask builds the putaway task for one classified receiving line.
// The floor comes from the item master; unknown parts are rejected.
func (e *Engine) receivingTask(pr *receiving.ProcessedReceiving) (*tasks.Task, error) {
	item, found := e.store.Item(pr.Record.FamilyCode, pr.Record.PartNumber)
	if !found {
		return nil, fmt.Errorf("%w: %s/%s", ErrItemUnknown, pr.Record.FamilyCode, pr.Record.PartNumber)
	}

	return &tasks.Task{
		TaskID:            tasks.ReceivingTaskID(pr.Record.ReceivingID),
		OrderID:           pr.Record.ReceivingID,
		Type:              tasks.TypeReceiving,
		Status:            tasks.StatusPending,
		Priority:          pr.Priority,
		FamilyCode:        pr.Record.FamilyCode,
		PartNumber:        pr.Record.PartNumber,
		Quantity:          pr.Record.Quantity,
		Floor:             item.Floor,
		EstimatedDuration: pr.EstimatedDuration,
		ArrivalDate:       pr.Deadline.ArrivalDate,
		DeadlineDate:      pr.Deadline.DeadlineDate,
		DaysSinceArrival:  pr.Deadline.DaysSinceArrival,
		IsOverdue:         pr.Deadline.IsOverdue,
	}, nil
}

// routeGroupNumber canonicalizes a route group to its bare number,
// dropping zero padding.
func routeGroupNumber(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrRouteGroupBad
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrRouteGroupBad, raw)
	}
	return strconv.Itoa(n), nil
}

// orderArrival anchors an order line on the clock: its recorded time on
// its own date, the shift start when the time is unparseable, and never
// before the simulation window opens.
func (e *Engine) orderArrival(order masterdata.OrderRecord, floor time.Time) time.Time {
	arrival := e.params.ShiftStart.At(order.Date)
	if clock, err := masterdata.ParseClock(order.Time); err == nil {
		arrival = clock.At(order.Date)
	}
	if arrival.Before(floor) {
		return floor
	}
	return arrival
}

// attachToWave binds a regular P1 shipping task to the earliest wave whose
// cutoff its order met. P2 lines and sub-warehouse routes run outside the
// wave plan.
func (e *Engine) attachToWave(t *tasks.Task, arrival time.Time) {
	if t.Priority != tasks.PriorityP1 || t.IsSubWarehouse() {
		return
	}
	waveID, found := e.catalog.FindWaveForPartcustid(t.Partcustid, arrival)
	if !found {
		e.log.Debug("no wave covers order", "task", t.TaskID, "partcustid", t.Partcustid)
		return
	}
	if err := e.catalog.AttachTask(waveID, t.TaskID); err != nil {
		e.warn("wave attach failed for %s: %v", t.TaskID, err)
		return
	}
	t.WaveID = waveID
}

// assignDelay is the gap between an order arriving and its first
// assignment attempt. Urgent work gets looked at sooner.
func (e *Engine) assignDelay(priority tasks.Priority) time.Duration {
	stream := e.rng.Stream(sim.StreamDelays)
	var minutes int
	switch priority {
	case tasks.PriorityP1:
		minutes = stream.IntBetween(5, 15)
	case tasks.PriorityP2:
		minutes = stream.IntBetween(15, 45)
	default:
		minutes = stream.IntBetween(30, 90)
	}
	return time.Duration(minutes) * time.Minute
}
