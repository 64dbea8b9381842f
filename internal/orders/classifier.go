package orders

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/tasks"
)

// OrderType labels the business flavor of a shipping order.
type OrderType string

const (
	TypeNormal       OrderType = "NORMAL"
	TypeUrgent       OrderType = "URGENT"
	TypeSubWarehouse OrderType = "SUB_WAREHOUSE"
	TypeOther        OrderType = "OTHER"
)

// IsValid checks if the order type is valid.
func (t OrderType) IsValid() bool {
	switch t {
	case TypeNormal, TypeUrgent, TypeSubWarehouse, TypeOther:
		return true
	default:
		return false
	}
}

// Sub-warehouse orders skip the timetable and close out the same day.
var (
	subWarehouseDelivery = masterdata.ClockTime{Hour: 17}
	subWarehouseCutoff   = masterdata.ClockTime{Hour: 16, Minute: 30}
)

// DeadlineInfo is the timing half of order classification: the timetable
// lookup, the picking window and the lateness flags. HasWindow guards
// AvailableMinutes; the other fields are zero when their source could not
// be resolved.
type DeadlineInfo struct {
	ScheduleFound bool `json:"schedule_found"`
	TimeInvalid   bool `json:"time_invalid,omitempty"`
	IsLate        bool `json:"is_late_order"`

	OrderTime    masterdata.ClockTime `json:"order_time,omitempty"`
	CutoffTime   masterdata.ClockTime `json:"order_cutoff_time,omitempty"`
	DeliveryTime masterdata.ClockTime `json:"delivery_time,omitempty"`

	// Absolute delivery deadline; next-day when the order crosses
	// midnight. Zero when the schedule or the order time is unknown.
	DeliveryAt time.Time `json:"delivery_datetime,omitempty"`

	AvailableMinutes int  `json:"available_minutes"`
	HasWindow        bool `json:"has_window"`
}

// ProcessedOrder is one order line with its priority decision and timing.
type ProcessedOrder struct {
	Order         masterdata.OrderRecord `json:"order"`
	Priority      tasks.Priority         `json:"priority_level"`
	OrderType     OrderType              `json:"order_type"`
	UrgencyReason string                 `json:"urgency_reason"`
	Deadline      DeadlineInfo           `json:"deadline"`
}

// Classifier assigns priority classes and picking windows to outbound
// order lines from the transaction codes and the route timetable.
type Classifier struct {
	store  *masterdata.Store
	params masterdata.Params
	log    *slog.Logger
}

// NewClassifier builds a classifier over the master-data store.
func NewClassifier(store *masterdata.Store, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		store:  store,
		params: store.Params(),
		log:    logger.With("component", "orders"),
	}
}

// Classify decides the priority class, order type and reason for one order
// line. Sub-warehouse shipments win over transaction-code rules; normal
// transaction codes outrank urgent ones because scheduled waves must plan
// first.
func (c *Classifier) Classify(order masterdata.OrderRecord) (tasks.Priority, OrderType, string) {
	if c.params.IsSubWarehouseRoute(order.RouteCode) {
		return tasks.PriorityP3, TypeSubWarehouse, fmt.Sprintf("sub-warehouse route (%s)", order.RouteCode)
	}
	if (order.RouteCode == "R15" && order.Partcustid == "SDTC") ||
		(order.RouteCode == "R16" && order.Partcustid == "SDHN") {
		return tasks.PriorityP3, TypeSubWarehouse, fmt.Sprintf("sub-warehouse pair (%s-%s)", order.RouteCode, order.Partcustid)
	}
	if containsString(c.params.NormalTranscd, order.TransCd) {
		return tasks.PriorityP1, TypeNormal, fmt.Sprintf("normal transcd (%s)", order.TransCd)
	}
	if containsString(c.params.UrgentTranscd, order.TransCd) {
		return tasks.PriorityP2, TypeUrgent, fmt.Sprintf("urgent transcd (%s)", order.TransCd)
	}
	return tasks.PriorityP2, TypeOther, fmt.Sprintf("other transcd (%s)", order.TransCd)
}

// Deadline resolves the picking window for one order line. Sub-warehouse
// routes synthesize a same-day 17:00 delivery with a 16:30 cutoff; everyone
// else looks up the timetable by (route, partcustid).
func (c *Classifier) Deadline(order masterdata.OrderRecord) DeadlineInfo {
	if c.params.IsSubWarehouseRoute(order.RouteCode) {
		return c.subWarehouseDeadline(order)
	}

	entry, ok := c.store.RouteScheduleFor(order.RouteCode, order.Partcustid)
	if !ok {
		c.log.Warn("no timetable entry for order",
			"order", order.IndexNo, "route", order.RouteCode, "partcustid", order.Partcustid)
		return DeadlineInfo{}
	}

	orderTime, err := masterdata.ParseClock(order.Time)
	if err != nil {
		c.log.Warn("unparseable order time", "order", order.IndexNo, "value", order.Time)
		return DeadlineInfo{}
	}
	cutoff, err := masterdata.ParseClock(entry.OrderEndTime)
	if err != nil {
		c.log.Warn("unparseable cutoff in timetable", "order", order.IndexNo, "value", entry.OrderEndTime)
		return DeadlineInfo{}
	}
	delivery, err := masterdata.ParseClock(entry.DeliveryTime)
	if err != nil {
		c.log.Warn("unparseable delivery time in timetable", "order", order.IndexNo, "value", entry.DeliveryTime)
		return DeadlineInfo{}
	}

	available, crossMidnight, ok := availableMinutes(orderTime, delivery)
	if !ok {
		c.log.Warn("order time cannot reach the delivery run, marked invalid",
			"order", order.IndexNo, "orderTime", orderTime.String(), "deliveryTime", delivery.String())
		return DeadlineInfo{
			OrderTime:   orderTime,
			IsLate:      true,
			TimeInvalid: true,
		}
	}

	deliveryDate := masterdata.DateOf(order.Date)
	if crossMidnight {
		deliveryDate = deliveryDate.AddDate(0, 0, 1)
	}

	return DeadlineInfo{
		ScheduleFound:    true,
		IsLate:           orderTime.Minutes() > cutoff.Minutes(),
		OrderTime:        orderTime,
		CutoffTime:       cutoff,
		DeliveryTime:     delivery,
		DeliveryAt:       delivery.At(deliveryDate),
		AvailableMinutes: available,
		HasWindow:        true,
	}
}

func (c *Classifier) subWarehouseDeadline(order masterdata.OrderRecord) DeadlineInfo {
	info := DeadlineInfo{
		ScheduleFound: true,
		CutoffTime:    subWarehouseCutoff,
		DeliveryTime:  subWarehouseDelivery,
		DeliveryAt:    subWarehouseDelivery.At(masterdata.DateOf(order.Date)),
	}

	orderTime, err := masterdata.ParseClock(order.Time)
	if err != nil {
		c.log.Warn("unparseable order time on sub-warehouse order", "order", order.IndexNo, "value", order.Time)
		return info
	}
	info.OrderTime = orderTime
	info.IsLate = orderTime.Minutes() > subWarehouseCutoff.Minutes()

	if available, crossMidnight, ok := availableMinutes(orderTime, subWarehouseDelivery); ok {
		info.AvailableMinutes = available
		info.HasWindow = true
		if crossMidnight {
			info.DeliveryAt = info.DeliveryAt.AddDate(0, 0, 1)
		}
	}
	return info
}

// An inverted window wider than this is invalid data, checked before the
// late-evening test. The guard fires first, so a late-evening order against
// an early-morning run is rejected rather than rolled to the next day.
const maxInversionGapSeconds = 6 * 3600

// availableMinutes computes the picking window between order intake and
// the delivery run. A delivery wallclock behind the order time is an
// invalid data combination unless the gap stays inside six hours and the
// order is a late-evening one catching a morning run (order hour >= 20,
// delivery hour <= 12), which counts as next-day.
func availableMinutes(orderTime, delivery masterdata.ClockTime) (minutes int, crossMidnight, ok bool) {
	orderSeconds := orderTime.Seconds()
	deliverySeconds := delivery.Seconds()

	var availableSeconds int
	switch {
	case deliverySeconds >= orderSeconds:
		availableSeconds = deliverySeconds - orderSeconds
	case orderSeconds-deliverySeconds > maxInversionGapSeconds:
		return 0, false, false
	case orderTime.Hour >= 20 && delivery.Hour <= 12:
		availableSeconds = (24*3600 - orderSeconds) + deliverySeconds
		crossMidnight = true
	default:
		return 0, false, false
	}

	minutes = availableSeconds / 60
	if minutes < 0 {
		minutes = 0
	}
	return minutes, crossMidnight, true
}

// Process classifies one order line end to end.
func (c *Classifier) Process(order masterdata.OrderRecord) ProcessedOrder {
	priority, orderType, reason := c.Classify(order)
	return ProcessedOrder{
		Order:         order,
		Priority:      priority,
		OrderType:     orderType,
		UrgencyReason: reason,
		Deadline:      c.Deadline(order),
	}
}

// BatchSummary aggregates a classification pass over one day's orders.
type BatchSummary struct {
	TotalOrders         int                    `json:"total_orders"`
	PriorityCounts      map[tasks.Priority]int `json:"priority_distribution"`
	TypeCounts          map[OrderType]int      `json:"order_type_distribution"`
	ScheduleFound       int                    `json:"schedule_found_count"`
	LateOrders          int                    `json:"late_orders_count"`
	TimeInvalid         int                    `json:"time_invalid_count"`
	SubWarehouseOrders  int                    `json:"sub_warehouse_count"`
	AvgAvailableMinutes float64                `json:"avg_available_minutes"`
}

// ProcessBatch classifies a batch of order lines and reports distribution
// statistics the run summary carries.
func (c *Classifier) ProcessBatch(orders []masterdata.OrderRecord) ([]ProcessedOrder, BatchSummary) {
	processed := make([]ProcessedOrder, 0, len(orders))
	summary := BatchSummary{
		TotalOrders:    len(orders),
		PriorityCounts: make(map[tasks.Priority]int),
		TypeCounts:     make(map[OrderType]int),
	}

	var windowSum, windowCount float64
	for _, order := range orders {
		p := c.Process(order)
		processed = append(processed, p)

		summary.PriorityCounts[p.Priority]++
		summary.TypeCounts[p.OrderType]++
		if p.OrderType == TypeSubWarehouse {
			summary.SubWarehouseOrders++
		}
		if p.Deadline.ScheduleFound {
			summary.ScheduleFound++
		}
		if p.Deadline.IsLate {
			summary.LateOrders++
		}
		if p.Deadline.TimeInvalid {
			summary.TimeInvalid++
		}
		if p.Deadline.HasWindow {
			windowSum += float64(p.Deadline.AvailableMinutes)
			windowCount++
		}
	}
	if windowCount > 0 {
		summary.AvgAvailableMinutes = windowSum / windowCount
	}

	c.log.Info("orders classified",
		"total", summary.TotalOrders,
		"p1", summary.PriorityCounts[tasks.PriorityP1],
		"p2", summary.PriorityCounts[tasks.PriorityP2],
		"p3", summary.PriorityCounts[tasks.PriorityP3],
		"scheduleFound", summary.ScheduleFound,
		"late", summary.LateOrders)
	if summary.TimeInvalid > 0 {
		c.log.Warn("orders with invalid time combinations", "count", summary.TimeInvalid)
	}
	return processed, summary
}

func containsString(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
