package masterdata

import (
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Store provides read-only lookups over a normalized master-data bundle.
// It is built once per run and shared by every component; nothing mutates
// it after construction.
type Store struct {
	bundle *Bundle
	params Params
	report *ValidationReport

	items map[ItemKey]Item
	staff map[int]StaffSkill
}

// NewStore normalizes and validates the bundle, resolves the typed
// parameter set and builds the lookup indexes. A bundle missing one of the
// required tables (system parameters, item master, workstation capacity)
// is rejected with ErrBundleIncomplete; softer findings land in the
// validation report.
func NewStore(bundle *Bundle, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(bundle.SystemParameters) == 0 || len(bundle.Items) == 0 || len(bundle.StationCapacities) == 0 {
		return nil, fmt.Errorf("%w: system parameters, item master and workstation capacity are required", ErrBundleIncomplete)
	}

	store := &Store{
		bundle: bundle,
		params: ResolveParams(NewParameterStore(bundle.SystemParameters)),
		report: &ValidationReport{},
		items:  make(map[ItemKey]Item, len(bundle.Items)),
		staff:  make(map[int]StaffSkill, len(bundle.StaffSkills)),
	}

	store.normalizeReceiving()

	for _, item := range bundle.Items {
		store.items[item.Key()] = item
	}
	for _, skill := range bundle.StaffSkills {
		store.staff[skill.StaffID] = skill
	}

	store.validate()

	for _, warning := range store.report.Warnings {
		logger.Warn("master data validation", "finding", warning)
	}
	for _, errMsg := range store.report.Errors {
		logger.Error("master data validation", "finding", errMsg)
	}

	return store, nil
}

// normalizeReceiving drops rows with missing dates or non-positive
// quantities and generates sequential receiving ids where absent.
func (s *Store) normalizeReceiving() {
	kept := make([]ReceivingRecord, 0, len(s.bundle.Receiving))
	dropped := 0
	seq := 0
	for _, row := range s.bundle.Receiving {
		if row.ArrivalDate.IsZero() || row.Quantity <= 0 {
			dropped++
			continue
		}
		seq++
		if row.ReceivingID == "" {
			row.ReceivingID = fmt.Sprintf("RCV_%06d", seq)
		}
		row.ArrivalDate = DateOf(row.ArrivalDate)
		kept = append(kept, row)
	}
	if dropped > 0 {
		s.report.Warnings = append(s.report.Warnings,
			fmt.Sprintf("receiving: dropped %d rows with missing dates or non-positive quantities", dropped))
	}
	s.bundle.Receiving = kept
}

// validate applies the bundle consistency checks: parameter sanity, item
// key coverage for orders and receiving, inventory coverage, and the
// order/receiving date-range overlap.
func (s *Store) validate() {
	store := NewParameterStore(s.bundle.SystemParameters)
	for _, required := range []string{
		"daily_work_hours",
		"picking_base_time_repack",
		"picking_base_time_no_repack",
		"receiving_completion_days",
		"shift_start_time",
		"shift_end_time",
	} {
		if !store.Has(required) {
			s.report.Warnings = append(s.report.Warnings, fmt.Sprintf("parameters: %s missing, using default", required))
		}
	}
	if days := s.params.ReceivingCompletionDays; days < 1 || days > 7 {
		s.report.Errors = append(s.report.Errors,
			fmt.Sprintf("parameters: receiving_completion_days %d outside [1,7]", days))
	}
	if hours := s.params.MaxOvertimeHours; hours < 0.5 || hours > 6.0 {
		s.report.Errors = append(s.report.Errors,
			fmt.Sprintf("parameters: max_overtime_hours %.1f outside [0.5,6.0]", hours))
	}

	unknownOrderItems := 0
	for _, order := range s.bundle.Orders {
		if _, ok := s.items[order.ItemKey()]; !ok {
			unknownOrderItems++
		}
	}
	if unknownOrderItems > 0 {
		s.report.Warnings = append(s.report.Warnings,
			fmt.Sprintf("orders: %d lines reference items missing from the item master", unknownOrderItems))
	}

	unknownReceivingItems := 0
	for _, row := range s.bundle.Receiving {
		if _, ok := s.items[row.ItemKey()]; !ok {
			unknownReceivingItems++
		}
	}
	if unknownReceivingItems > 0 {
		s.report.Warnings = append(s.report.Warnings,
			fmt.Sprintf("receiving: %d lines reference items missing from the item master", unknownReceivingItems))
	}

	if len(s.bundle.Inventory) > 0 {
		missing := 0
		inventoryKeys := make(map[ItemKey]struct{}, len(s.bundle.Inventory))
		for _, inv := range s.bundle.Inventory {
			inventoryKeys[ItemKey{FamilyCode: inv.FamilyCode, PartNumber: inv.PartNumber}] = struct{}{}
		}
		for key := range s.items {
			if _, ok := inventoryKeys[key]; !ok {
				missing++
			}
		}
		if missing > 0 {
			s.report.Warnings = append(s.report.Warnings,
				fmt.Sprintf("inventory: %d item master entries have no inventory row", missing))
		}
	}

	if len(s.bundle.Orders) > 0 && len(s.bundle.Receiving) > 0 {
		orderMin, orderMax := dateRange(s.bundle.Orders, func(o OrderRecord) time.Time { return o.Date })
		recvMin, recvMax := dateRange(s.bundle.Receiving, func(r ReceivingRecord) time.Time { return r.ArrivalDate })
		if orderMax.Before(recvMin) || recvMax.Before(orderMin) {
			s.report.Warnings = append(s.report.Warnings,
				"transactions: order and receiving date ranges do not overlap")
		}
	}
}

func dateRange[T any](rows []T, date func(T) time.Time) (time.Time, time.Time) {
	min, max := date(rows[0]), date(rows[0])
	for _, row := range rows[1:] {
		d := date(row)
		if d.Before(min) {
			min = d
		}
		if d.After(max) {
			max = d
		}
	}
	return min, max
}

// Params returns the resolved typed parameter set.
func (s *Store) Params() Params {
	return s.params
}

// Validation returns the bundle validation report.
func (s *Store) Validation() *ValidationReport {
	return s.report
}

// Bundle exposes the underlying normalized bundle.
func (s *Store) Bundle() *Bundle {
	return s.bundle
}

// Item looks up an item master row by family code and part number.
func (s *Store) Item(familyCode, partNumber string) (Item, bool) {
	item, ok := s.items[ItemKey{FamilyCode: familyCode, PartNumber: partNumber}]
	return item, ok
}

// Staff looks up a staff skill row by id.
func (s *Store) Staff(staffID int) (StaffSkill, bool) {
	skill, ok := s.staff[staffID]
	return skill, ok
}

// AllStaff returns the staff skill rows ordered by staff id.
func (s *Store) AllStaff() []StaffSkill {
	out := make([]StaffSkill, 0, len(s.staff))
	for _, skill := range s.staff {
		out = append(out, skill)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StaffID < out[j].StaffID })
	return out
}

// StationCapacities returns the per-floor station capacity rows.
func (s *Store) StationCapacities() []StationCapacity {
	return s.bundle.StationCapacities
}

// RouteSchedule returns the raw route timetable.
func (s *Store) RouteSchedule() []RouteScheduleEntry {
	return s.bundle.RouteSchedule
}

// RouteScheduleFor looks up the timetable entry for a route/partcustid
// pair. The second result is false when the pair is not scheduled.
func (s *Store) RouteScheduleFor(routeCode, partcustid string) (RouteScheduleEntry, bool) {
	for _, entry := range s.bundle.RouteSchedule {
		if entry.RouteCode == routeCode && entry.Partcustid == partcustid {
			return entry, true
		}
	}
	return RouteScheduleEntry{}, false
}

// OrdersOn returns the order lines dated on the given day.
func (s *Store) OrdersOn(date time.Time) []OrderRecord {
	var out []OrderRecord
	for _, order := range s.bundle.Orders {
		if SameDate(order.Date, date) {
			out = append(out, order)
		}
	}
	return out
}

// ReceivingOn returns the receiving lines arriving on the given day.
func (s *Store) ReceivingOn(date time.Time) []ReceivingRecord {
	var out []ReceivingRecord
	for _, row := range s.bundle.Receiving {
		if SameDate(row.ArrivalDate, date) {
			out = append(out, row)
		}
	}
	return out
}
