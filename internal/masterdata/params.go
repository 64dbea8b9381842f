package masterdata

import (
	"strconv"
	"strings"
)

// ParameterStore is a name-keyed view over the system parameter table with
// typed lookups. Missing names and unconvertible values fall back to the
// caller's default, matching the tolerant behavior of the source table.
type ParameterStore struct {
	values map[string]SystemParameter
}

// NewParameterStore indexes the parameter rows by name. Later duplicates
// win, which lets scenario overrides be applied as appended rows.
func NewParameterStore(rows []SystemParameter) *ParameterStore {
	values := make(map[string]SystemParameter, len(rows))
	for _, row := range rows {
		values[row.Name] = row
	}
	return &ParameterStore{values: values}
}

// Has reports whether a parameter with the given name exists.
func (p *ParameterStore) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

// Override replaces (or creates) a parameter value, keeping the declared
// data type when the parameter already exists.
func (p *ParameterStore) Override(name, value string) {
	row, ok := p.values[name]
	if !ok {
		row = SystemParameter{Name: name, DataType: "string"}
	}
	row.Value = value
	p.values[name] = row
}

// Int returns the parameter as an integer, or def when absent or invalid.
func (p *ParameterStore) Int(name string, def int) int {
	row, ok := p.values[name]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(row.Value))
	if err != nil {
		// Integer tables sometimes carry float literals.
		f, ferr := strconv.ParseFloat(strings.TrimSpace(row.Value), 64)
		if ferr != nil {
			return def
		}
		return int(f)
	}
	return n
}

// Float returns the parameter as a float, or def when absent or invalid.
func (p *ParameterStore) Float(name string, def float64) float64 {
	row, ok := p.values[name]
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(row.Value), 64)
	if err != nil {
		return def
	}
	return f
}

// String returns the parameter as a string, or def when absent.
func (p *ParameterStore) String(name, def string) string {
	row, ok := p.values[name]
	if !ok {
		return def
	}
	return strings.TrimSpace(row.Value)
}

// Bool reads Y/N style flags. Y, YES, TRUE and 1 are true; N, NO, FALSE
// and 0 are false; anything else falls back to def.
func (p *ParameterStore) Bool(name string, def bool) bool {
	row, ok := p.values[name]
	if !ok {
		return def
	}
	switch strings.ToUpper(strings.TrimSpace(row.Value)) {
	case "Y", "YES", "TRUE", "1":
		return true
	case "N", "NO", "FALSE", "0":
		return false
	default:
		return def
	}
}

// StringList splits a comma-separated parameter into trimmed values.
func (p *ParameterStore) StringList(name string, def []string) []string {
	row, ok := p.values[name]
	if !ok {
		return def
	}
	parts := strings.Split(row.Value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// Clock parses the parameter as a wall-clock time, or def when absent or
// unparseable.
func (p *ParameterStore) Clock(name string, def ClockTime) ClockTime {
	row, ok := p.values[name]
	if !ok {
		return def
	}
	clock, err := ParseClock(row.Value)
	if err != nil {
		return def
	}
	return clock
}

// Params holds every recognized system parameter resolved once to native
// types. Raw values measured in seconds are converted to minutes here so
// downstream components never touch the unit mismatch again.
type Params struct {
	// Working day
	DailyWorkHours float64
	ShiftStart     ClockTime
	ShiftEnd       ClockTime

	// Staffing
	PlannedStaff              map[int]int // floor -> planned headcount
	StaffShortageProbability  float64
	StaffShortageReductionMin int
	StaffShortageReductionMax int

	// Stations and picking, minutes
	StationStartupMinutes      float64
	PickingBaseRepackMinutes   float64
	PickingBaseNoRepackMinutes float64
	RepackAdditionalMinutes    float64
	MinTaskDurationMinutes     float64
	MaxTaskDurationMinutes     float64
	SkillImpactMultiplier      float64
	TaskInterruptionAllowed    bool

	// Receiving
	ReceivingTimePerPieceMinutes float64
	ReceivingCompletionDays      int
	ReceivingTimeVarianceFactor  float64
	CriticalQuantityThreshold    int
	UrgentItemCodes              []string
	ReceivingNormalPriority      string
	ReceivingUrgentPriority      string
	ReceivingCriticalPriority    string

	// Wave packing
	MaxPartcustidsPerStation    int
	TimeBufferMinutes           float64
	WavePreparationMinutes      float64
	EarlyStartBufferMinutes     float64
	LateArrivalToleranceMinutes float64
	MinWaveDurationMinutes      float64
	AutoCreateNextDayWaves      bool

	// Order classification
	UrgentTranscd      []string
	NormalTranscd      []string
	SubWarehouseRoutes []string

	// Exceptions
	ExceptionProbabilityShipping  float64
	ExceptionProbabilityReceiving float64
	ExceptionHandlingTimeAvg      float64
	ExceptionHandlingTimeStd      float64
	LeaderCount                   int
	EscalationThresholdMinutes    float64
	CriticalImmediateEscalation   bool

	// Overtime
	OvertimeEnabled  bool
	MaxOvertimeHours float64
	OvertimeEndTime  ClockTime
}

// ResolveParams reads the recognized parameter names with their canonical
// defaults. station_startup_time_minutes, the picking base times and the
// task duration bounds are stored as seconds in the raw table.
func ResolveParams(store *ParameterStore) Params {
	return Params{
		DailyWorkHours: store.Float("daily_work_hours", 8.0),
		ShiftStart:     store.Clock("shift_start_time", ClockTime{Hour: 8, Minute: 50}),
		ShiftEnd:       store.Clock("shift_end_time", ClockTime{Hour: 17, Minute: 30}),

		PlannedStaff: map[int]int{
			2: store.Int("planned_staff_2f", 8),
			3: store.Int("planned_staff_3f", 8),
			4: store.Int("planned_staff_4f", 8),
		},
		StaffShortageProbability:  store.Float("staff_shortage_probability", 0.03),
		StaffShortageReductionMin: store.Int("staff_shortage_reduction_min", 1),
		StaffShortageReductionMax: store.Int("staff_shortage_reduction_max", 3),

		StationStartupMinutes:      store.Float("station_startup_time_minutes", 180) / 60.0,
		PickingBaseRepackMinutes:   store.Float("picking_base_time_repack", 45) / 60.0,
		PickingBaseNoRepackMinutes: store.Float("picking_base_time_no_repack", 30) / 60.0,
		RepackAdditionalMinutes:    store.Float("repack_additional_time", 15) / 60.0,
		MinTaskDurationMinutes:     store.Float("min_task_duration", 15) / 60.0,
		MaxTaskDurationMinutes:     store.Float("max_task_duration", 300) / 60.0,
		SkillImpactMultiplier:      store.Float("skill_impact_multiplier", 0.2),
		TaskInterruptionAllowed:    store.Bool("task_interruption_allowed", true),

		ReceivingTimePerPieceMinutes: store.Float("receiving_time_per_piece", 5) / 60.0,
		ReceivingCompletionDays:      store.Int("receiving_completion_days", 3),
		ReceivingTimeVarianceFactor:  store.Float("receiving_time_variance_factor", 0.15),
		CriticalQuantityThreshold:    store.Int("critical_quantity_threshold", 1000),
		UrgentItemCodes:              store.StringList("urgent_item_codes", nil),
		ReceivingNormalPriority:      store.String("receiving_normal_priority", "P4"),
		ReceivingUrgentPriority:      store.String("receiving_urgent_priority", "P2"),
		ReceivingCriticalPriority:    store.String("receiving_critical_priority", "P1"),

		MaxPartcustidsPerStation:    store.Int("max_partcustids_per_station", 12),
		TimeBufferMinutes:           store.Float("time_buffer_minutes", 10),
		WavePreparationMinutes:      store.Float("wave_preparation_minutes", 5),
		EarlyStartBufferMinutes:     store.Float("early_start_buffer_minutes", 30),
		LateArrivalToleranceMinutes: store.Float("late_arrival_tolerance_minutes", 15),
		MinWaveDurationMinutes:      store.Float("min_wave_duration_minutes", 30),
		AutoCreateNextDayWaves:      store.Bool("auto_create_next_day_waves", true),

		UrgentTranscd:      store.StringList("urgent_transcd_list", []string{"3", "6", "8", "A"}),
		NormalTranscd:      store.StringList("normal_transcd_list", []string{"1", "2", "4", "5", "7", "9", "C", "D", "E", "F"}),
		SubWarehouseRoutes: store.StringList("sub_warehouse_routes", []string{"SDTC", "SDHN"}),

		ExceptionProbabilityShipping:  store.Float("exception_probability_shipping", 0.02),
		ExceptionProbabilityReceiving: store.Float("exception_probability_receiving", 0.015),
		ExceptionHandlingTimeAvg:      store.Float("exception_handling_time_avg", 15),
		ExceptionHandlingTimeStd:      store.Float("exception_handling_time_std", 5),
		LeaderCount:                   store.Int("leader_count", 2),
		EscalationThresholdMinutes:    store.Float("escalation_time_threshold", 30),
		CriticalImmediateEscalation:   store.Bool("critical_exception_immediate_escalation", true),

		OvertimeEnabled:  store.Bool("overtime_enabled", true),
		MaxOvertimeHours: store.Float("max_overtime_hours", 3.0),
		OvertimeEndTime:  store.Clock("overtime_end_time", ClockTime{Hour: 20, Minute: 30}),
	}
}

// IsSubWarehouseRoute reports whether the route is one of the configured
// sub-warehouse routes.
func (p Params) IsSubWarehouseRoute(routeCode string) bool {
	for _, route := range p.SubWarehouseRoutes {
		if route == routeCode {
			return true
		}
	}
	return false
}
