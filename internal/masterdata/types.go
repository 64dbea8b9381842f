package masterdata

import (
	"errors"
	"time"
)

// Bundle errors
var (
	ErrBundleIncomplete = errors.New("master data bundle incomplete")
	ErrItemNotFound     = errors.New("item not found in item master")
	ErrStaffNotFound    = errors.New("staff not found in skill master")
)

// SystemParameter is one row of the system parameter table. Value stays a
// raw string; DataType ("integer", "float", "string") hints the conversion.
type SystemParameter struct {
	Name        string `bson:"parameter_name" json:"parameter_name"`
	Value       string `bson:"parameter_value" json:"parameter_value"`
	DataType    string `bson:"data_type" json:"data_type"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
}

// ItemKey identifies an item by family code and part number.
type ItemKey struct {
	FamilyCode string `bson:"family_code" json:"family_code"`
	PartNumber string `bson:"part_number" json:"part_number"`
}

// Item is one row of the item master. Pick-time means are raw seconds;
// zero means the item has no override and the system parameter applies.
type Item struct {
	FamilyCode               string  `bson:"family_code" json:"family_code"`
	PartNumber               string  `bson:"part_number" json:"part_number"`
	Floor                    int     `bson:"floor" json:"floor"`
	RequiresRepack           bool    `bson:"requires_repack" json:"requires_repack"`
	PickTimeRepackSeconds    float64 `bson:"pick_time_repack_seconds,omitempty" json:"pick_time_repack_seconds,omitempty"`
	PickTimeNoRepackSeconds  float64 `bson:"pick_time_no_repack_seconds,omitempty" json:"pick_time_no_repack_seconds,omitempty"`
}

// Key returns the item master key for this item.
func (i Item) Key() ItemKey {
	return ItemKey{FamilyCode: i.FamilyCode, PartNumber: i.PartNumber}
}

// StaffSkill is one row of the staff skill master.
type StaffSkill struct {
	StaffID            int     `bson:"staff_id" json:"staff_id"`
	Name               string  `bson:"name" json:"name"`
	HomeFloor          string  `bson:"home_floor" json:"home_floor"` // "2F", "3F", "4F" or "ALL"
	SkillLevel         int     `bson:"skill_level" json:"skill_level"`
	CapacityMultiplier float64 `bson:"capacity_multiplier" json:"capacity_multiplier"`
	MaxHoursPerDay     float64 `bson:"max_hours_per_day" json:"max_hours_per_day"`
}

// WorksOnFloor reports whether the staff member can be rostered on floor.
func (s StaffSkill) WorksOnFloor(floor int) bool {
	switch s.HomeFloor {
	case "ALL":
		return true
	case "2F":
		return floor == 2
	case "3F":
		return floor == 3
	case "4F":
		return floor == 4
	default:
		return false
	}
}

// StationCapacity is one row of the workstation capacity table.
type StationCapacity struct {
	Floor         int `bson:"floor" json:"floor"`
	FixedStations int `bson:"fixed_stations" json:"fixed_stations"`
	TempStations  int `bson:"temp_stations" json:"temp_stations"`
}

// RouteScheduleEntry is one row of the route timetable. OrderEndTime and
// DeliveryTime keep the raw timetable values (2-4 digit integers or HH:MM);
// ParseClock maps them to wall-clock times.
type RouteScheduleEntry struct {
	RouteCode    string `bson:"route_code" json:"route_code"`
	Partcustid   string `bson:"partcustid" json:"partcustid"`
	OrderEndTime string `bson:"order_end_time" json:"order_end_time"`
	DeliveryTime string `bson:"delivery_time" json:"delivery_time"`
}

// InventoryRecord is one row of the item inventory table. Consulted by
// bundle validation only.
type InventoryRecord struct {
	FamilyCode string `bson:"family_code" json:"family_code"`
	PartNumber string `bson:"part_number" json:"part_number"`
	Quantity   int    `bson:"quantity" json:"quantity"`
	Location   string `bson:"location,omitempty" json:"location,omitempty"`
}

// BranchRoute maps a partcustid to its serving route. Consulted by bundle
// validation only.
type BranchRoute struct {
	Partcustid string `bson:"partcustid" json:"partcustid"`
	RouteCode  string `bson:"route_code" json:"route_code"`
}

// OrderRecord is one historical shipping order line.
type OrderRecord struct {
	IndexNo    string    `bson:"index_no" json:"index_no"`
	Date       time.Time `bson:"date" json:"date"`
	Time       string    `bson:"time" json:"time"` // raw clock, HH:MM:SS or HHMM
	RouteCode  string    `bson:"route_code" json:"route_code"`
	RouteGroup string    `bson:"route_group" json:"route_group"`
	Partcustid string    `bson:"partcustid" json:"partcustid"`
	FamilyCode string    `bson:"family_code" json:"family_code"`
	PartNumber string    `bson:"part_number" json:"part_number"`
	SaleQty    int       `bson:"sale_qty" json:"sale_qty"`
	TransCd    string    `bson:"transaction_code" json:"transaction_code"`
}

// ItemKey returns the item master key referenced by the order.
func (o OrderRecord) ItemKey() ItemKey {
	return ItemKey{FamilyCode: o.FamilyCode, PartNumber: o.PartNumber}
}

// ReceivingRecord is one historical receiving line. ReceivingID may be
// empty on intake; bundle normalization fills it in.
type ReceivingRecord struct {
	ReceivingID string    `bson:"receiving_id" json:"receiving_id"`
	ArrivalDate time.Time `bson:"date" json:"date"`
	FamilyCode  string    `bson:"family_code" json:"family_code"`
	PartNumber  string    `bson:"part_number" json:"part_number"`
	Quantity    int       `bson:"qty" json:"qty"`
}

// ItemKey returns the item master key referenced by the receiving line.
func (r ReceivingRecord) ItemKey() ItemKey {
	return ItemKey{FamilyCode: r.FamilyCode, PartNumber: r.PartNumber}
}

// Bundle carries every master-data and transaction table one simulation
// run needs, already typed. Sources are the in-memory builders (tests,
// demo fixture) and the MongoDB master-data repository.
type Bundle struct {
	SystemParameters  []SystemParameter    `bson:"system_parameters" json:"system_parameters"`
	Items             []Item               `bson:"item_master" json:"item_master"`
	StaffSkills       []StaffSkill         `bson:"staff_skill_master" json:"staff_skill_master"`
	StationCapacities []StationCapacity    `bson:"workstation_capacity" json:"workstation_capacity"`
	RouteSchedule     []RouteScheduleEntry `bson:"route_schedule_master" json:"route_schedule_master"`
	Inventory         []InventoryRecord    `bson:"item_inventory" json:"item_inventory"`
	BranchRoutes      []BranchRoute        `bson:"branch_route_master" json:"branch_route_master"`
	Orders            []OrderRecord        `bson:"historical_orders" json:"historical_orders"`
	Receiving         []ReceivingRecord    `bson:"historical_receiving" json:"historical_receiving"`
}

// ValidationReport collects the outcome of bundle validation. Errors make
// the bundle unusable; warnings are carried into run results.
type ValidationReport struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Valid reports whether the bundle passed validation without errors.
func (r *ValidationReport) Valid() bool {
	return len(r.Errors) == 0
}
