package masterdata

import (
	"fmt"
	"time"
)

// DemoBundle builds the small embedded dataset used by the CLI and tests.
// The start date anchors the transaction tables: shipping orders land on
// start and start+1, receiving arrivals span start-2 through start so the
// deadline ladder (overdue, due today, normal) is exercised immediately.
func DemoBundle(start time.Time) *Bundle {
	start = DateOf(start)

	bundle := &Bundle{
		SystemParameters: demoParameters(),
		Items:            demoItems(),
		StaffSkills:      demoStaff(),
		StationCapacities: []StationCapacity{
			{Floor: 2, FixedStations: 4, TempStations: 2},
			{Floor: 3, FixedStations: 5, TempStations: 2},
			{Floor: 4, FixedStations: 3, TempStations: 1},
		},
		RouteSchedule: []RouteScheduleEntry{
			{RouteCode: "R01", Partcustid: "C001", OrderEndTime: "0850", DeliveryTime: "1000"},
			{RouteCode: "R01", Partcustid: "C002", OrderEndTime: "0900", DeliveryTime: "1000"},
			{RouteCode: "R01", Partcustid: "C003", OrderEndTime: "0830", DeliveryTime: "1000"},
			{RouteCode: "R02", Partcustid: "C004", OrderEndTime: "1230", DeliveryTime: "1400"},
			{RouteCode: "R02", Partcustid: "C005", OrderEndTime: "1215", DeliveryTime: "1400"},
			{RouteCode: "R03", Partcustid: "C006", OrderEndTime: "1500", DeliveryTime: "1630"},
			{RouteCode: "R03", Partcustid: "C007", OrderEndTime: "1445", DeliveryTime: "1630"},
		},
		BranchRoutes: []BranchRoute{
			{Partcustid: "C001", RouteCode: "R01"},
			{Partcustid: "C002", RouteCode: "R01"},
			{Partcustid: "C003", RouteCode: "R01"},
			{Partcustid: "C004", RouteCode: "R02"},
			{Partcustid: "C005", RouteCode: "R02"},
			{Partcustid: "C006", RouteCode: "R03"},
			{Partcustid: "C007", RouteCode: "R03"},
		},
	}

	for _, item := range bundle.Items {
		bundle.Inventory = append(bundle.Inventory, InventoryRecord{
			FamilyCode: item.FamilyCode,
			PartNumber: item.PartNumber,
			Quantity:   500,
			Location:   fmt.Sprintf("%dF-A01", item.Floor),
		})
	}

	bundle.Orders = demoOrders(start, bundle.Items)
	bundle.Receiving = demoReceiving(start, bundle.Items)

	return bundle
}

func demoParameters() []SystemParameter {
	return []SystemParameter{
		{Name: "daily_work_hours", Value: "8", DataType: "float"},
		{Name: "shift_start_time", Value: "08:50:00", DataType: "string"},
		{Name: "shift_end_time", Value: "17:30:00", DataType: "string"},
		{Name: "planned_staff_2f", Value: "6", DataType: "integer"},
		{Name: "planned_staff_3f", Value: "7", DataType: "integer"},
		{Name: "planned_staff_4f", Value: "4", DataType: "integer"},
		{Name: "staff_shortage_probability", Value: "0.03", DataType: "float"},
		{Name: "staff_shortage_reduction_min", Value: "1", DataType: "integer"},
		{Name: "staff_shortage_reduction_max", Value: "3", DataType: "integer"},
		{Name: "station_startup_time_minutes", Value: "180", DataType: "integer"},
		{Name: "picking_base_time_repack", Value: "45", DataType: "integer"},
		{Name: "picking_base_time_no_repack", Value: "30", DataType: "integer"},
		{Name: "repack_additional_time", Value: "15", DataType: "integer"},
		{Name: "min_task_duration", Value: "15", DataType: "integer"},
		{Name: "max_task_duration", Value: "300", DataType: "integer"},
		{Name: "skill_impact_multiplier", Value: "0.2", DataType: "float"},
		{Name: "task_interruption_allowed", Value: "Y", DataType: "string"},
		{Name: "receiving_time_per_piece", Value: "5", DataType: "integer"},
		{Name: "receiving_completion_days", Value: "3", DataType: "integer"},
		{Name: "receiving_time_variance_factor", Value: "0.15", DataType: "float"},
		{Name: "critical_quantity_threshold", Value: "1000", DataType: "integer"},
		{Name: "max_partcustids_per_station", Value: "12", DataType: "integer"},
		{Name: "time_buffer_minutes", Value: "10", DataType: "integer"},
		{Name: "wave_preparation_minutes", Value: "5", DataType: "integer"},
		{Name: "early_start_buffer_minutes", Value: "30", DataType: "integer"},
		{Name: "late_arrival_tolerance_minutes", Value: "15", DataType: "integer"},
		{Name: "min_wave_duration_minutes", Value: "30", DataType: "integer"},
		{Name: "auto_create_next_day_waves", Value: "Y", DataType: "string"},
		{Name: "urgent_transcd_list", Value: "3,6,8,A", DataType: "string"},
		{Name: "normal_transcd_list", Value: "1,2,4,5,7,9,C,D,E,F", DataType: "string"},
		{Name: "sub_warehouse_routes", Value: "SDTC,SDHN", DataType: "string"},
		{Name: "exception_probability_shipping", Value: "0.02", DataType: "float"},
		{Name: "exception_probability_receiving", Value: "0.015", DataType: "float"},
		{Name: "exception_handling_time_avg", Value: "15", DataType: "integer"},
		{Name: "exception_handling_time_std", Value: "5", DataType: "integer"},
		{Name: "leader_count", Value: "2", DataType: "integer"},
		{Name: "escalation_time_threshold", Value: "30", DataType: "integer"},
		{Name: "critical_exception_immediate_escalation", Value: "Y", DataType: "string"},
		{Name: "overtime_enabled", Value: "Y", DataType: "string"},
		{Name: "max_overtime_hours", Value: "3.0", DataType: "float"},
		{Name: "overtime_end_time", Value: "20:30:00", DataType: "string"},
		{Name: "receiving_normal_priority", Value: "P4", DataType: "string"},
		{Name: "receiving_urgent_priority", Value: "P2", DataType: "string"},
		{Name: "receiving_critical_priority", Value: "P1", DataType: "string"},
	}
}

func demoItems() []Item {
	return []Item{
		{FamilyCode: "F01", PartNumber: "P1001", Floor: 2, RequiresRepack: false, PickTimeNoRepackSeconds: 28},
		{FamilyCode: "F01", PartNumber: "P1002", Floor: 2, RequiresRepack: true, PickTimeRepackSeconds: 50},
		{FamilyCode: "F01", PartNumber: "P1003", Floor: 2, RequiresRepack: false},
		{FamilyCode: "F02", PartNumber: "P2001", Floor: 3, RequiresRepack: false, PickTimeNoRepackSeconds: 32},
		{FamilyCode: "F02", PartNumber: "P2002", Floor: 3, RequiresRepack: true},
		{FamilyCode: "F02", PartNumber: "P2003", Floor: 3, RequiresRepack: false},
		{FamilyCode: "F03", PartNumber: "P3001", Floor: 4, RequiresRepack: false},
		{FamilyCode: "F03", PartNumber: "P3002", Floor: 4, RequiresRepack: true, PickTimeRepackSeconds: 55},
	}
}

func demoStaff() []StaffSkill {
	skills := []StaffSkill{}
	floors := []string{"2F", "2F", "2F", "2F", "2F", "2F", "3F", "3F", "3F", "3F", "3F", "3F", "3F", "4F", "4F", "4F", "4F", "ALL"}
	levels := []int{3, 4, 2, 3, 5, 3, 4, 3, 2, 3, 4, 3, 5, 3, 2, 4, 3, 4}
	for i := range floors {
		skills = append(skills, StaffSkill{
			StaffID:            101 + i,
			Name:               fmt.Sprintf("Operator %02d", i+1),
			HomeFloor:          floors[i],
			SkillLevel:         levels[i],
			CapacityMultiplier: 1.0,
			MaxHoursPerDay:     10,
		})
	}
	return skills
}

func demoOrders(start time.Time, items []Item) []OrderRecord {
	partcustids := []string{"C001", "C002", "C003", "C004", "C005", "C006", "C007"}
	routes := map[string]string{
		"C001": "R01", "C002": "R01", "C003": "R01",
		"C004": "R02", "C005": "R02",
		"C006": "R03", "C007": "R03",
	}
	times := []string{"07:20:00", "07:45:00", "08:05:00", "08:20:00", "08:40:00", "09:10:00"}

	var orders []OrderRecord
	seq := 0
	for day := 0; day < 2; day++ {
		date := start.AddDate(0, 0, day)
		if !IsWorkday(date) {
			continue
		}
		for i, partcustid := range partcustids {
			for j := 0; j < 3; j++ {
				item := items[(i+j)%len(items)]
				seq++
				orders = append(orders, OrderRecord{
					IndexNo:    fmt.Sprintf("ORD%06d", seq),
					Date:       date,
					Time:       times[(i+j)%len(times)],
					RouteCode:  routes[partcustid],
					RouteGroup: fmt.Sprintf("%02d", i%3+1),
					Partcustid: partcustid,
					FamilyCode: item.FamilyCode,
					PartNumber: item.PartNumber,
					SaleQty:    1 + (i+j)%4,
					TransCd:    "1",
				})
			}
		}
		// A couple of urgent lines and sub-warehouse lines per day.
		urgentItem := items[seq%len(items)]
		seq++
		orders = append(orders, OrderRecord{
			IndexNo:    fmt.Sprintf("ORD%06d", seq),
			Date:       date,
			Time:       "09:30:00",
			RouteCode:  "R02",
			RouteGroup: "02",
			Partcustid: "C004",
			FamilyCode: urgentItem.FamilyCode,
			PartNumber: urgentItem.PartNumber,
			SaleQty:    2,
			TransCd:    "3",
		})
		subItem := items[(seq+1)%len(items)]
		seq++
		orders = append(orders, OrderRecord{
			IndexNo:    fmt.Sprintf("ORD%06d", seq),
			Date:       date,
			Time:       "10:15:00",
			RouteCode:  "SDTC",
			Partcustid: "SDTC",
			FamilyCode: subItem.FamilyCode,
			PartNumber: subItem.PartNumber,
			SaleQty:    5,
			TransCd:    "1",
		})
	}
	return orders
}

func demoReceiving(start time.Time, items []Item) []ReceivingRecord {
	var rows []ReceivingRecord
	offsets := []int{-2, -1, 0, 0, 1}
	for i, offset := range offsets {
		item := items[(i*2)%len(items)]
		rows = append(rows, ReceivingRecord{
			ArrivalDate: start.AddDate(0, 0, offset),
			FamilyCode:  item.FamilyCode,
			PartNumber:  item.PartNumber,
			Quantity:    40 + i*25,
		})
	}
	return rows
}
