package staffing

import (
	"time"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
)

// Shift is one staff member's working block at a station on a given date.
// Overtime blocks are separate shifts chained onto the end of the regular
// one, so a staff member can appear twice on the same date.
type Shift struct {
	Date           time.Time            `json:"date"`
	Floor          int                  `json:"floor"`
	StationID      string               `json:"station_id"`
	StaffID        int                  `json:"staff_id"`
	StartTime      masterdata.ClockTime `json:"shift_start_time"`
	EndTime        masterdata.ClockTime `json:"shift_end_time"`
	Hours          float64              `json:"shift_hours"`
	IsOvertime     bool                 `json:"is_overtime"`
	OvertimeHours  float64              `json:"overtime_hours"`
	OvertimeReason string               `json:"overtime_reason,omitempty"`
}

// StartAt returns the shift start as an absolute time on the shift date.
func (s Shift) StartAt() time.Time {
	return s.StartTime.At(s.Date)
}

// EndAt returns the shift end as an absolute time. An end at or before the
// start rolls over to the next day.
func (s Shift) EndAt() time.Time {
	end := s.EndTime.At(s.Date)
	if !end.After(s.StartAt()) {
		end = end.AddDate(0, 0, 1)
	}
	return end
}

// Roster is the set of shifts generated for one date.
type Roster struct {
	Date   time.Time `json:"date"`
	Shifts []Shift   `json:"shifts"`
}

// Append adds shifts to the roster.
func (r *Roster) Append(shifts ...Shift) {
	r.Shifts = append(r.Shifts, shifts...)
}

// ShiftForStation returns the regular shift rostered at the station.
func (r *Roster) ShiftForStation(stationID string) (Shift, bool) {
	for _, shift := range r.Shifts {
		if shift.StationID == stationID && !shift.IsOvertime {
			return shift, true
		}
	}
	return Shift{}, false
}

// StaffForStation returns the staff id rostered at the station.
func (r *Roster) StaffForStation(stationID string) (int, bool) {
	shift, ok := r.ShiftForStation(stationID)
	if !ok {
		return 0, false
	}
	return shift.StaffID, true
}

// StaffOnFloor returns the staff ids rostered on the floor, in station order.
func (r *Roster) StaffOnFloor(floor int) []int {
	var ids []int
	for _, shift := range r.Shifts {
		if shift.Floor == floor && !shift.IsOvertime {
			ids = append(ids, shift.StaffID)
		}
	}
	return ids
}

// HoursFor sums the rostered hours, regular plus overtime, for one staff
// member on this date.
func (r *Roster) HoursFor(staffID int) float64 {
	var total float64
	for _, shift := range r.Shifts {
		if shift.StaffID == staffID {
			total += shift.Hours
		}
	}
	return total
}

// StaffCount returns the number of regular shifts on the roster.
func (r *Roster) StaffCount() int {
	count := 0
	for _, shift := range r.Shifts {
		if !shift.IsOvertime {
			count++
		}
	}
	return count
}
