package stations

import (
	"sort"
	"time"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
)

// Pool holds every workstation for a run, keyed by id with deterministic
// iteration order. It lives for the whole simulation; waves and gap-fill
// borrow stations through it.
type Pool struct {
	stations map[string]*Station
	ordered  []string
}

// NewPool creates the stations declared by the capacity table, fixed
// before flex per floor, ids numbered from 01.
func NewPool(capacities []masterdata.StationCapacity) *Pool {
	pool := &Pool{stations: make(map[string]*Station)}

	for _, row := range capacities {
		for i := 1; i <= row.FixedStations; i++ {
			pool.add(&Station{
				StationID: FixedStationID(row.Floor, i),
				Floor:     row.Floor,
				IsFixed:   true,
				Status:    StatusIdle,
			})
		}
		for i := 1; i <= row.TempStations; i++ {
			pool.add(&Station{
				StationID: FlexStationID(row.Floor, i),
				Floor:     row.Floor,
				IsFixed:   false,
				Status:    StatusIdle,
			})
		}
	}

	sort.Strings(pool.ordered)
	return pool
}

func (p *Pool) add(s *Station) {
	p.stations[s.StationID] = s
	p.ordered = append(p.ordered, s.StationID)
}

// Get looks up a station by id.
func (p *Pool) Get(id string) (*Station, bool) {
	s, ok := p.stations[id]
	return s, ok
}

// Len returns the number of stations in the pool.
func (p *Pool) Len() int {
	return len(p.ordered)
}

// All returns every station ordered by id.
func (p *Pool) All() []*Station {
	out := make([]*Station, 0, len(p.ordered))
	for _, id := range p.ordered {
		out = append(out, p.stations[id])
	}
	return out
}

// OnFloor returns the floor's stations ordered by id.
func (p *Pool) OnFloor(floor int) []*Station {
	var out []*Station
	for _, id := range p.ordered {
		if s := p.stations[id]; s.Floor == floor {
			out = append(out, s)
		}
	}
	return out
}

// CountOnFloor returns how many stations the floor has.
func (p *Pool) CountOnFloor(floor int) int {
	return len(p.OnFloor(floor))
}

// NextAvailableOnFloor picks the station the packer opens next on a floor:
// ids ascending, fixed idle stations first, then any fixed station, then
// flex. Stations in skip or reserved for exceptions never qualify.
func (p *Pool) NextAvailableOnFloor(floor int, skip map[string]struct{}) *Station {
	var candidates []*Station
	for _, s := range p.OnFloor(floor) {
		if _, used := skip[s.StationID]; used {
			continue
		}
		if !s.CanAcceptWork() {
			continue
		}
		candidates = append(candidates, s)
	}
	if len(candidates) == 0 {
		return nil
	}

	for _, s := range candidates {
		if s.IsFixed && s.Status == StatusIdle {
			return s
		}
	}
	for _, s := range candidates {
		if s.IsFixed {
			return s
		}
	}
	return candidates[0]
}

// GapStations returns the stations free for gap-fill at now, ordered by id.
func (p *Pool) GapStations(now time.Time, skip map[string]struct{}) []*Station {
	var out []*Station
	for _, id := range p.ordered {
		s := p.stations[id]
		if _, used := skip[id]; used {
			continue
		}
		if s.AvailableAt(now) {
			out = append(out, s)
		}
	}
	return out
}

// FirstWorkableOnFloor returns the floor's first non-reserved station, the
// fallback used when overtime must bind a station immediately.
func (p *Pool) FirstWorkableOnFloor(floor int) *Station {
	for _, s := range p.OnFloor(floor) {
		if s.CanAcceptWork() {
			return s
		}
	}
	return nil
}

// IdleStation returns the first idle, non-reserved station, preferring the
// given floor; nil when every station is taken.
func (p *Pool) IdleStation(preferredFloor int) *Station {
	for _, s := range p.OnFloor(preferredFloor) {
		if s.Status == StatusIdle && !s.ReservedForException {
			return s
		}
	}
	for _, id := range p.ordered {
		s := p.stations[id]
		if s.Status == StatusIdle && !s.ReservedForException {
			return s
		}
	}
	return nil
}

// StatusCounts tallies stations per status.
func (p *Pool) StatusCounts() map[Status]int {
	counts := make(map[Status]int)
	for _, id := range p.ordered {
		counts[p.stations[id].Status]++
	}
	return counts
}

// UtilizationRate returns the share of stations busy or starting up, in
// percent.
func (p *Pool) UtilizationRate() float64 {
	if len(p.ordered) == 0 {
		return 0
	}
	busy := 0
	for _, id := range p.ordered {
		switch p.stations[id].Status {
		case StatusBusy, StatusStartingUp:
			busy++
		}
	}
	return float64(busy) / float64(len(p.ordered)) * 100
}
