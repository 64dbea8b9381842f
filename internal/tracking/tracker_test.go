package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsichihchen-design/cpdoldsim/internal/exceptions"
	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/sim"
	"github.com/hsichihchen-design/cpdoldsim/internal/stations"
	"github.com/hsichihchen-design/cpdoldsim/internal/tasks"
	"github.com/hsichihchen-design/cpdoldsim/internal/waves"
)

var demoStart = time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC) // Monday

type fixture struct {
	tracker *Tracker
	pool    *stations.Pool
	catalog *waves.Catalog
	handler *exceptions.Handler
}

func newFixture(t *testing.T, mutate func(*masterdata.Params)) *fixture {
	t.Helper()

	store, err := masterdata.NewStore(masterdata.DemoBundle(demoStart), nil)
	require.NoError(t, err)

	params := store.Params()
	if mutate != nil {
		mutate(&params)
	}

	pool := stations.NewPool(store.StationCapacities())
	catalog, err := waves.NewCatalog(store, nil)
	require.NoError(t, err)
	catalog.CreateWavesForDate(demoStart)

	handler := exceptions.NewHandler(pool, params, sim.NewRNG(7).Stream(sim.StreamExceptions), nil)
	return &fixture{
		tracker: NewTracker(pool, catalog, handler, store, nil),
		pool:    pool,
		catalog: catalog,
		handler: handler,
	}
}

func simTask(id string, status tasks.Status) *tasks.Task {
	return &tasks.Task{
		TaskID:            id,
		OrderID:           "ORD_" + id,
		Type:              tasks.TypeShipping,
		Status:            status,
		Priority:          tasks.PriorityP3,
		Floor:             2,
		EstimatedDuration: 60,
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 7, 7, hour, minute, 0, 0, time.UTC)
}

func TestUpdateCoalescesInsideInterval(t *testing.T) {
	fx := newFixture(t, nil)

	require.True(t, fx.tracker.Update(at(9, 0), nil, false))
	assert.False(t, fx.tracker.Update(at(9, 0).Add(5*time.Second), nil, false),
		"updates inside the 10s window should be dropped")
	assert.True(t, fx.tracker.Update(at(9, 0).Add(5*time.Second), nil, true),
		"forced updates bypass the window")
	assert.True(t, fx.tracker.Update(at(9, 0).Add(15*time.Second), nil, false))

	assert.Len(t, fx.tracker.MetricsHistory(0), 3)
}

func TestUpdateDisabled(t *testing.T) {
	fx := newFixture(t, nil)

	fx.tracker.Disable()
	assert.False(t, fx.tracker.Update(at(9, 0), nil, true))
	_, ok := fx.tracker.CurrentMetrics()
	assert.False(t, ok)

	fx.tracker.Enable()
	assert.True(t, fx.tracker.Update(at(9, 0), nil, true))
}

func TestFirstSightingEmitsNoChanges(t *testing.T) {
	fx := newFixture(t, nil)

	task := simTask("T1", tasks.StatusPending)
	require.True(t, fx.tracker.Update(at(9, 0), []*tasks.Task{task}, false))

	assert.Empty(t, fx.tracker.RecentChanges(0))
	state, ok := fx.tracker.TaskState("T1")
	require.True(t, ok)
	assert.Equal(t, tasks.StatusPending, state.Status)
}

func TestStationAndTaskTransitionsEmitChanges(t *testing.T) {
	fx := newFixture(t, nil)

	station, ok := fx.pool.Get("ST2F01")
	require.True(t, ok)
	task := simTask("T1", tasks.StatusPending)
	require.NoError(t, task.Assign("ST2F01", 101))
	station.Schedule("T1", 101, at(8, 50), at(9, 53))

	require.True(t, fx.tracker.Update(at(8, 51), []*tasks.Task{task}, false))
	require.Empty(t, fx.tracker.RecentChanges(0))

	station.StartTask("T1")
	require.NoError(t, task.Start(at(8, 53), 60))
	require.True(t, fx.tracker.Update(at(8, 53), []*tasks.Task{task}, true))

	changes := fx.tracker.RecentChanges(0)
	require.Len(t, changes, 2)

	assert.Equal(t, ComponentWorkstation, changes[0].Component)
	assert.Equal(t, "ST2F01", changes[0].ComponentID)
	assert.Equal(t, FieldChange{Old: stations.StatusStartingUp, New: stations.StatusBusy}, changes[0].Changes["status"])

	assert.Equal(t, ComponentTask, changes[1].Component)
	assert.Equal(t, "T1", changes[1].ComponentID)
	assert.Equal(t, FieldChange{Old: tasks.StatusAssigned, New: tasks.StatusInProgress}, changes[1].Changes["status"])

	// Halfway through the 60 minute run the progress diff fires.
	require.True(t, fx.tracker.Update(at(9, 23), []*tasks.Task{task}, true))
	changes = fx.tracker.RecentChanges(0)
	last := changes[len(changes)-1]
	assert.Equal(t, ComponentTask, last.Component)
	assert.Equal(t, FieldChange{Old: 0.0, New: 50.0}, last.Changes["progress_percent"])

	state, ok := fx.tracker.TaskState("T1")
	require.True(t, ok)
	assert.Equal(t, 50.0, state.ProgressPercent)
	assert.Equal(t, 30.0, state.RemainingMinutes)
}

func TestWaveProgressChanges(t *testing.T) {
	fx := newFixture(t, nil)

	active := fx.catalog.ActiveWaves()
	require.Len(t, active, 3)
	wave := active[0]
	wave.TotalTasks = 4

	require.True(t, fx.tracker.Update(at(9, 0), nil, false))
	require.Empty(t, fx.tracker.RecentChanges(0))

	wave.CompletedTasks = 2
	require.True(t, fx.tracker.Update(at(9, 10), nil, true))

	changes := fx.tracker.RecentChanges(0)
	require.Len(t, changes, 1)
	assert.Equal(t, ComponentWave, changes[0].Component)
	assert.Equal(t, wave.ID, changes[0].ComponentID)
	assert.Equal(t, FieldChange{Old: 0, New: 2}, changes[0].Changes["completed_tasks"])
	assert.Equal(t, FieldChange{Old: 0.0, New: 50.0}, changes[0].Changes["progress_percent"])
}

func TestExceptionLifecycleTracked(t *testing.T) {
	fx := newFixture(t, func(p *masterdata.Params) {
		p.ExceptionProbabilityShipping = 1.0
	})

	task := simTask("T1", tasks.StatusAssigned)
	task.AssignedStation = "ST2F01"
	event := fx.handler.DetectOnStart(task, at(9, 0))
	require.NotNil(t, event)

	require.True(t, fx.tracker.Update(at(9, 0), nil, false))
	require.Empty(t, fx.tracker.RecentChanges(0))

	leader, err := fx.handler.AssignLeader(event.ExceptionID, at(9, 1))
	require.NoError(t, err)
	require.Equal(t, 901, leader)
	require.True(t, fx.tracker.Update(at(9, 1), nil, true))

	changes := fx.tracker.RecentChanges(0)
	require.Len(t, changes, 2)
	assert.Equal(t, ComponentStaff, changes[0].Component)
	assert.Equal(t, "leader_901", changes[0].ComponentID)
	assert.Equal(t, FieldChange{Old: false, New: true}, changes[0].Changes["is_busy"])
	assert.Equal(t, FieldChange{Old: "", New: event.ExceptionID}, changes[0].Changes["assigned_exception"])
	assert.Equal(t, ComponentException, changes[1].Component)
	assert.Equal(t, FieldChange{Old: exceptions.StatusDetected, New: exceptions.StatusAssigned}, changes[1].Changes["status"])
	assert.Equal(t, FieldChange{Old: 0, New: 901}, changes[1].Changes["assigned_leader"])

	_, err = fx.handler.AllocateStation(event.ExceptionID, at(9, 2), nil)
	require.NoError(t, err)
	require.True(t, fx.tracker.Update(at(9, 2), nil, true))

	changes = fx.tracker.RecentChanges(0)
	allocated := changes[len(changes)-1]
	assert.Equal(t, ComponentException, allocated.Component)
	assert.Equal(t, FieldChange{Old: exceptions.StatusAssigned, New: exceptions.StatusInProgress}, allocated.Changes["status"])
	assert.Equal(t, FieldChange{Old: "", New: "ST2F01"}, allocated.Changes["handling_station"])

	// Resolution drops the fault from Active, but the history tail keeps
	// the terminal transition visible.
	_, err = fx.handler.Resolve(event.ExceptionID, at(9, 20), "cleared")
	require.NoError(t, err)
	require.True(t, fx.tracker.Update(at(9, 20), nil, true))

	var resolved *ChangeEvent
	for _, change := range fx.tracker.RecentChanges(0) {
		if change.Component == ComponentException && change.ComponentID == event.ExceptionID {
			c := change
			resolved = &c
		}
	}
	require.NotNil(t, resolved)
	assert.Equal(t, FieldChange{Old: exceptions.StatusInProgress, New: exceptions.StatusResolved}, resolved.Changes["status"])
	assert.Equal(t, FieldChange{Old: 0.0, New: 100.0}, resolved.Changes["progress_percent"])
}

func TestSnapshotCadence(t *testing.T) {
	fx := newFixture(t, nil)

	require.True(t, fx.tracker.Update(at(9, 0), nil, false))
	assert.Len(t, fx.tracker.Snapshots(0), 1)

	require.True(t, fx.tracker.Update(at(9, 0).Add(15*time.Second), nil, false))
	assert.Len(t, fx.tracker.Snapshots(0), 1, "no snapshot inside the 60s cadence")

	require.True(t, fx.tracker.Update(at(9, 1).Add(10*time.Second), nil, false))
	snapshots := fx.tracker.Snapshots(0)
	require.Len(t, snapshots, 2)

	latest := snapshots[1]
	assert.Equal(t, at(9, 1).Add(10*time.Second), latest.Timestamp)
	assert.Len(t, latest.Stations, 17)
	assert.Len(t, latest.Waves, 3)
}

func TestMetricsComputation(t *testing.T) {
	fx := newFixture(t, nil)

	stationA, _ := fx.pool.Get("ST2F01")
	stationB, _ := fx.pool.Get("ST3F01")
	stationA.Schedule("T1", 101, at(8, 50), at(9, 50))
	stationB.Schedule("T2", 109, at(8, 50), at(9, 50))

	active := fx.catalog.ActiveWaves()
	require.Len(t, active, 3)
	active[0].TotalTasks, active[0].CompletedTasks = 4, 2
	active[1].TotalTasks, active[1].CompletedTasks = 4, 1

	all := []*tasks.Task{
		simTask("T1", tasks.StatusAssigned),
		simTask("T2", tasks.StatusAssigned),
		simTask("T3", tasks.StatusCompleted),
	}
	require.True(t, fx.tracker.Update(at(9, 0), all, false))

	m, ok := fx.tracker.CurrentMetrics()
	require.True(t, ok)
	assert.InDelta(t, 11.8, m.WorkstationUtilization, 0.01, "2 of 17 stations warming")
	assert.InDelta(t, 33.3, m.TaskCompletionRate, 0.01)
	assert.InDelta(t, 37.5, m.WaveProgressAvg, 0.01, "mean of 50%% and 25%%, empty wave skipped")
	assert.Equal(t, 0, m.ExceptionCount)
	assert.InDelta(t, 100.0, m.StaffUtilization, 0.01, "both staffed stations working")
	assert.InDelta(t, 45.65, m.OverallEfficiency, 0.06, "mean of util, completion, waves, exception factor")
}

func TestAssessHealth(t *testing.T) {
	t.Run("no metrics yet", func(t *testing.T) {
		fx := newFixture(t, nil)
		_, err := fx.tracker.AssessHealth()
		assert.ErrorIs(t, err, ErrNoMetrics)
	})

	cases := []struct {
		name       string
		metrics    Metrics
		wantScore  float64
		wantStatus HealthStatus
		wantIssues int
	}{
		{
			name:       "healthy",
			metrics:    Metrics{WorkstationUtilization: 55, OverallEfficiency: 75},
			wantScore:  100,
			wantStatus: HealthHealthy,
		},
		{
			name:       "underutilized",
			metrics:    Metrics{WorkstationUtilization: 10, OverallEfficiency: 75},
			wantScore:  90,
			wantStatus: HealthHealthy,
		},
		{
			name:       "saturated with exception backlog",
			metrics:    Metrics{WorkstationUtilization: 95, ExceptionCount: 6, OverallEfficiency: 70},
			wantScore:  65,
			wantStatus: HealthWarning,
			wantIssues: 2,
		},
		{
			name:       "starved and inefficient",
			metrics:    Metrics{WorkstationUtilization: 10, ExceptionCount: 6, OverallEfficiency: 50},
			wantScore:  45,
			wantStatus: HealthCritical,
			wantIssues: 2,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t, nil)
			fx.tracker.metrics.push(tc.metrics)

			h, err := fx.tracker.AssessHealth()
			require.NoError(t, err)
			assert.Equal(t, tc.wantScore, h.Score)
			assert.Equal(t, tc.wantStatus, h.Status)
			assert.Len(t, h.Issues, tc.wantIssues)
		})
	}

	t.Run("busy leaders deduct", func(t *testing.T) {
		fx := newFixture(t, func(p *masterdata.Params) {
			p.ExceptionProbabilityShipping = 1.0
		})
		for i, id := range []string{"T1", "T2"} {
			task := simTask(id, tasks.StatusAssigned)
			task.AssignedStation = "ST2F01"
			event := fx.handler.DetectOnStart(task, at(9, i))
			require.NotNil(t, event)
			_, err := fx.handler.AssignLeader(event.ExceptionID, at(9, i+1))
			require.NoError(t, err)
		}
		fx.tracker.metrics.push(Metrics{WorkstationUtilization: 55, OverallEfficiency: 75})

		h, err := fx.tracker.AssessHealth()
		require.NoError(t, err)
		assert.Equal(t, 90.0, h.Score)
		require.Len(t, h.Warnings, 1)
		assert.Contains(t, h.Warnings[0], "leaders")
	})
}

func TestMetricsTrend(t *testing.T) {
	pushEfficiency := func(fx *fixture, values ...float64) {
		for _, v := range values {
			fx.tracker.metrics.push(Metrics{OverallEfficiency: v})
		}
	}

	t.Run("improving", func(t *testing.T) {
		fx := newFixture(t, nil)
		pushEfficiency(fx, 50, 50, 50, 80, 80, 80)

		trend, err := fx.tracker.MetricsTrend("overall_efficiency", 0)
		require.NoError(t, err)
		assert.Equal(t, TrendImproving, trend.Direction)
		assert.Equal(t, 6, trend.DataPoints)
		assert.Equal(t, 80.0, trend.Current)
		assert.Equal(t, 50.0, trend.Min)
		assert.Equal(t, 80.0, trend.Max)
		assert.Equal(t, 65.0, trend.Avg)
	})

	t.Run("declining", func(t *testing.T) {
		fx := newFixture(t, nil)
		pushEfficiency(fx, 80, 80, 80, 50, 50, 50)

		trend, err := fx.tracker.MetricsTrend("overall_efficiency", 0)
		require.NoError(t, err)
		assert.Equal(t, TrendDeclining, trend.Direction)
	})

	t.Run("stable within ten percent", func(t *testing.T) {
		fx := newFixture(t, nil)
		pushEfficiency(fx, 50, 51, 50, 52)

		trend, err := fx.tracker.MetricsTrend("overall_efficiency", 0)
		require.NoError(t, err)
		assert.Equal(t, TrendStable, trend.Direction)
	})

	t.Run("too few points reads stable", func(t *testing.T) {
		fx := newFixture(t, nil)
		pushEfficiency(fx, 50, 100)

		trend, err := fx.tracker.MetricsTrend("overall_efficiency", 0)
		require.NoError(t, err)
		assert.Equal(t, TrendStable, trend.Direction)
	})

	t.Run("falling exception count improves", func(t *testing.T) {
		fx := newFixture(t, nil)
		for _, n := range []int{10, 10, 2, 2} {
			fx.tracker.metrics.push(Metrics{ExceptionCount: n})
		}

		trend, err := fx.tracker.MetricsTrend("exception_count", 0)
		require.NoError(t, err)
		assert.Equal(t, TrendImproving, trend.Direction)
	})

	t.Run("window limits the rows analyzed", func(t *testing.T) {
		fx := newFixture(t, nil)
		pushEfficiency(fx, 100, 100, 100, 100, 100, 10, 10, 10)

		trend, err := fx.tracker.MetricsTrend("overall_efficiency", 3)
		require.NoError(t, err)
		assert.Equal(t, 3, trend.DataPoints)
		assert.Equal(t, TrendStable, trend.Direction)
		assert.Equal(t, 10.0, trend.Avg)
	})

	t.Run("unknown metric", func(t *testing.T) {
		fx := newFixture(t, nil)
		pushEfficiency(fx, 50)

		_, err := fx.tracker.MetricsTrend("throughput", 0)
		assert.ErrorIs(t, err, ErrUnknownMetric)
	})

	t.Run("no rows", func(t *testing.T) {
		fx := newFixture(t, nil)
		_, err := fx.tracker.MetricsTrend("overall_efficiency", 0)
		assert.ErrorIs(t, err, ErrNoMetrics)
	})
}

func TestRingRetention(t *testing.T) {
	r := newRing[int](3)

	_, ok := r.last()
	assert.False(t, ok)

	for i := 1; i <= 5; i++ {
		r.push(i)
	}
	assert.Equal(t, []int{3, 4, 5}, r.tail(0))
	assert.Equal(t, []int{3, 4, 5}, r.tail(10))
	assert.Equal(t, []int{4, 5}, r.tail(2))

	v, ok := r.last()
	require.True(t, ok)
	assert.Equal(t, 5, v)
}

func TestOverviewAndStationSummary(t *testing.T) {
	fx := newFixture(t, nil)

	station, _ := fx.pool.Get("ST2F01")
	station.Schedule("T1", 101, at(8, 50), at(9, 50))
	station.StartTask("T1")

	all := []*tasks.Task{
		simTask("T1", tasks.StatusInProgress),
		simTask("T2", tasks.StatusPending),
	}
	require.True(t, fx.tracker.Update(at(9, 0), all, false))

	o := fx.tracker.Overview(at(9, 0))
	assert.Equal(t, 3, o.ActiveWaves)
	assert.Equal(t, 0, o.CompletedWaves)
	assert.Equal(t, 1, o.StationsByStatus[stations.StatusBusy])
	assert.Equal(t, 16, o.StationsByStatus[stations.StatusIdle])
	assert.Equal(t, 1, o.TasksByStatus[tasks.StatusInProgress])
	assert.Equal(t, 1, o.TasksByStatus[tasks.StatusPending])
	assert.Equal(t, 3, o.StaffTracked, "operator 101 plus two leaders")
	assert.Equal(t, 0, o.ActiveExceptions)

	s := fx.tracker.StationSummary()
	require.Len(t, s.Floors, 3)
	floor2 := s.Floors[0]
	assert.Equal(t, 2, floor2.Floor)
	assert.Equal(t, 6, floor2.Total)
	assert.Equal(t, []string{"ST2F01"}, floor2.Active)
	assert.Len(t, floor2.Idle, 5)
	assert.InDelta(t, 16.7, floor2.Utilization, 0.01)
	assert.Equal(t, 4, s.Floors[2].Total)
}

func TestReport(t *testing.T) {
	fx := newFixture(t, nil)

	_, err := fx.tracker.Report(at(9, 0))
	assert.ErrorIs(t, err, ErrNoMetrics)

	require.True(t, fx.tracker.Update(at(9, 0), []*tasks.Task{simTask("T1", tasks.StatusPending)}, false))

	report, err := fx.tracker.Report(at(9, 5))
	require.NoError(t, err)
	assert.Equal(t, at(9, 5), report.GeneratedAt)
	assert.NotEmpty(t, report.Health.Status)
	assert.Len(t, report.Stations.Floors, 3)

	current, ok := fx.tracker.CurrentMetrics()
	require.True(t, ok)
	assert.Equal(t, current, report.Metrics)
	assert.LessOrEqual(t, len(report.RecentChanges), 20)
}

func TestResetClearsHistory(t *testing.T) {
	fx := newFixture(t, nil)

	require.True(t, fx.tracker.Update(at(9, 0), nil, false))
	station, _ := fx.pool.Get("ST2F01")
	station.Schedule("T1", 101, at(9, 5), at(10, 5))
	require.True(t, fx.tracker.Update(at(9, 5), nil, true))
	require.NotEmpty(t, fx.tracker.RecentChanges(0))

	fx.tracker.Reset()
	assert.Empty(t, fx.tracker.Snapshots(0))
	assert.Empty(t, fx.tracker.RecentChanges(0))
	_, ok := fx.tracker.CurrentMetrics()
	assert.False(t, ok)

	// The first post-reset update rebuilds the baseline silently.
	require.True(t, fx.tracker.Update(at(9, 6), nil, false))
	assert.Empty(t, fx.tracker.RecentChanges(0))
	assert.Len(t, fx.tracker.Snapshots(0), 1)
}
