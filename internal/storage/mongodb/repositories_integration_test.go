package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	tcmongodb "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/runner"
	"github.com/hsichihchen-design/cpdoldsim/internal/scheduler"
)

var demoStart = time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC) // Monday

type RepositorySuite struct {
	suite.Suite
	ctx       context.Context
	container *tcmongodb.MongoDBContainer
	client    *Client
	runs      *RunRepository
	dataset   *MasterDataRepository
}

func TestRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping mongodb integration tests in short mode")
	}
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := tcmongodb.Run(s.ctx, "mongo:6")
	s.Require().NoError(err)
	s.container = container

	uri, err := container.ConnectionString(s.ctx)
	s.Require().NoError(err)

	client, err := NewClient(s.ctx, &Config{
		URI:            uri,
		Database:       "cpdold_test",
		ConnectTimeout: 10 * time.Second,
		MaxPoolSize:    10,
		MinPoolSize:    1,
	})
	s.Require().NoError(err)
	s.client = client

	s.runs = NewRunRepository(client.Database(), nil, nil)
	s.dataset = NewMasterDataRepository(client.Database(), nil, nil)
}

func (s *RepositorySuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close(s.ctx)
	}
	if s.container != nil {
		s.Require().NoError(s.container.Terminate(s.ctx))
	}
}

func (s *RepositorySuite) TearDownTest() {
	names := []string{
		runsCollection,
		colSystemParameters, colItems, colStaffSkills, colStationCapacities,
		colRouteSchedule, colInventory, colBranchRoutes, colOrders, colReceiving,
	}
	for _, name := range names {
		_ = s.client.Collection(name).Drop(s.ctx)
	}
}

// newRecord builds an archived-run fixture with a plausible descriptor and
// a small result set.
func (s *RepositorySuite) newRecord(runID string, created time.Time, completed int) *runner.RunRecord {
	started := created.Add(time.Second)
	finished := created.Add(2 * time.Second)
	cfg := scheduler.DefaultConfig(demoStart, demoStart.AddDate(0, 0, 2), 42)
	return &runner.RunRecord{
		Descriptor: runner.Descriptor{
			RunID:      runID,
			State:      scheduler.StateCompleted,
			Config:     cfg,
			CreatedAt:  created,
			StartedAt:  &started,
			FinishedAt: &finished,
		},
		Results: &scheduler.RunStats{
			RunID:                  runID,
			State:                  scheduler.StateCompleted,
			ShippingTasksCreated:   46,
			ShippingTasksCompleted: completed,
			EventCounts:            map[string]int{"TASK_COMPLETE": completed},
			DaySummaries: []scheduler.DaySummary{
				{Date: "2025-07-07", ShippingTotal: 23, ShippingCompleted: completed},
			},
		},
	}
}

func (s *RepositorySuite) TestSaveAndFetchRoundTrip() {
	created := time.Date(2025, 7, 9, 8, 30, 0, 0, time.UTC)
	record := s.newRecord("SIM_alpha", created, 46)
	s.Require().NoError(s.runs.SaveRun(s.ctx, record))

	fetched, err := s.runs.FetchRun(s.ctx, "SIM_alpha")
	s.Require().NoError(err)
	s.Equal("SIM_alpha", fetched.Descriptor.RunID)
	s.Equal(scheduler.StateCompleted, fetched.Descriptor.State)
	s.Equal(int64(42), fetched.Descriptor.Config.Seed)
	s.True(record.Descriptor.Config.StartDate.Equal(fetched.Descriptor.Config.StartDate))
	s.Equal(scheduler.DefaultStatusUpdateInterval, fetched.Descriptor.Config.StatusUpdateInterval)
	s.WithinDuration(created, fetched.Descriptor.CreatedAt, time.Millisecond)
	s.Require().NotNil(fetched.Descriptor.StartedAt)
	s.Require().NotNil(fetched.Descriptor.FinishedAt)

	s.Require().NotNil(fetched.Results)
	s.Equal(46, fetched.Results.ShippingTasksCompleted)
	s.Equal(map[string]int{"TASK_COMPLETE": 46}, fetched.Results.EventCounts)
	s.Require().Len(fetched.Results.DaySummaries, 1)
	s.Equal("2025-07-07", fetched.Results.DaySummaries[0].Date)
	s.Equal(23, fetched.Results.DaySummaries[0].ShippingTotal)
}

func (s *RepositorySuite) TestSaveRunUpserts() {
	created := time.Date(2025, 7, 9, 9, 0, 0, 0, time.UTC)
	record := s.newRecord("SIM_upsert", created, 10)
	s.Require().NoError(s.runs.SaveRun(s.ctx, record))

	record.Results.ShippingTasksCompleted = 12
	s.Require().NoError(s.runs.SaveRun(s.ctx, record))

	count, err := s.client.Collection(runsCollection).CountDocuments(s.ctx, bson.M{})
	s.Require().NoError(err)
	s.Equal(int64(1), count)

	fetched, err := s.runs.FetchRun(s.ctx, "SIM_upsert")
	s.Require().NoError(err)
	s.Equal(12, fetched.Results.ShippingTasksCompleted)
}

func (s *RepositorySuite) TestFetchRunUnknown() {
	_, err := s.runs.FetchRun(s.ctx, "SIM_missing")
	s.Require().ErrorIs(err, runner.ErrRunNotFound)
}

func (s *RepositorySuite) TestListRunsNewestFirst() {
	base := time.Date(2025, 7, 9, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"SIM_old", "SIM_mid", "SIM_new"} {
		record := s.newRecord(id, base.Add(time.Duration(i)*time.Minute), i)
		s.Require().NoError(s.runs.SaveRun(s.ctx, record))
	}

	all, err := s.runs.ListRuns(s.ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal("SIM_new", all[0].Descriptor.RunID)
	s.Equal("SIM_old", all[2].Descriptor.RunID)

	top, err := s.runs.ListRuns(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(top, 2)
	s.Equal("SIM_new", top[0].Descriptor.RunID)
	s.Equal("SIM_mid", top[1].Descriptor.RunID)
}

func (s *RepositorySuite) TestRunIndexesCreated() {
	// Drops in TearDownTest remove indexes with the collection; a fresh
	// repository must put them back.
	repo := NewRunRepository(s.client.Database(), nil, nil)
	s.Require().NotNil(repo)

	cursor, err := s.client.Collection(runsCollection).Indexes().List(s.ctx)
	s.Require().NoError(err)
	var indexes []bson.M
	s.Require().NoError(cursor.All(s.ctx, &indexes))

	byName := make(map[string]bson.M, len(indexes))
	for _, idx := range indexes {
		if name, ok := idx["name"].(string); ok {
			byName[name] = idx
		}
	}
	s.Require().Contains(byName, "descriptor.run_id_1")
	s.Equal(true, byName["descriptor.run_id_1"]["unique"])
	s.Contains(byName, "descriptor.created_at_-1")
}

func (s *RepositorySuite) TestSeedAndLoadBundle() {
	demo := masterdata.DemoBundle(demoStart)
	s.Require().NoError(s.dataset.SeedBundle(s.ctx, demo))

	has, err := s.dataset.HasData(s.ctx)
	s.Require().NoError(err)
	s.True(has)

	loaded, err := s.dataset.LoadBundle(s.ctx)
	s.Require().NoError(err)

	s.ElementsMatch(demo.SystemParameters, loaded.SystemParameters)
	s.ElementsMatch(demo.Items, loaded.Items)
	s.ElementsMatch(demo.StaffSkills, loaded.StaffSkills)
	s.ElementsMatch(demo.StationCapacities, loaded.StationCapacities)
	s.ElementsMatch(demo.RouteSchedule, loaded.RouteSchedule)
	s.ElementsMatch(demo.Inventory, loaded.Inventory)
	s.ElementsMatch(demo.BranchRoutes, loaded.BranchRoutes)
	s.Len(loaded.Orders, len(demo.Orders))
	s.Len(loaded.Receiving, len(demo.Receiving))

	store, err := masterdata.NewStore(loaded, nil)
	s.Require().NoError(err)
	s.NotEmpty(store.Params().PlannedStaff)
}

func (s *RepositorySuite) TestSeedBundleReplaces() {
	demo := masterdata.DemoBundle(demoStart)
	s.Require().NoError(s.dataset.SeedBundle(s.ctx, demo))
	s.Require().NoError(s.dataset.SeedBundle(s.ctx, demo))

	loaded, err := s.dataset.LoadBundle(s.ctx)
	s.Require().NoError(err)
	s.Len(loaded.Orders, len(demo.Orders))
	s.Len(loaded.SystemParameters, len(demo.SystemParameters))
}

func (s *RepositorySuite) TestLoadBundleEmptyDatabase() {
	has, err := s.dataset.HasData(s.ctx)
	s.Require().NoError(err)
	s.False(has)

	loaded, err := s.dataset.LoadBundle(s.ctx)
	s.Require().NoError(err)
	s.Empty(loaded.SystemParameters)
	s.Empty(loaded.Orders)

	_, err = masterdata.NewStore(loaded, nil)
	s.Require().ErrorIs(err, masterdata.ErrBundleIncomplete)
}

// TestArchiveRealRun persists the result of an actual two-day simulation,
// proving RunStats survives the bson round trip intact.
func (s *RepositorySuite) TestArchiveRealRun() {
	store, err := masterdata.NewStore(masterdata.DemoBundle(demoStart), nil)
	s.Require().NoError(err)

	cfg := scheduler.DefaultConfig(demoStart, demoStart.AddDate(0, 0, 2), 42)
	engine, err := scheduler.NewEngine(store, cfg, nil, nil, nil)
	s.Require().NoError(err)

	runID, err := engine.Initialize()
	s.Require().NoError(err)
	s.Require().NoError(engine.Run(s.ctx))
	stats := engine.Stats()
	s.Require().NotNil(stats)

	now := time.Now().UTC()
	finished := now.Add(time.Second)
	record := &runner.RunRecord{
		Descriptor: runner.Descriptor{
			RunID:      runID,
			State:      stats.State,
			Config:     cfg,
			CreatedAt:  now,
			StartedAt:  &now,
			FinishedAt: &finished,
		},
		Results: stats,
	}
	s.Require().NoError(s.runs.SaveRun(s.ctx, record))

	fetched, err := s.runs.FetchRun(s.ctx, runID)
	s.Require().NoError(err)
	s.Equal(stats.ShippingTasksCreated, fetched.Results.ShippingTasksCreated)
	s.Equal(stats.ShippingTasksCompleted, fetched.Results.ShippingTasksCompleted)
	s.Equal(stats.WavesCompleted, fetched.Results.WavesCompleted)
	s.Equal(stats.EventCounts, fetched.Results.EventCounts)
	s.Len(fetched.Results.DaySummaries, len(stats.DaySummaries))
	if stats.FinalMetrics != nil {
		s.Require().NotNil(fetched.Results.FinalMetrics)
		s.InDelta(stats.FinalMetrics.OverallEfficiency,
			fetched.Results.FinalMetrics.OverallEfficiency, 1e-9)
	}
}
