package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/pkg/metrics"
)

// Collections holding one master-data bundle, one per dataset section.
const (
	colSystemParameters  = "system_parameters"
	colItems             = "item_master"
	colStaffSkills       = "staff_skill_master"
	colStationCapacities = "workstation_capacity"
	colRouteSchedule     = "route_schedule_master"
	colInventory         = "item_inventory"
	colBranchRoutes      = "branch_route_master"
	colOrders            = "historical_orders"
	colReceiving         = "historical_receiving"
)

// MasterDataRepository reads and writes the warehouse dataset a run is
// built from. The collection layout mirrors masterdata.Bundle section for
// section, so documents decode straight into the row types.
type MasterDataRepository struct {
	instrumented
	db  *mongo.Database
	log *slog.Logger
}

// NewMasterDataRepository binds the repository to its database. Metrics are
// optional; a nil logger falls back to the process default.
func NewMasterDataRepository(db *mongo.Database, mon *metrics.Metrics, logger *slog.Logger) *MasterDataRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &MasterDataRepository{
		instrumented: instrumented{mon: mon, tracer: otel.Tracer("mongodb"), db: db.Name()},
		db:           db,
		log:          logger.With("component", "masterdata_repository"),
	}
}

// HasData reports whether a dataset has been seeded. The parameter table is
// the sentinel: no usable bundle exists without it.
func (m *MasterDataRepository) HasData(ctx context.Context) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var count int64
	err := m.do(ctx, colSystemParameters, "countDocuments", func(ctx context.Context) error {
		var err error
		count, err = m.db.Collection(colSystemParameters).CountDocuments(ctx, bson.M{})
		return err
	})
	if err != nil {
		return false, fmt.Errorf("counting %s: %w", colSystemParameters, err)
	}
	return count > 0, nil
}

// LoadBundle reads the complete dataset. Missing collections yield empty
// sections; masterdata.NewStore decides whether the result is usable.
func (m *MasterDataRepository) LoadBundle(ctx context.Context) (*masterdata.Bundle, error) {
	bundle := &masterdata.Bundle{}
	var err error

	if bundle.SystemParameters, err = loadRows[masterdata.SystemParameter](ctx, m, colSystemParameters); err != nil {
		return nil, err
	}
	if bundle.Items, err = loadRows[masterdata.Item](ctx, m, colItems); err != nil {
		return nil, err
	}
	if bundle.StaffSkills, err = loadRows[masterdata.StaffSkill](ctx, m, colStaffSkills); err != nil {
		return nil, err
	}
	if bundle.StationCapacities, err = loadRows[masterdata.StationCapacity](ctx, m, colStationCapacities); err != nil {
		return nil, err
	}
	if bundle.RouteSchedule, err = loadRows[masterdata.RouteScheduleEntry](ctx, m, colRouteSchedule); err != nil {
		return nil, err
	}
	if bundle.Inventory, err = loadRows[masterdata.InventoryRecord](ctx, m, colInventory); err != nil {
		return nil, err
	}
	if bundle.BranchRoutes, err = loadRows[masterdata.BranchRoute](ctx, m, colBranchRoutes); err != nil {
		return nil, err
	}
	if bundle.Orders, err = loadRows[masterdata.OrderRecord](ctx, m, colOrders); err != nil {
		return nil, err
	}
	if bundle.Receiving, err = loadRows[masterdata.ReceivingRecord](ctx, m, colReceiving); err != nil {
		return nil, err
	}

	m.log.Info("master data loaded",
		"parameters", len(bundle.SystemParameters),
		"items", len(bundle.Items),
		"staff", len(bundle.StaffSkills),
		"orders", len(bundle.Orders),
		"receiving", len(bundle.Receiving))
	return bundle, nil
}

// SeedBundle replaces the stored dataset with the given bundle. Each section
// is cleared and rewritten, so reseeding never accumulates rows.
func (m *MasterDataRepository) SeedBundle(ctx context.Context, bundle *masterdata.Bundle) error {
	if bundle == nil {
		return errors.New("mongodb: nil bundle")
	}

	if err := seedRows(ctx, m, colSystemParameters, bundle.SystemParameters); err != nil {
		return err
	}
	if err := seedRows(ctx, m, colItems, bundle.Items); err != nil {
		return err
	}
	if err := seedRows(ctx, m, colStaffSkills, bundle.StaffSkills); err != nil {
		return err
	}
	if err := seedRows(ctx, m, colStationCapacities, bundle.StationCapacities); err != nil {
		return err
	}
	if err := seedRows(ctx, m, colRouteSchedule, bundle.RouteSchedule); err != nil {
		return err
	}
	if err := seedRows(ctx, m, colInventory, bundle.Inventory); err != nil {
		return err
	}
	if err := seedRows(ctx, m, colBranchRoutes, bundle.BranchRoutes); err != nil {
		return err
	}
	if err := seedRows(ctx, m, colOrders, bundle.Orders); err != nil {
		return err
	}
	if err := seedRows(ctx, m, colReceiving, bundle.Receiving); err != nil {
		return err
	}

	m.log.Info("master data seeded",
		"parameters", len(bundle.SystemParameters),
		"items", len(bundle.Items),
		"staff", len(bundle.StaffSkills),
		"orders", len(bundle.Orders),
		"receiving", len(bundle.Receiving))
	return nil
}

func loadRows[T any](ctx context.Context, m *MasterDataRepository, name string) ([]T, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var rows []T
	err := m.do(ctx, name, "find", func(ctx context.Context) error {
		cursor, err := m.db.Collection(name).Find(ctx, bson.M{})
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &rows)
	})
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	return rows, nil
}

func seedRows[T any](ctx context.Context, m *MasterDataRepository, name string, rows []T) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	err := m.do(ctx, name, "deleteMany", func(ctx context.Context) error {
		_, err := m.db.Collection(name).DeleteMany(ctx, bson.M{})
		return err
	})
	if err != nil {
		return fmt.Errorf("clearing %s: %w", name, err)
	}
	if len(rows) == 0 {
		return nil
	}

	docs := make([]interface{}, len(rows))
	for i, row := range rows {
		docs[i] = row
	}
	err = m.do(ctx, name, "insertMany", func(ctx context.Context) error {
		_, err := m.db.Collection(name).InsertMany(ctx, docs)
		return err
	})
	if err != nil {
		return fmt.Errorf("seeding %s: %w", name, err)
	}
	return nil
}
