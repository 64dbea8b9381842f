package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"

	"github.com/hsichihchen-design/cpdoldsim/internal/runner"
	"github.com/hsichihchen-design/cpdoldsim/pkg/metrics"
)

// One document per run, keyed by descriptor.run_id.
const runsCollection = "simulation_runs"

// RunRepository archives finished simulation runs. It implements
// runner.ResultStore.
type RunRepository struct {
	instrumented
	collection *mongo.Collection
	log        *slog.Logger
}

var _ runner.ResultStore = (*RunRepository)(nil)

// NewRunRepository binds the repository to its collection and ensures the
// indexes exist. Metrics are optional; a nil logger falls back to the
// process default.
func NewRunRepository(db *mongo.Database, mon *metrics.Metrics, logger *slog.Logger) *RunRepository {
	if logger == nil {
		logger = slog.Default()
	}
	r := &RunRepository{
		instrumented: instrumented{mon: mon, tracer: otel.Tracer("mongodb"), db: db.Name()},
		collection:   db.Collection(runsCollection),
		log:          logger.With("component", "run_repository"),
	}
	r.ensureIndexes(context.Background())
	return r
}

func (r *RunRepository) ensureIndexes(ctx context.Context) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "descriptor.run_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "descriptor.created_at", Value: -1}},
		},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		r.log.Warn("creating run indexes failed", "error", err)
	}
}

// SaveRun upserts the record under its run id, so re-archiving a run is
// idempotent.
func (r *RunRepository) SaveRun(ctx context.Context, record *runner.RunRecord) error {
	if record == nil || record.Descriptor.RunID == "" {
		return errors.New("mongodb: run record without id")
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	err := r.do(ctx, runsCollection, "updateOne", func(ctx context.Context) error {
		filter := bson.M{"descriptor.run_id": record.Descriptor.RunID}
		update := bson.M{"$set": record}
		_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
		return err
	})
	if err != nil {
		return fmt.Errorf("saving run %s: %w", record.Descriptor.RunID, err)
	}
	return nil
}

// FetchRun loads one archived run. Unknown ids map to runner.ErrRunNotFound.
func (r *RunRepository) FetchRun(ctx context.Context, runID string) (*runner.RunRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var record runner.RunRecord
	err := r.do(ctx, runsCollection, "findOne", func(ctx context.Context) error {
		return r.collection.FindOne(ctx, bson.M{"descriptor.run_id": runID}).Decode(&record)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", runner.ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching run %s: %w", runID, err)
	}
	return &record, nil
}

// ListRuns returns archived runs newest first. A non-positive limit means
// no limit.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]*runner.RunRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "descriptor.created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	records := make([]*runner.RunRecord, 0)
	err := r.do(ctx, runsCollection, "find", func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, bson.M{}, opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &records)
	})
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return records, nil
}
