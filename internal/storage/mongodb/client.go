// Package mongodb persists simulation datasets and run results.
//
// Two repositories share one database: MasterDataRepository holds the
// warehouse dataset runs are built from, RunRepository archives finished
// runs keyed by run id. Every driver call is wrapped with a client span
// and an operation metric.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hsichihchen-design/cpdoldsim/pkg/metrics"
	"github.com/hsichihchen-design/cpdoldsim/pkg/tracing"
)

// Ceiling applied to driver calls whose caller set no deadline.
const opTimeout = 10 * time.Second

// Config holds MongoDB connection settings.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
	MinPoolSize    uint64
}

// DefaultConfig returns local-development connection settings.
func DefaultConfig() *Config {
	return &Config{
		URI:            "mongodb://localhost:27017",
		Database:       "cpdold",
		ConnectTimeout: 10 * time.Second,
		MaxPoolSize:    50,
		MinPoolSize:    5,
	}
}

// Client wraps the driver client together with the configured database.
type Client struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewClient connects and pings the deployment before returning, so a dead
// server fails fast at startup instead of on the first repository call.
func NewClient(ctx context.Context, config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	clientOpts := options.Client().
		ApplyURI(config.URI).
		SetConnectTimeout(config.ConnectTimeout).
		SetMaxPoolSize(config.MaxPoolSize).
		SetMinPoolSize(config.MinPoolSize)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	return &Client{client: client, database: client.Database(config.Database)}, nil
}

// Database returns the configured database handle.
func (c *Client) Database() *mongo.Database {
	return c.database
}

// Collection returns a collection handle on the configured database.
func (c *Client) Collection(name string) *mongo.Collection {
	return c.database.Collection(name)
}

// HealthCheck pings the primary.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// withTimeout adds the default operation deadline when the caller brought
// none of its own.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, opTimeout)
}

// instrumented carries the observability context shared by a repository's
// driver calls.
type instrumented struct {
	mon    *metrics.Metrics
	tracer trace.Tracer
	db     string
}

// do runs one driver call inside a client span and records its operation
// metric. A no-documents result counts as success; the error still reaches
// the caller for mapping.
func (i instrumented) do(ctx context.Context, collection, operation string, fn func(context.Context) error) error {
	ctx, span := i.tracer.Start(ctx, "mongodb."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracing.DatabaseSpanAttributes("mongodb", i.db, operation, collection)...),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	notFound := errors.Is(err, mongo.ErrNoDocuments)

	if i.mon != nil {
		i.mon.RecordMongoDBOperation(collection, operation, err == nil || notFound, time.Since(start))
	}
	if err != nil && !notFound {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}
