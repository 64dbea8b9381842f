// Command simulator runs one simulation (or a what-if scenario batch)
// from the command line and prints the results as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hsichihchen-design/cpdoldsim/internal/eventsink"
	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/runner"
	"github.com/hsichihchen-design/cpdoldsim/internal/scenario"
	"github.com/hsichihchen-design/cpdoldsim/internal/scheduler"
	"github.com/hsichihchen-design/cpdoldsim/internal/storage/mongodb"
	"github.com/hsichihchen-design/cpdoldsim/pkg/logging"
)

const serviceName = "simulator-cli"

func main() {
	var (
		startFlag     = flag.String("start", "2025-07-07", "simulation start date (YYYY-MM-DD)")
		daysFlag      = flag.Int("days", 2, "number of simulated days")
		seedFlag      = flag.Int64("seed", 42, "random seed for deterministic replay")
		scenarioFlag  = flag.String("scenarios", "", "YAML scenario file; runs what-if analysis instead of a single run")
		templatesFlag = flag.Bool("templates", false, "run the built-in scenario templates")
		mongoFlag     = flag.String("mongodb", "", "MongoDB URI; loads the dataset and archives the run when set")
		databaseFlag  = flag.String("database", "cpdold", "MongoDB database name")
		kafkaFlag     = flag.String("kafka", "", "Kafka brokers (comma-separated); publishes lifecycle events when set")
		logLevelFlag  = flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(*logLevelFlag)
	logConfig.Output = os.Stderr
	logger := logging.New(logConfig)
	logger.SetDefault()

	start, err := time.Parse("2006-01-02", *startFlag)
	if err != nil {
		fatal(logger, "invalid -start date", err)
	}
	if *daysFlag < 1 {
		fatal(logger, "invalid -days", fmt.Errorf("need at least one day, got %d", *daysFlag))
	}
	end := start.AddDate(0, 0, *daysFlag)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Dataset: MongoDB when given, the embedded demo bundle otherwise.
	var (
		bundle   *masterdata.Bundle
		runStore runner.ResultStore
	)
	if *mongoFlag != "" {
		mongoConfig := mongodb.DefaultConfig()
		mongoConfig.URI = *mongoFlag
		mongoConfig.Database = *databaseFlag

		client, err := mongodb.NewClient(ctx, mongoConfig)
		if err != nil {
			fatal(logger, "failed to connect to MongoDB", err)
		}
		defer client.Close(context.Background())

		masterRepo := mongodb.NewMasterDataRepository(client.Database(), nil, logger.Logger)
		hasData, err := masterRepo.HasData(ctx)
		if err != nil {
			fatal(logger, "failed to probe master data", err)
		}
		if !hasData {
			if err := masterRepo.SeedBundle(ctx, masterdata.DemoBundle(start)); err != nil {
				fatal(logger, "failed to seed demo dataset", err)
			}
			logger.Info("Seeded demo dataset", "database", *databaseFlag)
		}
		if bundle, err = masterRepo.LoadBundle(ctx); err != nil {
			fatal(logger, "failed to load master data", err)
		}
		runStore = mongodb.NewRunRepository(client.Database(), nil, logger.Logger)
	} else {
		bundle = masterdata.DemoBundle(start)
	}

	cfg := scheduler.DefaultConfig(start, end, *seedFlag)

	// Scenario mode compares runs over the bundle directly; the single-run
	// mode goes through the runner so the archive sees the result.
	if *scenarioFlag != "" || *templatesFlag {
		runScenarios(ctx, logger, bundle, cfg, *scenarioFlag, *templatesFlag)
		return
	}

	var sink eventsink.Sink
	if *kafkaFlag != "" {
		kafkaConfig := eventsink.DefaultKafkaConfig()
		kafkaConfig.Brokers = strings.Split(*kafkaFlag, ",")
		kafkaConfig.ClientID = serviceName
		kafkaSink := eventsink.NewKafka(kafkaConfig, nil, logger.Logger)
		defer kafkaSink.Close()
		sink = kafkaSink
	} else {
		sink = eventsink.NewMemory()
	}

	store, err := masterdata.NewStore(bundle, logger.Logger)
	if err != nil {
		fatal(logger, "failed to build master-data store", err)
	}
	for _, warning := range store.Validation().Warnings {
		logger.Warn("dataset warning", "detail", warning)
	}

	runs, err := runner.NewRunner(store, sink, runStore, nil, logger.Logger)
	if err != nil {
		fatal(logger, "failed to build runner", err)
	}

	stats, err := runs.RunSync(ctx, cfg)
	if err != nil {
		fatal(logger, "simulation failed", err)
	}

	printJSON(logger, stats)
	if stats.State != scheduler.StateCompleted {
		os.Exit(1)
	}
}

// runScenarios executes the what-if analysis and prints the ranked reports.
func runScenarios(ctx context.Context, logger *logging.Logger, bundle *masterdata.Bundle, cfg scheduler.Config, path string, templates bool) {
	scenarios := scenario.Templates()
	if path != "" {
		loaded, err := scenario.Load(path)
		if err != nil {
			fatal(logger, "failed to load scenario file", err)
		}
		if !templates {
			scenarios = loaded
		} else {
			scenarios = append(scenarios, loaded...)
		}
	}

	analyzer, err := scenario.NewAnalyzer(bundle, cfg, logger.Logger)
	if err != nil {
		fatal(logger, "failed to build analyzer", err)
	}

	reports, err := analyzer.RunAll(ctx, scenarios)
	if err != nil {
		fatal(logger, "scenario analysis failed", err)
	}

	printJSON(logger, scenario.Rank(reports))
}

func printJSON(logger *logging.Logger, v any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fatal(logger, "failed to encode output", err)
	}
}

func fatal(logger *logging.Logger, msg string, err error) {
	logger.WithError(err).Error(msg)
	os.Exit(1)
}
