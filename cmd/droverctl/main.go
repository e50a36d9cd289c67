package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/common"
	"github.com/droverhq/drover/internal/dispatch"
	"github.com/droverhq/drover/internal/models"
)

// droverctl fans one start-request out across the configured worker
// pool, giving worker i the (batch_index=i, batch_count=N) slice.
//
//	droverctl -config pool.toml -task-type warmup -task-id 42 -concurrency 2
var (
	configFile   = flag.String("config", "", "Configuration file path")
	taskTypeFlag = flag.String("task-type", "", "Task type to start (required)")
	taskID       = flag.Int("task-id", 0, "Task ID to start (required)")
	concurrency  = flag.Int("concurrency", 0, "Per-worker entity concurrency")
	headless     = flag.Bool("headless", true, "Run browser flows headless")
	uploadMethod = flag.String("upload-method", "", "bulk_upload only: browser or api")
	workersFlag  = flag.String("workers", "", "Comma-separated worker base URLs (overrides config)")
	timeoutFlag  = flag.Duration("timeout", 30*time.Second, "Overall dispatch timeout")
	showVersion  = flag.Bool("version", false, "Print version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("droverctl version %s\n", common.GetVersion())
		os.Exit(0)
	}

	logger := arbor.NewLogger()

	if *taskTypeFlag == "" || *taskID <= 0 {
		flag.Usage()
		os.Exit(2)
	}

	var configFiles []string
	if *configFile != "" {
		configFiles = append(configFiles, *configFile)
	}
	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if *workersFlag != "" {
		config.Dispatch.Workers = nil
		for _, worker := range strings.Split(*workersFlag, ",") {
			if trimmed := strings.TrimSpace(worker); trimmed != "" {
				config.Dispatch.Workers = append(config.Dispatch.Workers, trimmed)
			}
		}
	}

	opts := models.RunOptions{
		Concurrency:  *concurrency,
		Headless:     *headless,
		UploadMethod: *uploadMethod,
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	dispatcher := dispatch.NewDispatcher(&config.Dispatch, logger)
	results, err := dispatcher.Dispatch(ctx, models.TaskType(*taskTypeFlag), *taskID, opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("Dispatch failed")
	}

	failures := 0
	for _, result := range results {
		if result.Err != nil {
			failures++
		}
	}

	out, _ := json.MarshalIndent(results, "", "  ")
	fmt.Println(string(out))

	if failures == len(results) {
		logger.Error().Int("workers", len(results)).Msg("Every worker dispatch failed")
		os.Exit(1)
	}
	if failures > 0 {
		logger.Warn().
			Int("failed", failures).
			Int("workers", len(results)).
			Msg("Some worker dispatches failed; their slices are unprocessed this run")
	}
}
