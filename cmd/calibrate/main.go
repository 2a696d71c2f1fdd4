package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	service "github.com/katarzynaochnikdu/LEM-V1/internal/app"
	"github.com/katarzynaochnikdu/LEM-V1/internal/calibration"
	"github.com/katarzynaochnikdu/LEM-V1/internal/config"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/logger"
)

// Default configuration constants.
const (
	defaultInputDir = "calibration/responses"
	defaultTimeout  = 2 * time.Hour
)

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	var (
		inputDir   = flag.String("input", defaultInputDir, "Directory with *.txt narratives")
		outputFile = flag.String("output", "", "Results file (default: calibration_results_TIMESTAMP.json)")
		assessors  = flag.String("assessors", "", "Optional CSV with response_id,assessor,score")
		competency = flag.String("competency", string(types.DefaultCompetency), "Competency to assess (aliases accepted)")
		workers    = flag.Int("workers", cfg.CalibrationWorkers, "Number of concurrent workers")
		queueSize  = flag.Int("queue", cfg.CalibrationQueueSize, "Job queue capacity")
		timeout    = flag.Duration("timeout", defaultTimeout, "Bound for the whole run")
		slackURL   = flag.String("slack", cfg.SlackWebhookURL, "Slack incoming webhook for the summary")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		fmt.Println("LEM calibration: scores every narrative in a directory and compares with assessor scores.")
		fmt.Println()
		flag.PrintDefaults()
		return
	}

	if err := logger.InitWithFormat(cfg.LogFormat); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		_ = logger.SetLevelString("info")
	}
	log := logger.Get()

	svc := service.New(cfg, service.WithLogger(log.Named("service")))
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		os.Exit(1)
	}
	defer svc.Stop()

	runner := calibration.NewRunner(svc,
		calibration.WithSink(svc.Results()),
		calibration.WithLogger(log.Named("calibration")),
	)

	summary, _, err := runner.Run(ctx, &calibration.Config{
		InputDir:        *inputDir,
		OutputFile:      *outputFile,
		AssessorCSV:     *assessors,
		Competency:      types.Competency(*competency),
		Workers:         *workers,
		QueueSize:       *queueSize,
		Timeout:         *timeout,
		SlackWebhookURL: *slackURL,
	})
	if err != nil {
		log.Error(ctx, "calibration failed", logger.Error(err))
		svc.Stop()
		os.Exit(1)
	}
	calibration.PrintSummary(os.Stdout, summary)
	fmt.Printf("Results saved to %s\n", summary.OutputFile)
}
