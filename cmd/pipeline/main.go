package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/fatih/color"

	"github.com/hireflow/pipeline"
)

// CLI configuration
type Config struct {
	TemplateFile string
	StatesDir    string
	LogsDir      string
	Board        bool
	Metrics      bool
	JSON         bool
	Verbose      bool
}

func main() {
	config := parseFlags()

	if config.TemplateFile == "" {
		color.Red("Error: template file is required")
		flag.Usage()
		os.Exit(1)
	}
	if _, err := os.Stat(config.TemplateFile); os.IsNotExist(err) {
		color.Red("Error: template file '%s' not found", config.TemplateFile)
		os.Exit(1)
	}

	logger := setupLogger(config.Verbose)

	color.Blue("Loading template from: %s", config.TemplateFile)
	template, err := pipeline.LoadTemplateFile(config.TemplateFile)
	if err != nil {
		log.Fatalf("Failed to load template: %v", err)
	}
	color.Cyan("Template: %s (%d phases)", template.Name(), len(template.Phases()))

	registry := pipeline.NewRegistry()
	registry.Register(template)

	store, err := pipeline.NewFileStore(config.StatesDir)
	if err != nil {
		log.Fatalf("Failed to open state store: %v", err)
	}

	var transitionLog pipeline.TransitionLog = pipeline.NewNullTransitionLog()
	if config.LogsDir != "" {
		transitionLog = pipeline.NewFileTransitionLog(config.LogsDir)
	}

	engine, err := pipeline.NewEngine(pipeline.EngineOptions{
		Registry:      registry,
		Store:         store,
		TransitionLog: transitionLog,
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()

	if config.Board {
		board, err := engine.GetBoard(ctx, template.ID())
		if err != nil {
			log.Fatalf("Failed to build board: %v", err)
		}
		printBoard(board, config.JSON)
		return
	}

	if config.Metrics {
		metrics, err := engine.GetMetrics(ctx, template.ID())
		if err != nil {
			log.Fatalf("Failed to compute metrics: %v", err)
		}
		printMetrics(metrics, config.JSON)
		return
	}

	flag.Usage()
}

func parseFlags() Config {
	var config Config
	flag.StringVar(&config.TemplateFile, "template", "", "Path to template YAML file")
	flag.StringVar(&config.StatesDir, "states", "", "Directory for candidate state files")
	flag.StringVar(&config.LogsDir, "logs", "", "Directory for transition logs")
	flag.BoolVar(&config.Board, "board", false, "Print the board projection")
	flag.BoolVar(&config.Metrics, "metrics", false, "Print pipeline metrics")
	flag.BoolVar(&config.JSON, "json", false, "Output JSON")
	flag.BoolVar(&config.Verbose, "verbose", false, "Verbose logging")
	flag.Parse()
	return config
}

func setupLogger(verbose bool) *slog.Logger {
	if verbose {
		return pipeline.NewLogger()
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

func printBoard(board []*pipeline.Column, asJSON bool) {
	if asJSON {
		printJSON(board)
		return
	}
	for _, column := range board {
		color.Cyan("%s (%d)", column.PhaseName, len(column.Cards))
		if column.SLAWarningHours > 0 {
			color.White("  sla warning at %.0fh", column.SLAWarningHours)
		}
		for _, card := range column.Cards {
			line := fmt.Sprintf("  %s  score=%.0f  days=%d", card.CandidateID, card.AIScore, card.DaysInPhase)
			if len(card.Flags) > 0 {
				line += fmt.Sprintf("  [%v]", card.Flags)
			}
			fmt.Println(line)
		}
	}
}

func printMetrics(metrics *pipeline.Metrics, asJSON bool) {
	if asJSON {
		printJSON(metrics)
		return
	}
	color.Cyan("Candidates by phase:")
	for phase, count := range metrics.CandidatesByPhase {
		fmt.Printf("  %s: %d\n", phase, count)
	}
	color.Cyan("Average hours per phase:")
	for phase, hours := range metrics.AverageTimePerPhase {
		fmt.Printf("  %s: %.1fh\n", phase, hours)
	}
	color.Cyan("Conversion rates:")
	for pair, rate := range metrics.ConversionRates {
		fmt.Printf("  %s: %.1f%%\n", pair, rate)
	}
	if len(metrics.Bottlenecks) > 0 {
		color.Yellow("Bottlenecks:")
		for _, b := range metrics.Bottlenecks {
			fmt.Printf("  %s: avg %.1fh over SLA %.0fh (%s risk)\n", b.PhaseID, b.AverageHours, b.SLAHours, b.RiskLevel)
		}
	}
	if metrics.TimeToCompletion.Count > 0 {
		color.Green("Time to completion: avg %.1fd, median %.1fd, p90 %.1fd (n=%d)",
			metrics.TimeToCompletion.AverageDays,
			metrics.TimeToCompletion.MedianDays,
			metrics.TimeToCompletion.P90Days,
			metrics.TimeToCompletion.Count)
	}
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal output: %v", err)
	}
	fmt.Println(string(data))
}
