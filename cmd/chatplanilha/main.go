// Package main provides the entry point for the chatplanilha CLI.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mobilityedgeai/chatplanilha/cmd/chatplanilha/config"
	"github.com/mobilityedgeai/chatplanilha/pkg/compose"
	"github.com/mobilityedgeai/chatplanilha/pkg/infrastructure/metrics"
	"github.com/mobilityedgeai/chatplanilha/pkg/ingest"
	"github.com/mobilityedgeai/chatplanilha/pkg/llm"
	"github.com/mobilityedgeai/chatplanilha/pkg/models"
	"github.com/mobilityedgeai/chatplanilha/pkg/service"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "chatplanilha",
	Short: "Conversational analysis for fleet trip-log spreadsheets",
	Long: `Upload a trip-log spreadsheet and ask questions about it in plain language.

chatplanilha infers a typed schema from the sheet, translates each question
into a structured query plan, and executes it deterministically in memory.`,
}

var chatCmd = &cobra.Command{
	Use:   "chat <file>",
	Short: "Open an interactive session on a spreadsheet",
	Long: `Open an interactive question loop on the given spreadsheet.

Example:
  chatplanilha chat trips.xlsx
  chatplanilha chat trips.xls --model gpt-4o`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Print the inferred schema and profile of a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var reportCmd = &cobra.Command{
	Use:   "report <file>",
	Short: "Assemble the tables for a canonical report",
	Long: `Assemble the structured tables behind one of the canonical reports.

Example:
  chatplanilha report trips.xlsx --type driver
  chatplanilha report trips.xlsx --type scores`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(reportCmd)

	pf := rootCmd.PersistentFlags()
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.Int("max-rows", 500000, "maximum rows per uploaded spreadsheet")
	pf.Duration("idle-window", 30*time.Minute, "idle time before a session is evicted")
	pf.Duration("ask-timeout", 2*time.Minute, "overall time budget for one question")
	pf.Int("max-display-rows", 200, "maximum rows included in an answer")
	pf.Int("workers", 4, "maximum concurrent operations")
	pf.String("api-key", "", "model API key")
	pf.String("base-url", "https://api.openai.com/v1", "model API base URL")
	pf.String("model", "gpt-4o-mini", "model name")
	pf.Duration("model-timeout", 30*time.Second, "timeout for one model call")
	pf.Int("model-retries", 2, "retries after a failed model call")
	pf.Bool("metrics", false, "enable Prometheus metrics")
	pf.String("metrics-address", ":9090", "metrics server address")

	reportCmd.Flags().String("type", "general", "report type (general, driver, trip, scores)")

	if err := viper.BindPFlags(pf); err != nil {
		panic(fmt.Errorf("failed to bind flags: %w", err))
	}
	viper.SetEnvPrefix("CHATPLANILHA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("chatplanilha\n")
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Commit:     %s\n", commit)
			fmt.Printf("Build Date: %s\n", buildDate)
		},
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	core, logger, cleanup, err := buildCore()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-shutdownCh
		cancel()
	}()

	summary, err := ingestFile(ctx, core, args[0])
	if err != nil {
		return err
	}
	defer core.CloseSession(summary.SessionID)

	logger.Info().
		Str("session_id", summary.SessionID).
		Int("rows", summary.RowCount).
		Int("columns", len(summary.Columns)).
		Msg("Session ready")

	fmt.Printf("Loaded %s: %d rows, %d columns. Ask a question, or type 'exit'.\n",
		args[0], summary.RowCount, len(summary.Columns))

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" || question == "sair" {
			break
		}

		answer, err := core.Ask(ctx, summary.SessionID, question)
		if err != nil {
			fmt.Printf("Could not answer: %s\n", err)
			continue
		}
		fmt.Println(answer.Text)
		if answer.Result != nil && len(answer.Result.Rows) > 0 {
			fmt.Println()
			fmt.Print(compose.RenderTable(answer.Result, 0))
			if answer.Result.Truncated {
				fmt.Printf("(showing %d of %d rows)\n", len(answer.Result.Rows), answer.Result.TotalMatched)
			}
		}
	}
	return scanner.Err()
}

func runInspect(cmd *cobra.Command, args []string) error {
	core, _, cleanup, err := buildCore()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	summary, err := ingestFile(ctx, core, args[0])
	if err != nil {
		return err
	}
	defer core.CloseSession(summary.SessionID)

	prof, err := core.Profile(summary.SessionID)
	if err != nil {
		return err
	}
	fmt.Println(prof)
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	typ, err := cmd.Flags().GetString("type")
	if err != nil {
		return err
	}

	core, _, cleanup, err := buildCore()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	summary, err := ingestFile(ctx, core, args[0])
	if err != nil {
		return err
	}
	defer core.CloseSession(summary.SessionID)

	tables, err := core.AssembleReport(ctx, summary.SessionID, models.ReportType(typ))
	if err != nil {
		return err
	}

	for _, table := range tables.Tables {
		fmt.Printf("== %s ==\n", table.Name)
		fmt.Print(compose.RenderTable(&table.Result, 0))
		fmt.Println()
	}
	return nil
}

func ingestFile(ctx context.Context, core *service.Core, path string) (*models.DatasetSummary, error) {
	format, err := ingest.DetectFormat(path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return core.Ingest(ctx, uuid.New().String(), raw, format)
}

// buildCore loads configuration and assembles the pipeline. The returned
// cleanup releases all sessions and stops the metrics server.
func buildCore() (*service.Core, zerolog.Logger, func(), error) {
	cfg := loadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := setupLogging(cfg.LogLevel)
	logger.Info().
		Str("version", version).
		Str("model", cfg.Model.Name).
		Msg("Starting chatplanilha")

	var metricsCollector metrics.Collector
	var metricsServer *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		metricsCollector = metrics.NewPrometheusCollector()
		metricsServer = metrics.NewMetricsServer(cfg.Metrics.Address)
		go func() {
			logger.Info().Str("address", cfg.Metrics.Address).Msg("Starting metrics server")
			if err := metricsServer.Start(); err != nil {
				logger.Error().Err(err).Msg("Failed to start metrics server")
			}
		}()
	} else {
		metricsCollector = metrics.NewNoOpCollector()
	}

	client := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:      cfg.Model.APIKey,
		BaseURL:     cfg.Model.BaseURL,
		Model:       cfg.Model.Name,
		Timeout:     cfg.Model.Timeout,
		MaxRetries:  cfg.Model.MaxRetries,
		RetryDelay:  cfg.Model.RetryDelay,
		Temperature: cfg.Model.Temperature,
	})

	core := service.NewCore(
		service.Options{
			MaxRows:        cfg.MaxRows,
			IdleWindow:     cfg.IdleWindow,
			AskTimeout:     cfg.AskTimeout,
			MaxDisplayRows: cfg.MaxDisplayRows,
			Workers:        cfg.Workers,
		},
		client,
		&serviceLoggerAdapter{logger: logger.With().Str("component", "core").Logger()},
		&serviceMetricsAdapter{collector: metricsCollector},
	)

	cleanup := func() {
		core.Close()
		if metricsServer != nil {
			if err := metricsServer.Stop(); err != nil {
				logger.Error().Err(err).Msg("Error stopping metrics server")
			}
		}
	}
	return core, logger, cleanup, nil
}

func loadConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.LogLevel = viper.GetString("log-level")
	cfg.MaxRows = viper.GetInt("max-rows")
	cfg.IdleWindow = viper.GetDuration("idle-window")
	cfg.AskTimeout = viper.GetDuration("ask-timeout")
	cfg.MaxDisplayRows = viper.GetInt("max-display-rows")
	cfg.Workers = viper.GetInt("workers")
	cfg.Model.APIKey = viper.GetString("api-key")
	cfg.Model.BaseURL = viper.GetString("base-url")
	cfg.Model.Name = viper.GetString("model")
	cfg.Model.Timeout = viper.GetDuration("model-timeout")
	cfg.Model.MaxRetries = viper.GetInt("model-retries")
	cfg.Metrics.Enabled = viper.GetBool("metrics")
	cfg.Metrics.Address = viper.GetString("metrics-address")
	return cfg
}

func setupLogging(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	return zerolog.New(os.Stderr).
		Level(logLevel).
		With().
		Timestamp().
		Str("service", "chatplanilha").
		Logger()
}

// serviceLoggerAdapter adapts zerolog.Logger to service.Logger.
type serviceLoggerAdapter struct {
	logger zerolog.Logger
}

func (l *serviceLoggerAdapter) Debug(msg string, keysAndValues ...interface{}) {
	logWith(l.logger.Debug(), msg, keysAndValues)
}

func (l *serviceLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	logWith(l.logger.Info(), msg, keysAndValues)
}

func (l *serviceLoggerAdapter) Warn(msg string, keysAndValues ...interface{}) {
	logWith(l.logger.Warn(), msg, keysAndValues)
}

func (l *serviceLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	logWith(l.logger.Error(), msg, keysAndValues)
}

func logWith(event *zerolog.Event, msg string, keysAndValues []interface{}) {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key := fmt.Sprintf("%v", keysAndValues[i])
		event = event.Interface(key, keysAndValues[i+1])
	}
	event.Msg(msg)
}

// serviceMetricsAdapter adapts metrics.Collector to service.MetricsCollector.
type serviceMetricsAdapter struct {
	collector metrics.Collector
}

func (m *serviceMetricsAdapter) IncrementCounter(name string, labels ...string) {
	m.collector.IncrementCounter(name, labels...)
}

func (m *serviceMetricsAdapter) RecordHistogram(name string, value float64, labels ...string) {
	m.collector.RecordHistogram(name, value, labels...)
}

func (m *serviceMetricsAdapter) RecordGauge(name string, value float64, labels ...string) {
	m.collector.RecordGauge(name, value, labels...)
}

func (m *serviceMetricsAdapter) StartTimer(name string) service.Timer {
	return m.collector.StartTimer(name)
}
