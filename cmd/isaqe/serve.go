package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pgnlq/isaqe/pkg/audit"
	"github.com/pgnlq/isaqe/pkg/cache"
	"github.com/pgnlq/isaqe/pkg/config"
	"github.com/pgnlq/isaqe/pkg/executor"
	"github.com/pgnlq/isaqe/pkg/guardrail"
	"github.com/pgnlq/isaqe/pkg/httpapi"
	"github.com/pgnlq/isaqe/pkg/httputil"
	"github.com/pgnlq/isaqe/pkg/httputil/middleware"
	"github.com/pgnlq/isaqe/pkg/llm"
	"github.com/pgnlq/isaqe/pkg/metrics"
	pg "github.com/pgnlq/isaqe/pkg/pgx"
	"github.com/pgnlq/isaqe/pkg/pipeline"
	"github.com/pgnlq/isaqe/pkg/prompts"
	"github.com/pgnlq/isaqe/pkg/ranker"
	"github.com/pgnlq/isaqe/pkg/ratelimit"
	"github.com/pgnlq/isaqe/pkg/schema"
	"github.com/pgnlq/isaqe/pkg/sqlgen"
	"github.com/pgnlq/isaqe/pkg/sqlvalidate"
	"github.com/pgnlq/isaqe/pkg/util"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ISAQE HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cfgFile)
	},
}

func buildLogger(level string) (*zap.Logger, error) {
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(level)); err != nil {
		zl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zl)
	return cfg.Build()
}

func runServe(cfgFile string) error {
	settings, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := buildLogger(settings.App.LogLevel)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pools := pg.NewPoolManager()
	if err := pools.Add(ctx, pg.Pool{
		Name:       "isaqe",
		ConnString: settings.Postgres.DSN,
	}, true); err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pools.Close()

	conn, err := pools.Active()
	if err != nil {
		return fmt.Errorf("getting active pool: %w", err)
	}

	cacheClient, err := cache.New(cache.Config{URL: settings.Redis.URL}, log)
	if err != nil {
		return fmt.Errorf("building cache client: %w", err)
	}

	extractor := schema.NewExtractor(conn, schema.Config{
		RefreshInterval: time.Duration(settings.Schema.RefreshIntervalS) * time.Second,
	})

	rnk := ranker.New(nil)

	resources, err := prompts.Load(
		settings.Prompts.ExamplesPath,
		settings.Prompts.ReasonerSchema,
		settings.Prompts.SynthesizerSchema,
	)
	if err != nil {
		return fmt.Errorf("loading prompt resources: %w", err)
	}

	apiKey := util.GetEnvOrDefault("LLM_API_KEY", "")

	reasonerClient, err := llm.Build(llm.Config{
		Provider:    settings.LLM.Provider,
		Model:       settings.LLM.Model,
		Temperature: settings.LLM.Temperature,
		MaxTokens:   settings.LLM.MaxTokens,
		APIKey:      apiKey,
		Retry: llm.RetryConfig{
			Attempts:       settings.LLM.ReasonerRetryConfig.Attempts,
			BackoffSeconds: settings.LLM.ReasonerRetryConfig.BackoffSeconds,
		},
	}, log)
	if err != nil {
		return fmt.Errorf("building reasoner llm client: %w", err)
	}

	synthesizerClient, err := llm.Build(llm.Config{
		Provider:    settings.LLM.Provider,
		Model:       settings.LLM.Model,
		Temperature: settings.LLM.Temperature,
		MaxTokens:   settings.LLM.MaxTokens,
		APIKey:      apiKey,
		Retry: llm.RetryConfig{
			Attempts:       settings.LLM.SynthesizerRetryConfig.Attempts,
			BackoffSeconds: settings.LLM.SynthesizerRetryConfig.BackoffSeconds,
		},
	}, log)
	if err != nil {
		return fmt.Errorf("building synthesizer llm client: %w", err)
	}

	auditLogger, err := audit.New(settings.Observability.AuditLogPath, log)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer auditLogger.Close()

	p := pipeline.New(
		pipeline.Config{
			RankerTopN:          settings.Schema.RankerTopN,
			MaxSchemaSliceBytes: settings.Schema.MaxSchemaSliceBytes,
			SchemaCacheTTL:      time.Duration(settings.Redis.SchemaCacheTTLS) * time.Second,
			SQLGen:              sqlgen.Config{SampleLimit: settings.Postgres.SampleLimit},
			SQLValidate: sqlvalidate.Config{
				MaxLimit:            settings.Postgres.MaxLimit,
				DisallowedFunctions: settings.SQLGuardrails.DisallowedFunctions,
			},
			Guardrail: guardrail.Config{
				RowThreshold:  int64(settings.SQLGuardrails.RowThreshold),
				CostThreshold: float64(settings.SQLGuardrails.CostThreshold),
			},
			Executor: executor.Config{
				StatementTimeout: time.Duration(settings.Postgres.StatementTimeoutMs) * time.Millisecond,
				SampleLimit:      settings.Postgres.SampleLimit,
			},
		},
		log,
		ratelimit.New(ratelimit.Config{
			Enabled:           settings.Security.EnableRateLimiting,
			MaxRequestsPerMin: settings.Security.MaxRequestsPerMinute,
		}),
		cacheClient,
		extractor,
		rnk,
		resources,
		reasonerClient,
		synthesizerClient,
		auditLogger,
	)

	handler := httpapi.NewHandler(p, conn, log)

	router := httputil.NewRouter()
	router.Use(middleware.RequestID, middleware.LoggerWithOptions(&middleware.LoggerOptions{Logger: log}))
	handler.Register(router)

	var wg sync.WaitGroup
	metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{
		Addr: fmt.Sprintf(":%d", settings.Observability.MetricsPort),
	})

	addr := fmt.Sprintf("%s:%d", settings.App.Host, settings.App.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := router.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := router.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", zap.Error(err))
		}
	case err := <-errCh:
		return err
	}

	wg.Wait()
	return nil
}
