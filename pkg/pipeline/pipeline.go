// Package pipeline sequences schema grounding, SQL generation/validation,
// guardrails, execution, and synthesis into a single query-answering
// operation, recording per-stage latency and outcome counters.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pgnlq/isaqe/pkg/audit"
	"github.com/pgnlq/isaqe/pkg/cache"
	"github.com/pgnlq/isaqe/pkg/executor"
	"github.com/pgnlq/isaqe/pkg/guardrail"
	"github.com/pgnlq/isaqe/pkg/llm"
	"github.com/pgnlq/isaqe/pkg/metrics"
	"github.com/pgnlq/isaqe/pkg/model"
	pg "github.com/pgnlq/isaqe/pkg/pgx"
	"github.com/pgnlq/isaqe/pkg/prompts"
	"github.com/pgnlq/isaqe/pkg/ranker"
	"github.com/pgnlq/isaqe/pkg/ratelimit"
	"github.com/pgnlq/isaqe/pkg/reasoner"
	"github.com/pgnlq/isaqe/pkg/schema"
	"github.com/pgnlq/isaqe/pkg/slicer"
	"github.com/pgnlq/isaqe/pkg/sqlgen"
	"github.com/pgnlq/isaqe/pkg/sqlvalidate"
	"github.com/pgnlq/isaqe/pkg/synthesizer"
)

const schemaSnapshotCacheKey = "schema_snapshot"

// ErrRateLimitExceeded is returned when the caller's rate limit key has no
// remaining budget this window.
var ErrRateLimitExceeded = errors.New("pipeline: rate limit exceeded")

// ErrGuardrailRejected is returned when the guardrail engine vetoes a
// sanitized statement.
var ErrGuardrailRejected = errors.New("pipeline: guardrail rejected statement")

// Config aggregates every stage's tunables.
type Config struct {
	RankerTopN            int
	MaxSchemaSliceBytes   int
	SchemaRefreshInterval time.Duration
	SchemaCacheTTL        time.Duration
	SQLGen                sqlgen.Config
	SQLValidate           sqlvalidate.Config
	Guardrail             guardrail.Config
	Executor              executor.Config
}

// Pipeline wires every stage component into one orchestrated operation.
type Pipeline struct {
	cfg Config
	log *zap.Logger

	rateLimiter       *ratelimit.Limiter
	cacheClient       *cache.Client
	extractor         *schema.Extractor
	ranker            *ranker.Ranker
	resources         *prompts.Resources
	reasonerClient    llm.Client
	synthesizerClient llm.Client
	auditLogger       *audit.Logger

	schemaMu sync.Mutex
}

// New builds a Pipeline from its component dependencies. reasonerClient and
// synthesizerClient may be the same Client (as when both share one retry
// policy, or when running against the echo collaborator); they are kept
// distinct because spec.md configures independent retry policies for the
// reasoner and synthesizer LLM calls.
func New(
	cfg Config,
	log *zap.Logger,
	rateLimiter *ratelimit.Limiter,
	cacheClient *cache.Client,
	extractor *schema.Extractor,
	rnk *ranker.Ranker,
	resources *prompts.Resources,
	reasonerClient llm.Client,
	synthesizerClient llm.Client,
	auditLogger *audit.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:               cfg,
		log:               log,
		rateLimiter:       rateLimiter,
		cacheClient:       cacheClient,
		extractor:         extractor,
		ranker:            rnk,
		resources:         resources,
		reasonerClient:    reasonerClient,
		synthesizerClient: synthesizerClient,
		auditLogger:       auditLogger,
	}
}

// Handle runs the full staged pipeline for req against conn.
func (p *Pipeline) Handle(ctx context.Context, conn pg.Conn, req model.Request) (model.Response, error) {
	key := req.UserID
	if key == "" {
		key = "anonymous"
	}
	if !p.rateLimiter.Allow(key) {
		metrics.RequestsTotal.WithLabelValues("rate_limited").Inc()
		return model.Response{}, ErrRateLimitExceeded
	}

	resp, err := p.run(ctx, conn, req)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("failed").Inc()
		return model.Response{}, err
	}

	metrics.RequestsTotal.WithLabelValues("success").Inc()
	return resp, nil
}

func (p *Pipeline) run(ctx context.Context, conn pg.Conn, req model.Request) (model.Response, error) {
	var resp model.Response
	err := metrics.RecordLatency("total", func() error {
		var snapshot model.SchemaSnapshot
		if err := metrics.RecordLatency("schema", func() error {
			var err error
			snapshot, err = p.schemaSnapshot(ctx, conn, req.RefreshSchema)
			return err
		}); err != nil {
			return fmt.Errorf("pipeline: schema snapshot: %w", err)
		}

		var ranked []string
		if err := metrics.RecordLatency("ranking", func() error {
			var err error
			ranked, err = p.ranker.RankTables(ctx, req.Query, snapshot, p.cfg.RankerTopN)
			return err
		}); err != nil {
			return fmt.Errorf("pipeline: ranking: %w", err)
		}

		slice := slicer.Select(snapshot, ranked, p.cfg.MaxSchemaSliceBytes)

		var reasonerOut model.ReasonerOutput
		if err := metrics.RecordLatency("reasoner", func() error {
			var err error
			reasonerOut, err = reasoner.Reason(ctx, p.reasonerClient, p.resources, req.Query, slice)
			return err
		}); err != nil {
			return fmt.Errorf("pipeline: reasoner: %w", err)
		}

		var plans []model.SQLPlan
		if err := metrics.RecordLatency("sql_generation", func() error {
			var err error
			plans, err = sqlgen.Generate(reasonerOut, p.cfg.SQLGen)
			return err
		}); err != nil {
			return fmt.Errorf("pipeline: sql generation: %w", err)
		}

		var sanitized string
		if err := metrics.RecordLatency("validation", func() error {
			var err error
			sanitized, err = sqlvalidate.Validate(plans[0].SQL, p.cfg.SQLValidate)
			return err
		}); err != nil {
			return fmt.Errorf("pipeline: validation: %w", err)
		}

		var guardMetrics model.GuardMetrics
		if err := metrics.RecordLatency("guardrails", func() error {
			allowed, m, err := guardrail.Check(ctx, conn, sanitized, p.cfg.Guardrail)
			guardMetrics = m
			if err != nil {
				return err
			}
			if !allowed {
				metrics.RequestsTotal.WithLabelValues("rejected").Inc()
				return ErrGuardrailRejected
			}
			return nil
		}); err != nil {
			return fmt.Errorf("pipeline: guardrails: %w", err)
		}

		var execResult model.ExecutionResult
		if err := metrics.RecordLatency("execution", func() error {
			var err error
			execResult, err = executor.Execute(ctx, conn, sanitized, p.cfg.Executor, 0)
			return err
		}); err != nil {
			return fmt.Errorf("pipeline: execution: %w", err)
		}

		var answer string
		if err := metrics.RecordLatency("synthesis", func() error {
			var err error
			answer, err = synthesizer.Synthesize(ctx, p.synthesizerClient, p.resources, req.Query, sanitized, execResult)
			return err
		}); err != nil {
			return fmt.Errorf("pipeline: synthesis: %w", err)
		}

		p.auditLogger.Write(audit.Entry{
			Timestamp:    float64(time.Now().UnixNano()) / 1e9,
			UserID:       req.UserID,
			Query:        req.Query,
			SQL:          sanitized,
			Metadata:     execResult.Metadata,
			GuardMetrics: guardMetrics,
		})

		resp = model.Response{
			Answer: answer,
			SQL:    sanitized,
			Rows:   execResult.Data,
			Metadata: map[string]any{
				"rows_returned": execResult.Metadata.RowsReturned,
				"truncated":     execResult.Metadata.Truncated,
			},
		}
		return nil
	})
	if err != nil {
		return model.Response{}, err
	}
	return resp, nil
}

// schemaSnapshot implements the cache↔extractor feedback loop: a
// non-blocking cache lookup first, falling back to the extractor (guarded by
// a pipeline-level lock distinct from the extractor's own internal lock)
// on a miss or forced refresh, then writing the fresh snapshot back to cache.
func (p *Pipeline) schemaSnapshot(ctx context.Context, conn pg.Conn, refresh bool) (model.SchemaSnapshot, error) {
	if !refresh {
		var snap model.SchemaSnapshot
		ok, err := p.cacheClient.GetJSON(ctx, schemaSnapshotCacheKey, &snap)
		if err == nil && ok {
			return snap, nil
		}
	}

	p.schemaMu.Lock()
	defer p.schemaMu.Unlock()

	snap, err := p.extractor.Snapshot(ctx, refresh)
	if err != nil {
		return model.SchemaSnapshot{}, err
	}

	if err := p.cacheClient.SetJSON(ctx, schemaSnapshotCacheKey, snap, p.cfg.SchemaCacheTTL); err != nil {
		if p.log != nil {
			p.log.Warn("pipeline: failed to cache schema snapshot", zap.Error(err))
		}
	}

	return snap, nil
}
