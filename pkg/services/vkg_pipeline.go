package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-vkg/pkg/logging"
	"github.com/ekaya-inc/ekaya-vkg/pkg/metrics"
	"github.com/ekaya-inc/ekaya-vkg/pkg/models"
	sqlpkg "github.com/ekaya-inc/ekaya-vkg/pkg/sql"
)

// stepOrder is the order steps appear in a complete run.
var stepOrder = []string{
	models.StepSchemaContext,
	models.StepSQLGeneration,
	models.StepSQLValidation,
	models.StepSQLExecution,
	models.StepContextGraph,
	models.StepAnswerSynthesis,
}

// Pipeline answers natural-language questions over the federated sources.
type Pipeline interface {
	// Ask never returns an error: failures are reported in the response envelope.
	Ask(ctx context.Context, req *models.QueryRequest) *models.QueryResponse
}

type pipeline struct {
	loader    SchemaContextLoader
	retry     *RetryOrchestrator
	graph     *ContextGraphBuilder
	answerer  AnswerSynthesizer
	queryMode string
	logger    *zap.Logger
}

// NewPipeline creates the query pipeline. An empty queryMode uses models.DefaultQueryMode.
func NewPipeline(
	loader SchemaContextLoader,
	retry *RetryOrchestrator,
	graph *ContextGraphBuilder,
	answerer AnswerSynthesizer,
	queryMode string,
	logger *zap.Logger,
) Pipeline {
	if queryMode == "" {
		queryMode = models.DefaultQueryMode
	}
	return &pipeline{
		loader:    loader,
		retry:     retry,
		graph:     graph,
		answerer:  answerer,
		queryMode: queryMode,
		logger:    logger.Named("pipeline"),
	}
}

var _ Pipeline = (*pipeline)(nil)

func (p *pipeline) Ask(ctx context.Context, req *models.QueryRequest) *models.QueryResponse {
	run := newPipelineRun(req)
	mode := req.QueryMode
	if mode == "" {
		mode = p.queryMode
	}

	ctx, span := tracer.Start(ctx, "vkg.ask")
	span.SetAttributes(
		attribute.String("vkg.run_id", run.ID),
		attribute.String("vkg.tenant_id", req.TenantID),
		attribute.String("vkg.workspace_id", req.WorkspaceID),
	)
	defer span.End()

	if err := validateRequest(req); err != nil {
		return p.fail(run, mode, err, nil)
	}

	// Schema context
	stepCtx, done := run.track(ctx, models.StepSchemaContext, 0)
	sc, err := p.loader.Load(stepCtx, req.TenantID, req.WorkspaceID)
	if err != nil {
		fault := newFault(FaultSchemaContext, 0, err)
		done(fault)
		return p.fail(run, mode, fault, nil)
	}
	done(nil)
	for _, table := range sc.Unresolved {
		run.warn(fmt.Sprintf("source table %s is not exposed by any registered catalog", table))
	}

	// Generate, validate, execute
	outcome, err := p.retry.Run(ctx, run, sc)
	if err != nil {
		return p.fail(run, mode, err, nil)
	}
	if outcome.RawFallback {
		run.warn("SQL was extracted from an unstructured response; the plan is a placeholder")
	}
	run.Warnings = append(run.Warnings, outcome.Validation.Warnings...)

	// Context graph; failures here never fail the request
	sources := GraphSources{SQL: outcome.SQL, Databases: citedDatabases(outcome.SQL)}
	_, done = run.track(ctx, models.StepContextGraph, 0)
	graph, graphErr := p.graph.Build(outcome.Result, sc.Schema, sc.Mappings, sources)
	if graphErr != nil {
		done(graphErr)
		metrics.PipelineFailuresTotal.WithLabelValues(string(FaultGraphBuild)).Inc()
		p.logger.Warn("Context graph unavailable",
			zap.String("run_id", run.ID),
			zap.Error(graphErr))
		run.warn("context graph unavailable: " + graphErr.Error())
		graph = models.EmptyContextGraph()
	} else {
		done(nil)
	}
	reasoning := p.graph.Trace(graph, req.Question, sources)

	// Answer; not retried
	stepCtx, done = run.track(ctx, models.StepAnswerSynthesis, 0)
	answer, err := p.answerer.Answer(stepCtx, req.Question, outcome.Result, graph)
	if err != nil {
		fault := newFault(FaultAnswer, 0, err)
		done(fault)
		return p.fail(run, mode, fault, outcome)
	}
	done(nil)

	total := run.elapsed()
	metrics.PipelineRunsTotal.WithLabelValues("success").Inc()
	metrics.PipelineAttempts.Observe(float64(outcome.Attempts))

	p.logger.Info("Query answered",
		zap.String("run_id", run.ID),
		zap.String("tenant_id", req.TenantID),
		zap.String("workspace_id", req.WorkspaceID),
		zap.Int("attempts", outcome.Attempts),
		zap.Int("rows", outcome.Result.RowCount),
		zap.Duration("duration", total))

	return &models.QueryResponse{
		Answer:         answer,
		Question:       req.Question,
		QueryMode:      mode,
		ContextGraph:   graph,
		ReasoningTrace: reasoning,
		Citations: models.Citations{
			SQL:       outcome.SQL,
			Databases: sources.Databases,
		},
		ExecutionStats:    executionStats(outcome.Result, outcome.Attempts, total),
		ExecutionPipeline: pipelineTrail(run, total),
		Plan:              outcome.Plan,
		Warnings:          run.Warnings,
		Results:           outcome.Result,
		CompletedAt:       time.Now().UTC(),
	}
}

func validateRequest(req *models.QueryRequest) *PipelineFault {
	var missing []string
	if strings.TrimSpace(req.TenantID) == "" {
		missing = append(missing, "tenant_id")
	}
	if strings.TrimSpace(req.WorkspaceID) == "" {
		missing = append(missing, "workspace_id")
	}
	if strings.TrimSpace(req.Question) == "" {
		missing = append(missing, "question")
	}
	if len(missing) == 0 {
		return nil
	}
	return &PipelineFault{
		Kind:    FaultInvalidInput,
		Message: "missing required fields: " + strings.Join(missing, ", "),
	}
}

// fail builds the error envelope. outcome is set when execution succeeded
// before the failure, so the raw results can still be returned.
func (p *pipeline) fail(run *PipelineRun, mode string, err error, outcome *RetryOutcome) *models.QueryResponse {
	kind := FaultPipelineFailure
	attempts := 0

	var failure *PipelineFailure
	var fault *PipelineFault
	switch {
	case errors.As(err, &failure):
		attempts = failure.Attempts
	case errors.As(err, &fault):
		kind = fault.Kind
	}

	resp := &models.QueryResponse{
		Question:       run.Question,
		QueryMode:      mode,
		ContextGraph:   models.EmptyContextGraph(),
		ReasoningTrace: []models.ReasoningStep{},
		Warnings:       run.Warnings,
		Error:          logging.SanitizeError(err),
		ErrorKind:      string(kind),
	}
	if outcome != nil {
		attempts = outcome.Attempts
		resp.Plan = outcome.Plan
		resp.Results = outcome.Result
		resp.Citations = models.Citations{SQL: outcome.SQL, Databases: citedDatabases(outcome.SQL)}
	}

	for _, name := range stepOrder {
		if run.stepCount(name) == 0 {
			run.skip(name)
		}
	}

	total := run.elapsed()
	var result *models.ExecutionResult
	if outcome != nil {
		result = outcome.Result
	}
	resp.ExecutionStats = executionStats(result, attempts, total)
	resp.ExecutionPipeline = pipelineTrail(run, total)
	resp.CompletedAt = time.Now().UTC()

	metrics.PipelineRunsTotal.WithLabelValues("failed").Inc()
	metrics.PipelineFailuresTotal.WithLabelValues(string(kind)).Inc()
	if attempts > 0 {
		metrics.PipelineAttempts.Observe(float64(attempts))
	}

	p.logger.Error("Query failed",
		zap.String("run_id", run.ID),
		zap.String("tenant_id", run.TenantID),
		zap.String("workspace_id", run.WorkspaceID),
		zap.String("kind", string(kind)),
		zap.Int("attempts", attempts),
		zap.String("error", resp.Error),
		zap.Duration("duration", total))

	return resp
}

func (r *PipelineRun) stepCount(name string) int {
	n := 0
	for _, s := range r.Steps {
		if s.Name == name {
			n++
		}
	}
	return n
}

func executionStats(result *models.ExecutionResult, attempts int, total time.Duration) models.ExecutionStats {
	stats := models.ExecutionStats{Attempts: attempts, TotalDurationMs: total.Milliseconds()}
	if result != nil {
		stats.RowCount = result.RowCount
		stats.ColumnCount = len(result.Columns)
		stats.EngineMs = result.DurationMs
	}
	return stats
}

func pipelineTrail(run *PipelineRun, total time.Duration) models.ExecutionPipeline {
	return models.ExecutionPipeline{
		RunID:           run.ID,
		Steps:           run.Steps,
		TotalDurationMs: total.Milliseconds(),
	}
}

// citedDatabases lists the catalog.schema pairs the query reads from.
func citedDatabases(query string) []string {
	seen := make(map[string]struct{})
	for _, ref := range sqlpkg.TableRefs(query) {
		if !ref.Qualified() {
			continue
		}
		db := strings.Join(ref.Parts[:len(ref.Parts)-1], ".")
		seen[db] = struct{}{}
	}

	databases := make([]string, 0, len(seen))
	for db := range seen {
		databases = append(databases, db)
	}
	sort.Strings(databases)
	return databases
}
