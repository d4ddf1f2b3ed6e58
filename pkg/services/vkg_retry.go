package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-vkg/pkg/audit"
	"github.com/ekaya-inc/ekaya-vkg/pkg/engine"
	"github.com/ekaya-inc/ekaya-vkg/pkg/llm"
	"github.com/ekaya-inc/ekaya-vkg/pkg/logging"
	"github.com/ekaya-inc/ekaya-vkg/pkg/metrics"
	"github.com/ekaya-inc/ekaya-vkg/pkg/models"
	sqlpkg "github.com/ekaya-inc/ekaya-vkg/pkg/sql"
)

// DefaultMaxAttempts bounds generation attempts per question.
const DefaultMaxAttempts = 3

// RetryState is a state of the generate/validate/execute loop.
type RetryState int

const (
	StateGenerating RetryState = iota
	StateValidating
	StateExecuting
	StateSucceeded
	StateFailed
)

func (s RetryState) String() string {
	switch s {
	case StateGenerating:
		return "generating"
	case StateValidating:
		return "validating"
	case StateExecuting:
		return "executing"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// transition returns the state after a step in state finished. A nil fault
// advances the loop; a fault returns to generating while attempts remain.
func transition(state RetryState, fault *PipelineFault, attempt, maxAttempts int) RetryState {
	if fault != nil {
		if fault.Terminal || attempt >= maxAttempts {
			return StateFailed
		}
		return StateGenerating
	}

	switch state {
	case StateGenerating:
		return StateValidating
	case StateValidating:
		return StateExecuting
	case StateExecuting:
		return StateSucceeded
	default:
		return state
	}
}

// RetryOutcome is the winning candidate of the retry loop.
type RetryOutcome struct {
	Plan       *models.QueryPlan
	SQL        string
	Validation *models.ValidationResult
	Result     *models.ExecutionResult
	Attempts   int
	// RawFallback is true when the winning SQL came without a structured plan.
	RawFallback bool
}

// RetryOrchestrator binds generation, validation and execution with a bounded
// number of attempts and conversational error feedback.
type RetryOrchestrator struct {
	generator   SQLGenerator
	validator   SQLValidator
	executor    engine.Executor
	maxAttempts int
	auditor     *audit.SecurityAuditor
	logger      *zap.Logger
}

// NewRetryOrchestrator creates a RetryOrchestrator. maxAttempts <= 0 uses DefaultMaxAttempts.
func NewRetryOrchestrator(generator SQLGenerator, validator SQLValidator, executor engine.Executor, maxAttempts int, logger *zap.Logger) *RetryOrchestrator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &RetryOrchestrator{
		generator:   generator,
		validator:   validator,
		executor:    executor,
		maxAttempts: maxAttempts,
		logger:      logger.Named("retry"),
	}
}

// WithAuditor reports forbidden statements and injection fingerprints in
// generated SQL to the security audit log.
func (o *RetryOrchestrator) WithAuditor(auditor *audit.SecurityAuditor) *RetryOrchestrator {
	o.auditor = auditor
	return o
}

// Run drives the loop to StateSucceeded or StateFailed. SQL that failed
// validation is never executed. On failure the error is a *PipelineFailure.
func (o *RetryOrchestrator) Run(ctx context.Context, run *PipelineRun, sc *SchemaContext) (*RetryOutcome, error) {
	state := StateGenerating
	attempt := 1

	var (
		candidate  GenerationResult
		validation *models.ValidationResult
		result     *models.ExecutionResult
		lastFault  *PipelineFault
	)

	for {
		var fault *PipelineFault

		switch state {
		case StateSucceeded:
			_, raw := candidate.(*RawFallback)
			return &RetryOutcome{
				Plan:        candidate.QueryPlan(),
				SQL:         candidate.Statement(),
				Validation:  validation,
				Result:      result,
				Attempts:    attempt,
				RawFallback: raw,
			}, nil
		case StateFailed:
			return nil, &PipelineFailure{Attempts: attempt, Last: lastFault}
		case StateGenerating:
			candidate, fault = o.generate(ctx, run, sc, attempt)
		case StateValidating:
			validation, fault = o.validate(ctx, run, candidate.Statement(), sc.Mappings, attempt)
		case StateExecuting:
			result, fault = o.execute(ctx, run, candidate.Statement(), attempt)
		}

		next := transition(state, fault, attempt, o.maxAttempts)
		if fault != nil {
			lastFault = fault
			metrics.PipelineFailuresTotal.WithLabelValues(string(fault.Kind)).Inc()
			o.logger.Warn("Query attempt failed",
				zap.String("run_id", run.ID),
				zap.Int("attempt", attempt),
				zap.String("state", state.String()),
				zap.String("kind", string(fault.Kind)),
				zap.String("reason", logging.SanitizeError(fault)))

			if next == StateGenerating {
				run.appendCorrection(candidate, fault)
				candidate = nil
				attempt++
			}
		}
		state = next
	}
}

func (o *RetryOrchestrator) generate(ctx context.Context, run *PipelineRun, sc *SchemaContext, attempt int) (GenerationResult, *PipelineFault) {
	stepCtx, done := run.track(ctx, models.StepSQLGeneration, attempt)

	candidate, err := o.generator.Generate(stepCtx, &GenerationRequest{
		Question: run.Question,
		Schema:   sc.Schema,
		Mappings: sc.Mappings,
		History:  run.History,
	})
	if err != nil {
		fault := newFault(FaultGeneration, attempt, err)
		// An open breaker or a cancelled caller will fail every further attempt.
		fault.Terminal = llm.GetErrorType(err) == llm.ErrorTypeCircuit || ctx.Err() != nil
		done(fault)
		return nil, fault
	}
	if candidate.Statement() == "" {
		fault := newFault(FaultGeneration, attempt, errors.New("the response did not contain a SQL statement"))
		done(fault)
		return candidate, fault
	}

	done(nil)
	return candidate, nil
}

func (o *RetryOrchestrator) validate(ctx context.Context, run *PipelineRun, query string, mappings *models.MappingTable, attempt int) (*models.ValidationResult, *PipelineFault) {
	_, done := run.track(ctx, models.StepSQLValidation, attempt)

	validation := o.validator.Validate(query, mappings)
	o.audit(ctx, run, query, attempt)
	if !validation.Valid {
		fault := &PipelineFault{
			Kind:    FaultValidation,
			Message: strings.Join(validation.Errors, "; "),
			Attempt: attempt,
		}
		done(fault)
		return validation, fault
	}

	done(nil)
	return validation, nil
}

func (o *RetryOrchestrator) audit(ctx context.Context, run *PipelineRun, query string, attempt int) {
	if o.auditor == nil {
		return
	}
	scope := audit.Scope{RunID: run.ID, TenantID: run.TenantID, WorkspaceID: run.WorkspaceID, Attempt: attempt}
	for _, kw := range sqlpkg.DestructiveKeywords(query) {
		o.auditor.LogForbiddenStatement(ctx, scope, audit.ForbiddenStatementDetails{Operation: kw, SQL: query})
	}
	for _, inj := range sqlpkg.CheckLiteralsForInjection(query) {
		o.auditor.LogInjectionFingerprint(ctx, scope, audit.InjectionDetails{
			Source:      inj.Source,
			Value:       inj.Value,
			Fingerprint: inj.Fingerprint,
		})
	}
}

func (o *RetryOrchestrator) execute(ctx context.Context, run *PipelineRun, query string, attempt int) (*models.ExecutionResult, *PipelineFault) {
	stepCtx, done := run.track(ctx, models.StepSQLExecution, attempt)

	result, err := o.executor.Execute(stepCtx, query)
	if err != nil {
		fault := newFault(FaultExecution, attempt, err)
		fault.Terminal = ctx.Err() != nil
		done(fault)
		return nil, fault
	}

	done(nil)
	return result, nil
}
