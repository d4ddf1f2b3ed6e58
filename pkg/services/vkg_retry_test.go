package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-vkg/pkg/audit"
	"github.com/ekaya-inc/ekaya-vkg/pkg/engine"
	"github.com/ekaya-inc/ekaya-vkg/pkg/llm"
	"github.com/ekaya-inc/ekaya-vkg/pkg/models"
)

const customersSQL = "SELECT id, name FROM mysql.sales.customers"

func newTestRetry(client llm.Client, executor engine.Executor) *RetryOrchestrator {
	return NewRetryOrchestrator(newTestGenerator(client), NewSQLValidator(), executor, 3, zap.NewNop())
}

func newTestRun(question string) *PipelineRun {
	return newPipelineRun(&models.QueryRequest{TenantID: "t1", WorkspaceID: "w1", Question: question})
}

func TestTransition(t *testing.T) {
	fault := &PipelineFault{Kind: FaultExecution, Message: "boom"}
	terminal := &PipelineFault{Kind: FaultGeneration, Message: "breaker open", Terminal: true}

	tests := []struct {
		name    string
		state   RetryState
		fault   *PipelineFault
		attempt int
		want    RetryState
	}{
		{"generated", StateGenerating, nil, 1, StateValidating},
		{"valid", StateValidating, nil, 1, StateExecuting},
		{"executed", StateExecuting, nil, 1, StateSucceeded},
		{"generation failed, attempts left", StateGenerating, fault, 1, StateGenerating},
		{"invalid, attempts left", StateValidating, fault, 2, StateGenerating},
		{"execution failed, attempts left", StateExecuting, fault, 2, StateGenerating},
		{"execution failed on last attempt", StateExecuting, fault, 3, StateFailed},
		{"terminal fault", StateGenerating, terminal, 1, StateFailed},
		{"succeeded is absorbing", StateSucceeded, nil, 1, StateSucceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, transition(tt.state, tt.fault, tt.attempt, 3))
		})
	}
}

func TestRetryOrchestrator_FirstAttemptSucceeds(t *testing.T) {
	client := llm.NewMockClient(planSQLResponse(customersSQL))
	executor := &fakeExecutor{results: []*models.ExecutionResult{customersResult()}}
	run := newTestRun("List customers")

	outcome, err := newTestRetry(client, executor).Run(context.Background(), run, salesSchemaContext())
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, customersSQL+"\nLIMIT 1000", outcome.SQL)
	assert.Equal(t, 2, outcome.Result.RowCount)
	assert.False(t, outcome.RawFallback)
	assert.Empty(t, run.History)
	assert.Len(t, run.Steps, 3)
}

func TestRetryOrchestrator_ExecutionErrorIsFedBack(t *testing.T) {
	client := llm.NewMockClient(
		planSQLResponse("SELECT id FROM mysql.sales.x"),
		planSQLResponse(customersSQL),
	)
	// The first candidate passes validation only if x is mapped.
	sc := salesSchemaContext()
	sc.Mappings.Classes["X"] = models.ClassMapping{SourceTable: "mysql.sales.x", SourceIDColumn: "id"}

	executor := &fakeExecutor{
		errs:    []error{engine.NewExecutionError(errors.New("Table 'x' not found")), nil},
		results: []*models.ExecutionResult{nil, customersResult()},
	}
	run := newTestRun("List customers")

	outcome, err := newTestRetry(client, executor).Run(context.Background(), run, sc)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Attempts)

	requests := client.Requests()
	require.Len(t, requests, 2)
	second := requests[1].Messages
	last := second[len(second)-1]
	assert.Equal(t, llm.RoleUser, last.Role)
	assert.Contains(t, last.Content, "Table 'x' not found")
	assert.Contains(t, last.Content, "three-part")
	assert.Equal(t, llm.RoleAssistant, second[len(second)-2].Role)
	assert.Contains(t, second[len(second)-2].Content, "mysql.sales.x")

	trail := models.ExecutionPipeline{Steps: run.Steps}
	assert.Equal(t, 2, trail.StepCount(models.StepSQLGeneration, ""))
	assert.Equal(t, 1, trail.StepCount(models.StepSQLExecution, models.StepStatusSuccess))
	assert.Equal(t, 1, trail.StepCount(models.StepSQLExecution, models.StepStatusFailed))
}

func TestRetryOrchestrator_InvalidSQLIsNeverExecuted(t *testing.T) {
	client := llm.NewMockClient(
		planSQLResponse("SELECT id FROM sales.customers"),
		planSQLResponse("DELETE FROM mysql.sales.customers"),
		planSQLResponse("SELECT id FROM mysql.hr.salaries"),
	)
	executor := &fakeExecutor{}
	run := newTestRun("List customers")

	_, err := newTestRetry(client, executor).Run(context.Background(), run, salesSchemaContext())
	require.Error(t, err)

	var failure *PipelineFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 3, failure.Attempts)
	assert.Equal(t, FaultValidation, failure.Last.Kind)
	assert.Contains(t, failure.Last.Message, "mysql.hr.salaries")

	assert.Equal(t, 0, executor.calls())
	assert.Equal(t, 3, client.Calls())

	// Validation errors of attempt 1 reach attempt 2.
	second := client.Requests()[1].Messages
	assert.Contains(t, second[len(second)-1].Content, "use mysql.sales.customers")
}

func TestRetryOrchestrator_AllExecutionsFail(t *testing.T) {
	client := llm.NewMockClient(
		planSQLResponse(customersSQL),
		planSQLResponse(customersSQL),
		planSQLResponse(customersSQL),
	)
	execErr := engine.NewExecutionError(errors.New("Query exceeded maximum time limit"))
	executor := &fakeExecutor{errs: []error{execErr, execErr, execErr}}
	run := newTestRun("List customers")

	_, err := newTestRetry(client, executor).Run(context.Background(), run, salesSchemaContext())

	var failure *PipelineFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, FaultExecution, failure.Last.Kind)
	assert.Contains(t, failure.Error(), "Query exceeded maximum time limit")
	assert.ErrorIs(t, err, execErr)

	trail := models.ExecutionPipeline{Steps: run.Steps}
	assert.Equal(t, 3, trail.StepCount(models.StepSQLGeneration, models.StepStatusSuccess))
	assert.Equal(t, 3, trail.StepCount(models.StepSQLValidation, models.StepStatusSuccess))
	assert.Equal(t, 3, trail.StepCount(models.StepSQLExecution, models.StepStatusFailed))
	assert.Equal(t, 3, executor.calls())
}

func TestRetryOrchestrator_GenerationFailuresCountAsAttempts(t *testing.T) {
	client := llm.NewMockClient(
		"I cannot answer that.",
		"",
		planSQLResponse(customersSQL),
	)
	executor := &fakeExecutor{results: []*models.ExecutionResult{customersResult()}}
	run := newTestRun("List customers")

	outcome, err := newTestRetry(client, executor).Run(context.Background(), run, salesSchemaContext())
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Attempts)

	trail := models.ExecutionPipeline{Steps: run.Steps}
	// "I cannot answer that." is taken as SQL and rejected by validation.
	assert.Equal(t, 1, trail.StepCount(models.StepSQLValidation, models.StepStatusFailed))
	assert.Equal(t, 1, trail.StepCount(models.StepSQLGeneration, models.StepStatusFailed))
	assert.Equal(t, 1, executor.calls())
}

func TestRetryOrchestrator_OracleUnreachable(t *testing.T) {
	client := &llm.MockClient{CompleteFunc: func(ctx context.Context, _ []llm.Message, _ llm.CompletionOptions) (string, error) {
		return "", llm.NewError(llm.ErrorTypeEndpoint, "connection refused", true, nil)
	}}
	executor := &fakeExecutor{}
	run := newTestRun("List customers")

	_, err := newTestRetry(client, executor).Run(context.Background(), run, salesSchemaContext())

	var failure *PipelineFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, FaultGeneration, failure.Last.Kind)
	assert.Equal(t, 3, client.Calls())
	assert.Empty(t, run.History, "nothing to correct when the oracle returned nothing")
}

func TestRetryOrchestrator_OpenBreakerStopsImmediately(t *testing.T) {
	client := &llm.MockClient{CompleteFunc: func(ctx context.Context, _ []llm.Message, _ llm.CompletionOptions) (string, error) {
		return "", llm.NewError(llm.ErrorTypeCircuit, "circuit breaker open", false, nil)
	}}
	run := newTestRun("List customers")

	_, err := newTestRetry(client, &fakeExecutor{}).Run(context.Background(), run, salesSchemaContext())

	var failure *PipelineFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 1, failure.Attempts)
	assert.Equal(t, 1, client.Calls())
}

func TestRetryOrchestrator_AuditsForbiddenStatements(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	client := llm.NewMockClient(
		planSQLResponse("DELETE FROM mysql.sales.customers"),
		planSQLResponse(customersSQL),
	)
	executor := &fakeExecutor{results: []*models.ExecutionResult{customersResult()}}
	run := newTestRun("List customers")

	orchestrator := newTestRetry(client, executor).WithAuditor(audit.NewSecurityAuditor(zap.New(core)))
	outcome, err := orchestrator.Run(context.Background(), run, salesSchemaContext())
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Attempts)

	events := recorded.FilterMessage("Forbidden statement generated").All()
	require.Len(t, events, 1)
	assert.Equal(t, "DELETE", events[0].ContextMap()["operation"])
	assert.Equal(t, run.ID, events[0].ContextMap()["run_id"])
	assert.Equal(t, "t1", events[0].ContextMap()["tenant_id"])
}

func TestRetryOrchestrator_EmptySQLIsGenerationFault(t *testing.T) {
	client := llm.NewMockClient(
		`{"plan": {"entities": ["Customer"]}, "sql": ""}`,
		planSQLResponse(customersSQL),
	)
	executor := &fakeExecutor{results: []*models.ExecutionResult{customersResult()}}
	run := newTestRun("List customers")

	outcome, err := newTestRetry(client, executor).Run(context.Background(), run, salesSchemaContext())
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Attempts)

	require.NotEmpty(t, run.Steps)
	first := run.Steps[0]
	assert.Equal(t, models.StepSQLGeneration, first.Name)
	assert.Equal(t, models.StepStatusFailed, first.Status)
	assert.Equal(t, 1, first.Attempt)

	trail := models.ExecutionPipeline{Steps: run.Steps}
	assert.Equal(t, 0, trail.StepCount(models.StepSQLValidation, models.StepStatusFailed))
	assert.Equal(t, 1, trail.StepCount(models.StepSQLValidation, models.StepStatusSuccess))

	require.Len(t, run.History, 2)
	assert.Contains(t, run.History[1].Content, "did not contain a SQL statement")
}

func TestRetryOrchestrator_EmptySQLOnEveryAttempt(t *testing.T) {
	empty := `{"plan": {"entities": []}, "sql": ""}`
	client := llm.NewMockClient(empty, empty, empty)
	run := newTestRun("List customers")

	_, err := newTestRetry(client, &fakeExecutor{}).Run(context.Background(), run, salesSchemaContext())

	var failure *PipelineFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, FaultGeneration, failure.Last.Kind)
	trail := models.ExecutionPipeline{Steps: run.Steps}
	assert.Equal(t, 3, trail.StepCount(models.StepSQLGeneration, models.StepStatusFailed))
	assert.Equal(t, 0, trail.StepCount(models.StepSQLValidation, ""))
}
