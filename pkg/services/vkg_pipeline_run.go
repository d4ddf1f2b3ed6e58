package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ekaya-inc/ekaya-vkg/pkg/llm"
	"github.com/ekaya-inc/ekaya-vkg/pkg/metrics"
	"github.com/ekaya-inc/ekaya-vkg/pkg/models"
	"github.com/ekaya-inc/ekaya-vkg/pkg/prompts"
)

var tracer = otel.Tracer("github.com/ekaya-inc/ekaya-vkg/pkg/services")

// PipelineRun is the transient state of one question. It is owned by a single
// Ask call and discarded when the response is returned.
type PipelineRun struct {
	ID          string
	TenantID    string
	WorkspaceID string
	Question    string
	Steps       []models.PipelineStep
	// History is the correction conversation for the current retry loop.
	History  []llm.Message
	Warnings []string
	started  time.Time
}

func newPipelineRun(req *models.QueryRequest) *PipelineRun {
	return &PipelineRun{
		ID:          uuid.NewString(),
		TenantID:    req.TenantID,
		WorkspaceID: req.WorkspaceID,
		Question:    req.Question,
		Steps:       make([]models.PipelineStep, 0, 8),
		Warnings:    make([]string, 0),
		started:     time.Now(),
	}
}

// track starts timing a step. The returned function records the step with
// status success when err is nil and failed otherwise.
func (r *PipelineRun) track(ctx context.Context, name string, attempt int) (context.Context, func(err error)) {
	ctx, span := tracer.Start(ctx, "vkg."+name)
	span.SetAttributes(
		attribute.String("vkg.run_id", r.ID),
		attribute.Int("vkg.attempt", attempt),
	)
	start := time.Now()

	return ctx, func(err error) {
		elapsed := time.Since(start)
		step := models.PipelineStep{
			Name:       name,
			Attempt:    attempt,
			DurationMs: elapsed.Milliseconds(),
			Status:     models.StepStatusSuccess,
		}
		if err != nil {
			step.Status = models.StepStatusFailed
			step.Error = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		metrics.ObserveStep(name, string(step.Status), elapsed)
		r.Steps = append(r.Steps, step)
	}
}

// skip records a step that never ran.
func (r *PipelineRun) skip(name string) {
	r.Steps = append(r.Steps, models.PipelineStep{Name: name, Status: models.StepStatusSkipped})
}

// appendCorrection seeds the next attempt with the failed candidate as an
// assistant turn followed by a correction request naming the failure.
func (r *PipelineRun) appendCorrection(candidate GenerationResult, fault *PipelineFault) {
	if candidate == nil {
		// The oracle produced nothing to correct.
		return
	}

	prior := candidate.Response()
	if stmt := candidate.Statement(); stmt != "" {
		prior = prompts.BuildPriorAttemptTurn(candidate.QueryPlan(), stmt)
	}
	if prior == "" {
		return
	}

	r.History = append(r.History,
		llm.AssistantMessage(prior),
		llm.UserMessage(prompts.BuildCorrectionMessage(fault.Message)),
	)
}

func (r *PipelineRun) elapsed() time.Duration {
	return time.Since(r.started)
}

func (r *PipelineRun) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
