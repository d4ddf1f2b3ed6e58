package services

import (
	"fmt"
)

// FaultKind classifies a pipeline fault.
type FaultKind string

const (
	FaultSchemaContext FaultKind = "schema_context"
	FaultGeneration    FaultKind = "generation"
	FaultValidation    FaultKind = "validation"
	FaultExecution     FaultKind = "execution"
	FaultGraphBuild    FaultKind = "graph_build"
	FaultAnswer        FaultKind = "answer"
	FaultInvalidInput  FaultKind = "invalid_request"

	// FaultPipelineFailure is reported once generation, validation or execution
	// faults exhaust the attempt bound.
	FaultPipelineFailure FaultKind = "pipeline_failure"
)

// PipelineFault is one failure inside the query pipeline. Message is the
// underlying reason, verbatim, so it can be fed back to the generator.
type PipelineFault struct {
	Kind    FaultKind
	Message string
	Attempt int
	// Terminal faults end the retry loop even when attempts remain.
	Terminal bool
	Cause    error
}

func (f *PipelineFault) Error() string {
	return fmt.Sprintf("%s fault: %s", f.Kind, f.Message)
}

func (f *PipelineFault) Unwrap() error {
	return f.Cause
}

func newFault(kind FaultKind, attempt int, cause error) *PipelineFault {
	return &PipelineFault{Kind: kind, Message: cause.Error(), Attempt: attempt, Cause: cause}
}

// PipelineFailure is the terminal outcome of the retry loop. It wraps the last fault.
type PipelineFailure struct {
	Attempts int
	Last     *PipelineFault
}

func (f *PipelineFailure) Error() string {
	if f.Last == nil {
		return fmt.Sprintf("query failed after %d attempts", f.Attempts)
	}
	return fmt.Sprintf("query failed after %d attempts: %s", f.Attempts, f.Last.Message)
}

func (f *PipelineFailure) Unwrap() error {
	if f.Last == nil {
		return nil
	}
	return f.Last
}
