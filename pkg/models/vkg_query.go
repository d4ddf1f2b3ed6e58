package models

import (
	"time"
)

// DefaultQueryMode is echoed in every response produced by the VKG pipeline.
const DefaultQueryMode = "vkg"

// QueryPlan is the generator's advisory description of its intent.
// It is never executed; it is surfaced for logging and display only.
type QueryPlan struct {
	Entities    []string `json:"entities"`
	SingleHop   bool     `json:"single_hop"`
	Aggregation string   `json:"aggregation,omitempty"` // empty means none
	Reasoning   string   `json:"reasoning"`
}

// ValidationResult is the verdict for one SQL candidate.
// Valid=false always aborts execution of that candidate.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// ResultColumn describes one column returned by the federated engine.
type ResultColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ExecutionResult is an immutable snapshot of one successful engine run.
type ExecutionResult struct {
	Columns    []ResultColumn `json:"columns"`
	Rows       [][]any        `json:"rows"`
	RowCount   int            `json:"row_count"`
	DurationMs int64          `json:"duration_ms"`
}

// ColumnNames returns the result column names in order.
func (r *ExecutionResult) ColumnNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// ============================================================================
// Context Graph
// ============================================================================

// GraphNode is an entity instance derived from a result row.
type GraphNode struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Class      string         `json:"class"`
	Properties map[string]any `json:"properties,omitempty"`
}

// GraphEdge is a known relationship observed between two nodes.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// GraphStatistics summarises a ContextGraph.
type GraphStatistics struct {
	NodeCount int `json:"node_count"`
	EdgeCount int `json:"edge_count"`
}

// ContextGraph is a per-request evidence graph. It is never persisted.
type ContextGraph struct {
	Nodes      []GraphNode     `json:"nodes"`
	Edges      []GraphEdge     `json:"edges"`
	Statistics GraphStatistics `json:"statistics"`
}

// EmptyContextGraph returns the default graph used when nothing could be derived.
func EmptyContextGraph() *ContextGraph {
	return &ContextGraph{
		Nodes: []GraphNode{},
		Edges: []GraphEdge{},
	}
}

// ReasoningStep is one human-readable justification accompanying the graph.
type ReasoningStep struct {
	Step     string   `json:"step"`
	Evidence string   `json:"evidence"`
	Sources  []string `json:"sources"`
}

// ============================================================================
// Pipeline Audit Trail
// ============================================================================

// StepStatus is the outcome of one pipeline step.
type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
	StepStatusSkipped StepStatus = "skipped"
)

// Pipeline step names.
const (
	StepSchemaContext   = "schema_context"
	StepSQLGeneration   = "sql_generation"
	StepSQLValidation   = "sql_validation"
	StepSQLExecution    = "sql_execution"
	StepContextGraph    = "context_graph"
	StepAnswerSynthesis = "answer_synthesis"
)

// PipelineStep is one entry in a run's audit trail.
type PipelineStep struct {
	Name       string     `json:"name"`
	Attempt    int        `json:"attempt,omitempty"`
	DurationMs int64      `json:"duration_ms"`
	Status     StepStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
}

// ============================================================================
// Request / Response
// ============================================================================

// QueryRequest asks one natural-language question of a tenant workspace.
type QueryRequest struct {
	TenantID    string `json:"tenant_id"`
	WorkspaceID string `json:"workspace_id"`
	Question    string `json:"question"`
	QueryMode   string `json:"query_mode,omitempty"`
}

// Citations lists the evidence the answer is grounded on.
type Citations struct {
	SQL       string   `json:"sql"`
	Databases []string `json:"databases"`
}

// ExecutionStats summarises the winning execution.
type ExecutionStats struct {
	RowCount        int   `json:"row_count"`
	ColumnCount     int   `json:"column_count"`
	EngineMs        int64 `json:"engine_ms"`
	Attempts        int   `json:"attempts"`
	TotalDurationMs int64 `json:"total_duration_ms"`
}

// ExecutionPipeline is the audit trail returned to the caller.
type ExecutionPipeline struct {
	RunID           string         `json:"run_id"`
	Steps           []PipelineStep `json:"steps"`
	TotalDurationMs int64          `json:"total_duration_ms"`
}

// QueryResponse is the unified response of the VKG pipeline. Error is non-empty
// only on total failure.
type QueryResponse struct {
	Answer            string            `json:"answer"`
	Question          string            `json:"question"`
	QueryMode         string            `json:"query_mode"`
	ContextGraph      *ContextGraph     `json:"context_graph"`
	ReasoningTrace    []ReasoningStep   `json:"reasoning_trace"`
	Citations         Citations         `json:"citations"`
	ExecutionStats    ExecutionStats    `json:"execution_stats"`
	ExecutionPipeline ExecutionPipeline `json:"execution_pipeline"`
	Plan              *QueryPlan        `json:"plan,omitempty"`
	Warnings          []string          `json:"warnings"`
	Results           *ExecutionResult  `json:"results,omitempty"`
	Error             string            `json:"error,omitempty"`
	ErrorKind         string            `json:"error_kind,omitempty"`
	CompletedAt       time.Time         `json:"completed_at"`
}

// Failed returns true if the response carries a terminal error.
func (r *QueryResponse) Failed() bool {
	return r.Error != ""
}

// StepCount returns how many steps with the given name and status were recorded.
// An empty status matches any status.
func (p *ExecutionPipeline) StepCount(name string, status StepStatus) int {
	n := 0
	for _, s := range p.Steps {
		if s.Name == name && (status == "" || s.Status == status) {
			n++
		}
	}
	return n
}
