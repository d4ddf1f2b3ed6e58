package services

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-vkg/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-vkg/pkg/llm"
	"github.com/ekaya-inc/ekaya-vkg/pkg/logging"
	"github.com/ekaya-inc/ekaya-vkg/pkg/models"
	"github.com/ekaya-inc/ekaya-vkg/pkg/prompts"
	sqlpkg "github.com/ekaya-inc/ekaya-vkg/pkg/sql"
)

// rawFallbackReasoning is the plan reasoning reported when the oracle returned
// SQL without a structured plan.
const rawFallbackReasoning = "plan unavailable: the response was not structured JSON"

// GenerationResult is the outcome of one generation call: either a ParsedPlanSQL
// or a RawFallback.
type GenerationResult interface {
	// Statement returns the generated SQL, possibly empty.
	Statement() string
	// QueryPlan returns the generator's plan, or a placeholder for raw output.
	QueryPlan() *models.QueryPlan
	// Response returns the oracle's raw completion.
	Response() string
	isGenerationResult()
}

// ParsedPlanSQL is a response that parsed as {"plan": ..., "sql": ...}.
type ParsedPlanSQL struct {
	Plan models.QueryPlan
	SQL  string
	Raw  string
}

func (r *ParsedPlanSQL) Statement() string            { return r.SQL }
func (r *ParsedPlanSQL) QueryPlan() *models.QueryPlan { return &r.Plan }
func (r *ParsedPlanSQL) Response() string             { return r.Raw }
func (*ParsedPlanSQL) isGenerationResult()            {}

// RawFallback is a response that did not parse as JSON; the whole completion,
// minus code fences, is taken as SQL.
type RawFallback struct {
	SQL string
	Raw string
}

func (r *RawFallback) Statement() string { return r.SQL }
func (r *RawFallback) QueryPlan() *models.QueryPlan {
	return &models.QueryPlan{Entities: []string{}, Reasoning: rawFallbackReasoning}
}
func (r *RawFallback) Response() string { return r.Raw }
func (*RawFallback) isGenerationResult() {}

// GenerationRequest is the input for one generation attempt.
type GenerationRequest struct {
	Question string
	Schema   *models.OntologySchema
	Mappings *models.MappingTable
	// History holds assistant/user correction turns from earlier attempts.
	History []llm.Message
}

// SQLGenerator asks the oracle for a plan and one SQL statement.
type SQLGenerator interface {
	// Generate returns an error only when the oracle call itself fails.
	Generate(ctx context.Context, req *GenerationRequest) (GenerationResult, error)
}

type sqlGenerator struct {
	client      llm.Client
	temperature float64
	rowLimit    int
	logger      *zap.Logger
}

// NewSQLGenerator creates a SQLGenerator. Generated SQL is capped at rowLimit rows.
func NewSQLGenerator(client llm.Client, temperature float64, rowLimit int, logger *zap.Logger) SQLGenerator {
	return &sqlGenerator{
		client:      client,
		temperature: temperature,
		rowLimit:    rowLimit,
		logger:      logger.Named("sql-generator"),
	}
}

var _ SQLGenerator = (*sqlGenerator)(nil)

func (g *sqlGenerator) Generate(ctx context.Context, req *GenerationRequest) (GenerationResult, error) {
	messages := make([]llm.Message, 0, 2+len(req.History))
	messages = append(messages,
		llm.SystemMessage(prompts.SQLGenerationSystemPrompt),
		llm.UserMessage(prompts.BuildSQLGenerationPrompt(req.Question, req.Schema, req.Mappings)),
	)
	messages = append(messages, req.History...)

	response, err := g.client.Complete(ctx, messages, llm.CompletionOptions{Temperature: g.temperature})
	if err != nil {
		return nil, err
	}

	result := parseGenerationResponse(response)
	if stmt := result.Statement(); stmt != "" {
		limited := sqlpkg.EnsureLimit(stmt, g.rowLimit)
		switch r := result.(type) {
		case *ParsedPlanSQL:
			r.SQL = limited
		case *RawFallback:
			r.SQL = limited
			g.logger.Debug("Oracle returned unstructured SQL; using raw fallback",
				zap.String("sql", logging.SanitizeSQL(limited)))
		}
	}
	return result, nil
}

// generateResponse is the JSON shape requested from the oracle. Plan fields are
// decoded leniently; oracles often return "single_hop": "true" or a bare string
// for entities.
type generateResponse struct {
	Plan *struct {
		Entities    json.RawMessage `json:"entities"`
		SingleHop   json.RawMessage `json:"single_hop"`
		Aggregation json.RawMessage `json:"aggregation"`
		Reasoning   json.RawMessage `json:"reasoning"`
	} `json:"plan"`
	SQL json.RawMessage `json:"sql"`
}

// parseGenerationResponse makes a single JSON parse attempt and falls back to
// treating the whole response as SQL only when the response is not JSON. A JSON
// reply with an empty "sql" keeps its plan and yields an empty statement.
func parseGenerationResponse(response string) GenerationResult {
	parsed, err := llm.ParseJSONResponse[generateResponse](response)
	if err != nil {
		return &RawFallback{SQL: llm.StripCodeFences(response), Raw: response}
	}

	plan := models.QueryPlan{Entities: []string{}}
	if p := parsed.Plan; p != nil {
		plan = models.QueryPlan{
			Entities:    jsonutil.FlexibleStringList(p.Entities),
			SingleHop:   jsonutil.FlexibleBoolValue(p.SingleHop),
			Aggregation: strings.TrimSpace(jsonutil.FlexibleStringValue(p.Aggregation)),
			Reasoning:   jsonutil.FlexibleStringValue(p.Reasoning),
		}
		if strings.EqualFold(plan.Aggregation, "none") {
			plan.Aggregation = ""
		}
	}
	return &ParsedPlanSQL{
		Plan: plan,
		SQL:  strings.TrimSpace(jsonutil.FlexibleStringValue(parsed.SQL)),
		Raw:  response,
	}
}
