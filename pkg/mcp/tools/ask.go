package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-vkg/pkg/models"
	"github.com/ekaya-inc/ekaya-vkg/pkg/services"
)

// AskQuestionToolName is the MCP tool that runs one question through the pipeline.
const AskQuestionToolName = "ask_question"

// RegisterAskQuestionTool adds the ask_question tool to the MCP server.
// The tool returns the full query response as JSON. A response with error set
// is returned as a tool error so the client sees the failure envelope.
func RegisterAskQuestionTool(s *server.MCPServer, pipeline services.Pipeline, logger *zap.Logger) {
	logger = logger.Named("ask-question")

	tool := mcp.NewTool(
		AskQuestionToolName,
		mcp.WithDescription(
			"Answer a natural-language question over the federated databases of a workspace. "+
				"Returns the answer, the SQL that produced it, the entities it touched and a reasoning trace."),
		mcp.WithString("tenant_id",
			mcp.Required(),
			mcp.Description("Tenant that owns the workspace"),
		),
		mcp.WithString("workspace_id",
			mcp.Required(),
			mcp.Description("Workspace whose ontology and mappings are used"),
		),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question, in plain language"),
		),
		mcp.WithString("query_mode",
			mcp.Description("Label echoed in the response; defaults to the server's query mode"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		queryReq, errResult := parseAskArguments(req)
		if errResult != nil {
			return errResult, nil
		}

		resp := pipeline.Ask(ctx, queryReq)

		payload, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal query response: %w", err)
		}

		result := mcp.NewToolResultText(string(payload))
		if resp.Failed() {
			logger.Debug("Question failed",
				zap.String("tenant_id", queryReq.TenantID),
				zap.String("workspace_id", queryReq.WorkspaceID),
				zap.String("error_kind", resp.ErrorKind))
			result.IsError = true
		}
		return result, nil
	})
}

func parseAskArguments(req mcp.CallToolRequest) (*models.QueryRequest, *mcp.CallToolResult) {
	var out models.QueryRequest
	for _, field := range []struct {
		name string
		dst  *string
	}{
		{"tenant_id", &out.TenantID},
		{"workspace_id", &out.WorkspaceID},
		{"question", &out.Question},
	} {
		v, err := req.RequireString(field.name)
		if err != nil {
			return nil, NewErrorResult("invalid_parameters", err.Error())
		}
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, NewErrorResult("invalid_parameters", fmt.Sprintf("%s must not be empty", field.name))
		}
		*field.dst = v
	}

	if args, ok := req.Params.Arguments.(map[string]any); ok {
		if mode, ok := args["query_mode"].(string); ok {
			out.QueryMode = strings.TrimSpace(mode)
		}
	}
	return &out, nil
}
