package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-vkg/pkg/llm"
	"github.com/ekaya-inc/ekaya-vkg/pkg/models"
	"github.com/ekaya-inc/ekaya-vkg/pkg/prompts"
)

// NoResultsAnswer is returned for empty results without consulting the oracle.
const NoResultsAnswer = "No results found for this query."

// DefaultSampleRows bounds the rows shown to the oracle when answering.
const DefaultSampleRows = 20

// AnswerSynthesizer turns query results into a natural-language answer.
type AnswerSynthesizer interface {
	Answer(ctx context.Context, question string, result *models.ExecutionResult, graph *models.ContextGraph) (string, error)
}

type answerSynthesizer struct {
	client      llm.Client
	temperature float64
	sampleRows  int
	logger      *zap.Logger
}

// NewAnswerSynthesizer creates an AnswerSynthesizer. sampleRows <= 0 uses DefaultSampleRows.
func NewAnswerSynthesizer(client llm.Client, temperature float64, sampleRows int, logger *zap.Logger) AnswerSynthesizer {
	if sampleRows <= 0 {
		sampleRows = DefaultSampleRows
	}
	return &answerSynthesizer{
		client:      client,
		temperature: temperature,
		sampleRows:  sampleRows,
		logger:      logger.Named("answer"),
	}
}

var _ AnswerSynthesizer = (*answerSynthesizer)(nil)

func (s *answerSynthesizer) Answer(ctx context.Context, question string, result *models.ExecutionResult, graph *models.ContextGraph) (string, error) {
	if result == nil || result.RowCount == 0 {
		return NoResultsAnswer, nil
	}

	var stats models.GraphStatistics
	if graph != nil {
		stats = graph.Statistics
	}

	messages := []llm.Message{
		llm.SystemMessage(prompts.AnswerSystemPrompt),
		llm.UserMessage(prompts.BuildAnswerPrompt(question, result, stats, s.sampleRows)),
	}
	answer, err := s.client.Complete(ctx, messages, llm.CompletionOptions{Temperature: s.temperature})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(llm.StripThinking(answer)), nil
}
