package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"datapilot/internal/core"
)

// schemaErrorToken is the reserved escape the model uses to flag a question
// it cannot answer with the given schema.
const schemaErrorToken = "SCHEMA_ERROR:"

const systemPrompt = `You are a SQL expert assistant that converts natural language questions into SQL queries.

STRICT RULES:
1. ONLY generate valid read-only SELECT queries
2. NEVER generate INSERT, UPDATE, DELETE, DROP, TRUNCATE, or ALTER statements
3. ALWAYS use table and column names from the provided schema
4. Include appropriate WHERE clauses, JOINs, and aggregations as needed
5. Use LIMIT clauses to prevent returning too many rows (default LIMIT 100)
6. Handle NULL values appropriately
7. Return ONLY the SQL query without explanations or markdown formatting
8. If the question cannot be answered with the given schema, respond with: "SCHEMA_ERROR: [explanation]"

OUTPUT FORMAT:
Return ONLY the SQL query as plain text. No markdown, no code blocks, no explanations.`

// ModelInvoker is the minimal surface the generator needs from a generative
// model endpoint. Kept as an interface so the orchestrator can be exercised
// with a test double instead of a live Bedrock call.
type ModelInvoker interface {
	Invoke(ctx context.Context, modelID string, body []byte) ([]byte, error)
}

// BedrockInvoker calls AWS Bedrock's InvokeModel API.
type BedrockInvoker struct {
	client *bedrockruntime.Client
}

// NewBedrockInvoker builds an invoker from the ambient AWS credential chain.
func NewBedrockInvoker(ctx context.Context, region string) (*BedrockInvoker, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &BedrockInvoker{client: bedrockruntime.NewFromConfig(cfg)}, nil
}

func (b *BedrockInvoker) Invoke(ctx context.Context, modelID string, body []byte) ([]byte, error) {
	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

// DisabledInvoker stands in when no model endpoint is configured. Every call
// fails, which surfaces through the pipeline as a provider error.
type DisabledInvoker struct{}

func (DisabledInvoker) Invoke(ctx context.Context, modelID string, body []byte) ([]byte, error) {
	return nil, errors.New("SQL generation is not configured")
}

// Generator turns a natural-language question plus a schema snapshot into a
// candidate SQL statement. It performs no safety validation: its output is
// untrusted by design and must pass the validator before execution.
type Generator struct {
	invoker     ModelInvoker
	modelID     string
	maxTokens   int
	temperature float64
	log         *zap.SugaredLogger
}

func NewGenerator(invoker ModelInvoker, modelID string, maxTokens int, temperature float64, log *zap.SugaredLogger) *Generator {
	return &Generator{
		invoker:     invoker,
		modelID:     modelID,
		maxTokens:   maxTokens,
		temperature: temperature,
		log:         log,
	}
}

// Anthropic messages request/response shapes for Bedrock.
type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float64            `json:"temperature"`
	System           string             `json:"system"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate returns a candidate SQL statement. Failures map to the pipeline
// taxonomy: *core.ProviderError for unusable model calls, *core.SchemaError
// when the model signals the schema cannot answer the question.
func (g *Generator) Generate(ctx context.Context, question string, snapshot *core.SchemaSnapshot) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", &core.ProviderError{Detail: "natural language query is required"}
	}
	if snapshot.Empty() {
		return "", &core.ProviderError{Detail: "database schema information is required"}
	}

	body, err := json.Marshal(anthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        g.maxTokens,
		Temperature:      g.temperature,
		System:           systemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: buildUserPrompt(question, snapshot)},
		},
	})
	if err != nil {
		return "", &core.ProviderError{Detail: err.Error()}
	}

	start := time.Now()
	raw, err := g.invoker.Invoke(ctx, g.modelID, body)
	if err != nil {
		g.log.Errorw("model invocation failed", "model_id", g.modelID, "error", err)
		return "", &core.ProviderError{Detail: err.Error()}
	}

	var resp anthropicResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &core.ProviderError{Detail: "unparseable model response: " + err.Error()}
	}
	if len(resp.Content) == 0 || strings.TrimSpace(resp.Content[0].Text) == "" {
		return "", &core.ProviderError{Detail: "model returned an empty response"}
	}

	sqlQuery := cleanResponse(resp.Content[0].Text)

	if strings.HasPrefix(sqlQuery, schemaErrorToken) {
		detail := strings.TrimSpace(strings.TrimPrefix(sqlQuery, schemaErrorToken))
		return "", &core.SchemaError{Detail: detail}
	}

	g.log.Infow("SQL generated",
		"model_id", g.modelID,
		"duration_ms", time.Since(start).Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens)

	return sqlQuery, nil
}

// buildUserPrompt enumerates the schema then states the question.
func buildUserPrompt(question string, snapshot *core.SchemaSnapshot) string {
	var b strings.Builder
	b.WriteString("DATABASE SCHEMA:\n\n")
	for _, table := range snapshot.Tables {
		fmt.Fprintf(&b, "Table: %s\nColumns:\n", table.Name)
		for _, col := range table.Columns {
			fmt.Fprintf(&b, "  - %s (%s)\n", col.Name, col.Type)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, `USER QUESTION:
%s

Generate a SQL query to answer this question. Remember:
- Use ONLY tables and columns from the schema above
- Return ONLY the SQL query
- Add LIMIT clause to prevent large result sets
- Use proper SQL syntax
`, question)

	return b.String()
}

// cleanResponse strips markdown fences and surrounding whitespace.
func cleanResponse(text string) string {
	text = strings.ReplaceAll(text, "```sql", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}
