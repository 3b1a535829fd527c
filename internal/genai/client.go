package genai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-1.5-flash"

// geminiClient implements the LLMClient interface using the Google Gemini API.
type geminiClient struct {
	client *genai.Client
	cfg    Config
	logger *zap.Logger
}

// LLMClient defines the interface for interacting with a generative AI model.
type LLMClient interface {
	// ReviewFinding returns a short advisory note for a finding that needs a
	// human decision, or "" when the model has nothing useful to add.
	ReviewFinding(ctx context.Context, f Finding, knowledgeContext string) (string, error)

	// IsAPIKeyValid checks if the configured API key is functional.
	IsAPIKeyValid(ctx context.Context) error

	// Close cleans up any resources used by the client.
	Close() error
}

// Config holds configuration for the GenAI client.
type Config struct {
	APIKey string
	Model  string
}

// NewClient creates a new Gemini client.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (LLMClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("cannot create Gemini client: API key is missing")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("gemini")

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
		logger.Info("Gemini model not specified, using default", zap.String("model", cfg.Model))
	}

	return &geminiClient{
		client: client,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Close cleans up the underlying Gemini client.
func (c *geminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAPIKeyValid checks if the Gemini API key is valid by listing models.
func (c *geminiClient) IsAPIKeyValid(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("gemini client not initialized (likely missing API key)")
	}

	modelIterator := c.client.ListModels(ctx)
	if _, err := modelIterator.Next(); err != nil {
		return classifyKeyError(err)
	}
	return nil
}

func classifyKeyError(err error) error {
	if st, ok := status.FromError(err); ok {
		if st.Code() == codes.Unauthenticated || st.Code() == codes.PermissionDenied {
			return fmt.Errorf("invalid Gemini API key or insufficient permissions: %w", err)
		}
	}
	return fmt.Errorf("failed to verify Gemini API key by listing models: %w", err)
}

// ReviewFinding asks Gemini for an advisory note on one finding.
func (c *geminiClient) ReviewFinding(ctx context.Context, f Finding, knowledgeContext string) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("gemini client not initialized")
	}

	model := c.client.GenerativeModel(c.cfg.Model)
	model.SetTemperature(0.2)
	model.SetMaxOutputTokens(200)
	model.SetTopP(0.9)
	model.SetTopK(40)

	resp, err := model.GenerateContent(ctx, genai.Text(buildPrompt(f, knowledgeContext)))
	if err != nil {
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}

	note, err := extractTextBetweenTags(resp, "<note>", "</note>")
	if err != nil {
		c.logger.Warn("Could not extract note from Gemini response",
			zap.String("target", f.Target()), zap.Error(err))
		return "", nil
	}
	c.logger.Debug("Generated review note", zap.String("target", f.Target()), zap.String("model", c.cfg.Model))
	return note, nil
}

func buildPrompt(f Finding, knowledgeContext string) string {
	var b strings.Builder
	b.WriteString(`
	You are reviewing a schema recommendation for an analytical (columnar OLAP) table.
	An automated advisor could not settle one decision and left it for a human.
	Do not make the decision. Write a short note (max 60 words) telling the reviewer
	what to check in their data or workload to settle it.
`)
	if knowledgeContext != "" {
		fmt.Fprintf(&b, `
	********** Knowledge Context **********
	%s
	********** End Knowledge Context **********
`, knowledgeContext)
	}
	fmt.Fprintf(&b, `
	**Finding:**
	- Target: %s
	- Value kind: %s
	- Proposed storage type: %s
	- Open question: %s
	- Advisor rationale: %s

	Output ONLY the note text within <note></note> tags. If you have nothing specific
	to add, output empty <note></note> tags.
`, f.Target(), f.ValueKind, f.StorageType, f.Question(), f.Rationale)
	return b.String()
}

// getFirstTextPart extracts the first text part from a Gemini response.
func getFirstTextPart(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		safetyRatings := "none"
		if resp != nil && len(resp.Candidates) > 0 {
			finishReason = resp.Candidates[0].FinishReason.String()
			if resp.Candidates[0].SafetyRatings != nil {
				safetyRatings = fmt.Sprintf("%v", resp.Candidates[0].SafetyRatings)
			}
		}
		return "", fmt.Errorf("empty or incomplete response from Gemini API. FinishReason: %s, SafetyRatings: %s", finishReason, safetyRatings)
	}
	part := resp.Candidates[0].Content.Parts[0]
	text, ok := part.(genai.Text)
	if !ok {
		return "", fmt.Errorf("unexpected response part type: %T", part)
	}
	return string(text), nil
}

// extractTextBetweenTags extracts text between the first occurrence of startTag and endTag.
func extractTextBetweenTags(resp *genai.GenerateContentResponse, startTag, endTag string) (string, error) {
	fullText, err := getFirstTextPart(resp)
	if err != nil {
		return "", fmt.Errorf("failed to get text part: %w", err)
	}

	content, found := extractContentBetween(fullText, startTag, endTag)
	if !found {
		return "", fmt.Errorf("tags '%s' and '%s' not found in response", startTag, endTag)
	}
	return content, nil
}

func extractContentBetween(text, startTag, endTag string) (string, bool) {
	startIndex := strings.Index(text, startTag)
	if startIndex == -1 {
		return "", false
	}
	startIndex += len(startTag)
	endIndex := strings.Index(text[startIndex:], endTag)
	if endIndex == -1 {
		return "", false
	}
	return strings.TrimSpace(text[startIndex : startIndex+endIndex]), true
}
