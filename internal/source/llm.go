package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultLLMURL is the OpenRouter chat completions endpoint.
const DefaultLLMURL = "https://openrouter.ai/api/v1/chat/completions"

// maxPromptText bounds the page text embedded in a prompt.
const maxPromptText = 50000

// LLMConfig configures the chat completions client.
type LLMConfig struct {
	URL         string // full chat completions URL
	APIKey      string
	Model       string
	Temperature float64       // Default: 0.1
	MaxTokens   int           // Default: 2048
	Timeout     time.Duration // Default: 120s
	Referer     string
	Title       string
}

// LLMClient talks to an OpenAI-compatible chat completions API. It implements Extractor.
type LLMClient struct {
	cfg        LLMConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewLLMClient creates a client, applying defaults for zero values.
func NewLLMClient(cfg LLMConfig, httpClient *http.Client, logger *slog.Logger) *LLMClient {
	if cfg.URL == "" {
		cfg.URL = DefaultLLMURL
	}
	if cfg.Model == "" {
		cfg.Model = "google/gemini-2.5-flash"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.1
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMClient{cfg: cfg, httpClient: httpClient, logger: logger.With("component", "llm")}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a single user prompt and returns the assistant's text.
func (c *LLMClient) Complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	if c.cfg.APIKey == "" {
		return "", &Error{Kind: ErrUnauthorized, Capability: "extract", Err: fmt.Errorf("no LLM API key configured")}
	}

	reqBody := map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": c.cfg.Temperature,
		"max_tokens":  c.cfg.MaxTokens,
	}
	if jsonMode {
		reqBody["response_format"] = map[string]string{"type": "json_object"}
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	c.logger.Debug("making LLM API request",
		"model", c.cfg.Model,
		"prompt_length", len(prompt),
		"json_mode", jsonMode,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("LLM API request failed", "model", c.cfg.Model, "error", err)
		return "", Classify("extract", err, 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Classify("extract", err, 0)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("LLM API error",
			"model", c.cfg.Model,
			"status_code", resp.StatusCode,
			"response", string(body),
		)
		return "", Classify("extract", fmt.Errorf("API error: %s", strings.TrimSpace(string(body))), resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &Error{Kind: ErrParse, Capability: "extract", Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if parsed.Error != nil {
		return "", &Error{Kind: ErrUpstreamServer, Capability: "extract", Err: fmt.Errorf("%s", parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return "", &Error{Kind: ErrNoData, Capability: "extract", Err: fmt.Errorf("no choices in response")}
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// Extract asks the model for a JSON object described by hint and isolates it from the answer.
func (c *LLMClient) Extract(ctx context.Context, text string, hint SchemaHint) (map[string]any, error) {
	answer, err := c.Complete(ctx, buildExtractionPrompt(text, hint), true)
	if err != nil {
		return nil, err
	}
	return ExtractJSON(answer)
}

func buildExtractionPrompt(text string, hint SchemaHint) string {
	if len(text) > maxPromptText {
		text = text[:maxPromptText]
	}
	var b strings.Builder
	b.WriteString(hint.Instructions)
	b.WriteString("\n\nReturn ONLY a JSON object")
	if len(hint.Fields) > 0 {
		b.WriteString(" with these keys: ")
		b.WriteString(strings.Join(hint.Fields, ", "))
	}
	b.WriteString(". Use null for values that are not present. No explanations.\n\nTEXT:\n")
	b.WriteString(text)
	return b.String()
}

// ========================================
// Schema hints
// ========================================

// ContactSchema asks for every email address and phone number in a site's text.
var ContactSchema = SchemaHint{
	Name: "contacts",
	Instructions: "Find ALL email addresses and phone numbers in the following website text. " +
		"Normalize phone numbers (remove extra spaces and dashes), remove duplicates, " +
		"and include generic addresses such as info@ or contact@.",
	Fields: []string{`"emails" (array of strings)`, `"phones" (array of strings)`},
}

// ComplianceSchema asks for the legal details on a marketplace seller profile page.
var ComplianceSchema = SchemaHint{
	Name: "seller_compliance",
	Instructions: "You are extracting seller compliance details from a marketplace seller page. " +
		"The page may be in Italian, French, German, Spanish or English. " +
		"Report the phone number exactly as written, including any country prefix.",
	Fields: []string{
		`"Seller Type"`, `"VAT Number"`, `"Phone Number"`, `"Email Address"`,
		`"Address"`, `"Compliance Statement"`, `"marketplace"`, `"language_detected"`,
	},
}
