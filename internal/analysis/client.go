// Package analysis implements core.Analyzer against a messages-style language
// model HTTP API.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/thermoextract/internal/core"
	"github.com/JonMunkholm/thermoextract/internal/logging"
)

const (
	serviceName = "analysis"

	DefaultModel      = "claude-sonnet-4-5-20250929"
	DefaultAPIVersion = "2023-06-01"
	DefaultMaxTokens  = 8000

	analyzeMaxTokens = 4000
	temperature      = 0.1

	// maxErrorBody bounds how much of a failed response is kept in the error.
	maxErrorBody = 2048
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	APIVersion string
	MaxTokens  int
	Timeout    time.Duration // per HTTP request; zero leaves it to the caller's context
}

// Client calls the analysis service.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	apiVersion string
	maxTokens  int
	http       *http.Client
}

// New returns a client for cfg, filling unset fields with defaults.
func New(cfg Config) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		apiVersion: cfg.APIVersion,
		maxTokens:  cfg.MaxTokens,
		http:       &http.Client{Timeout: cfg.Timeout},
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.apiVersion == "" {
		c.apiVersion = DefaultAPIVersion
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}
	return c
}

// messageRequest is the JSON body sent to /v1/messages.
type messageRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messageResponse is the subset of the reply the client reads.
type messageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Analyze asks the service for paper metadata and the table and figure
// inventory. The reply is decoded leniently.
func (c *Client) Analyze(ctx context.Context, req core.AnalysisRequest) (*core.AnalysisResult, error) {
	text, err := c.send(ctx, "analyze", analysisSystemPrompt, analysisUserMessage(req), analyzeMaxTokens)
	if err != nil {
		return nil, err
	}

	res, err := DecodeAnalysis(text)
	if err != nil {
		return nil, &core.ExternalServiceError{Service: serviceName, Op: "analyze", Err: err}
	}
	return res, nil
}

// ExtractTable asks the service to transcribe one table to CSV. The raw reply
// is returned; fence stripping and parsing happen in the pipeline.
func (c *Client) ExtractTable(ctx context.Context, req core.TableExtractionRequest) (string, error) {
	text, err := c.send(ctx, "extract_table", extractionSystemPrompt, extractionUserMessage(req), c.maxTokens)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", &core.ExternalServiceError{Service: serviceName, Op: "extract_table", Err: errors.New("empty response")}
	}
	return text, nil
}

// send posts one system+user exchange and returns the concatenated text blocks.
func (c *Client) send(ctx context.Context, op, system, user string, maxTokens int) (string, error) {
	log := logging.FromContext(ctx).With("op", op)

	body, err := json.Marshal(messageRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		System:      system,
		Messages:    []message{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("anthropic-version", c.apiVersion)
	if c.apiKey != "" {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", c.transportError(ctx, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Warn("analysis service error",
			"status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds())
		return "", &core.ExternalServiceError{
			Service: serviceName,
			Op:      op,
			Timeout: resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout,
			Err:     fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}

	var out messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", c.transportError(ctx, op, fmt.Errorf("decode response: %w", err))
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	log.Debug("analysis service response",
		"duration_ms", time.Since(start).Milliseconds(),
		"input_tokens", out.Usage.InputTokens,
		"output_tokens", out.Usage.OutputTokens,
		"stop_reason", out.StopReason)

	return text.String(), nil
}

// transportError classifies err as a timeout when the request deadline or the
// client timeout fired.
func (c *Client) transportError(ctx context.Context, op string, err error) error {
	timeout := errors.Is(ctx.Err(), context.DeadlineExceeded)
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	return &core.ExternalServiceError{Service: serviceName, Op: op, Timeout: timeout, Err: err}
}

var _ core.Analyzer = (*Client)(nil)
