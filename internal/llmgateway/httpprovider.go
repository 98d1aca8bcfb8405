package llmgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPProvider adapts an Anthropic Messages-API-compatible HTTP endpoint
// to the Provider interface, grounded on the teacher's
// Toolkit/providers/claude/client.go Client.doRequest, narrowed to the
// single ChatCompletion-shaped call the Gateway ever issues and
// generalized to the model_id carried per-Request rather than fixed at
// construction.
type HTTPProvider struct {
	apiKey     string
	baseURL    string
	version    string
	httpClient *http.Client
}

// NewHTTPProvider constructs an HTTPProvider. baseURL defaults to
// Anthropic's public endpoint when empty, so a self-hosted
// Anthropic-Messages-compatible gateway can be substituted via config.
func NewHTTPProvider(apiKey, baseURL, version string) *HTTPProvider {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if version == "" {
		version = "2023-06-01"
	}
	return &HTTPProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		version: version,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string              `json:"model"`
	Messages    []anthropicMessage  `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature,omitempty"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete implements Provider by POSTing req to baseURL+"/v1/messages"
// and flattening the first text content block into Response.Content.
func (p *HTTPProvider) Complete(ctx context.Context, req Request) (Response, error) {
	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	payload := anthropicRequest{
		Model:       req.ModelID,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}

	var out anthropicResponse
	if err := p.doRequest(ctx, "/v1/messages", payload, &out); err != nil {
		return Response{}, err
	}

	var content string
	for _, block := range out.Content {
		if block.Type == "text" {
			content = block.Text
			break
		}
	}

	return Response{
		ModelID: req.ModelID,
		Content: content,
		Usage: Usage{
			PromptTokens:     out.Usage.InputTokens,
			CompletionTokens: out.Usage.OutputTokens,
			TotalTokens:      out.Usage.InputTokens + out.Usage.OutputTokens,
		},
	}, nil
}

func (p *HTTPProvider) doRequest(ctx context.Context, endpoint string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("llmgateway: marshalling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("llmgateway: building request: %w", err)
	}
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", p.version)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("llmgateway: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("llmgateway: provider returned status %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("llmgateway: decoding response: %w", err)
	}
	return nil
}
