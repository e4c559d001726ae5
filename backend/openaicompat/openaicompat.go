package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	llmr "github.com/aws-samples/llmresilience"
)

// CallIDHeader is the header the LiteLLM gateway uses to echo its call id.
const CallIDHeader = "x-litellm-call-id"

// Backend talks to an OpenAI-compatible chat completions endpoint, such as
// a LiteLLM gateway.
type Backend struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ llmr.Backend = (*Backend)(nil)

// Option configures the backend.
type Option func(*Backend)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Backend) { b.httpClient = c }
}

// WithAPIKey sets the key used when a request carries none.
func WithAPIKey(key string) Option {
	return func(b *Backend) { b.apiKey = key }
}

// New creates a new OpenAI-compatible backend.
func New(name, baseURL string, opts ...Option) *Backend {
	b := &Backend{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewLiteLLM creates a backend for a LiteLLM gateway at baseURL.
func NewLiteLLM(baseURL string, opts ...Option) *Backend {
	return New("litellm", baseURL, opts...)
}

func (b *Backend) Name() string { return b.name }

type apiRequest struct {
	Model     string       `json:"model"`
	Messages  []apiMessage `json:"messages"`
	MaxTokens *int         `json:"max_tokens,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int        `json:"index"`
		Message      apiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

func (b *Backend) Invoke(ctx context.Context, req llmr.BackendRequest) (llmr.BackendResponse, error) {
	msgs := make([]apiMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = apiMessage{Role: m.Role, Content: m.Content}
	}
	body, err := json.Marshal(apiRequest{Model: req.Model, Messages: msgs, MaxTokens: req.MaxTokens})
	if err != nil {
		return llmr.BackendResponse{}, fmt.Errorf("llmresilience: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return llmr.BackendResponse{}, fmt.Errorf("llmresilience: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	key := req.APIKey
	if key == "" {
		key = b.apiKey
	}
	if key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}

	httpResp, err := b.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return llmr.BackendResponse{}, ctx.Err()
		}
		return llmr.BackendResponse{}, fmt.Errorf("%w: %v", llmr.ErrBackendUnavailable, err)
	}
	defer httpResp.Body.Close()

	if err := mapHTTPError(httpResp); err != nil {
		return llmr.BackendResponse{}, err
	}

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return llmr.BackendResponse{}, fmt.Errorf("llmresilience: decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llmr.BackendResponse{}, fmt.Errorf("llmresilience: empty choices in response")
	}

	requestID := httpResp.Header.Get(CallIDHeader)
	if requestID == "" {
		requestID = resp.ID
	}
	return llmr.BackendResponse{
		ID:        resp.ID,
		RequestID: requestID,
		Content:   resp.Choices[0].Message.Content,
		Model:     resp.Model,
		Usage: llmr.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Read body for error context, but don't fail if we can't.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	detail := strings.TrimSpace(string(body))

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", llmr.ErrRateLimited, detail)
	case http.StatusUnauthorized, http.StatusForbidden:
		return llmr.ErrAuthFailed
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", llmr.ErrInvalidRequest, detail)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", llmr.ErrModelNotFound, detail)
	default:
		return fmt.Errorf("%w: status %d", llmr.ErrBackendUnavailable, resp.StatusCode)
	}
}
