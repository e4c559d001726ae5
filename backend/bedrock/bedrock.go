// Package bedrock invokes Anthropic models on Amazon Bedrock directly, with
// one client per credential context.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"

	llmr "github.com/aws-samples/llmresilience"
)

// AnthropicVersion is the body version Bedrock expects for Anthropic models.
const AnthropicVersion = "bedrock-2023-05-31"

// InvokeAPI is the part of the Bedrock runtime client the backend uses.
type InvokeAPI interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// IdentityAPI is the part of the STS client used to identify an account.
type IdentityAPI interface {
	GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Backend invokes models through one Bedrock runtime client.
type Backend struct {
	name      string
	client    InvokeAPI
	maxTokens int
}

var _ llmr.Backend = (*Backend)(nil)

// Option configures the backend.
type Option func(*Backend)

// WithName sets the backend name, e.g. the profile or account it uses.
func WithName(name string) Option {
	return func(b *Backend) { b.name = name }
}

// WithMaxTokens sets max_tokens for requests that do not carry one.
func WithMaxTokens(n int) Option {
	return func(b *Backend) { b.maxTokens = n }
}

// New creates a backend around client.
func New(client InvokeAPI, opts ...Option) *Backend {
	b := &Backend{
		name:      "bedrock",
		client:    client,
		maxTokens: llmr.DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Session bundles the clients bound to one AWS profile.
type Session struct {
	Profile  string
	Runtime  *bedrockruntime.Client
	Identity *sts.Client
	Config   aws.Config
}

// NewSession loads the shared config for profile in region. SDK retries are
// disabled so throttling surfaces as a rate-limited outcome.
func NewSession(ctx context.Context, profile, region string) (*Session, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithSharedConfigProfile(profile),
		awsconfig.WithRegion(region),
		awsconfig.WithRetryMaxAttempts(1),
	)
	if err != nil {
		return nil, fmt.Errorf("llmresilience: load aws profile %q: %w", profile, err)
	}
	return &Session{
		Profile:  profile,
		Runtime:  bedrockruntime.NewFromConfig(cfg),
		Identity: sts.NewFromConfig(cfg),
		Config:   cfg,
	}, nil
}

// Backend returns a backend using the session's runtime client.
func (s *Session) Backend(opts ...Option) *Backend {
	return New(s.Runtime, append([]Option{WithName(s.Profile)}, opts...)...)
}

func (b *Backend) Name() string { return b.name }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

func (b *Backend) Invoke(ctx context.Context, req llmr.BackendRequest) (llmr.BackendResponse, error) {
	body := anthropicRequest{
		AnthropicVersion: AnthropicVersion,
		MaxTokens:        b.maxTokens,
	}
	if req.MaxTokens != nil {
		body.MaxTokens = *req.MaxTokens
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return llmr.BackendResponse{}, fmt.Errorf("llmresilience: marshal request: %w", err)
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.Model),
		Body:        payload,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return llmr.BackendResponse{}, mapAPIError(err)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return llmr.BackendResponse{}, fmt.Errorf("llmresilience: decode response: %w", err)
	}

	var text strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	requestID, _ := awsmiddleware.GetRequestIDMetadata(out.ResultMetadata)

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return llmr.BackendResponse{
		ID:        resp.ID,
		RequestID: requestID,
		Content:   text.String(),
		Model:     model,
		Usage: llmr.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

func mapAPIError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %v", llmr.ErrBackendUnavailable, err)
	}
	switch apiErr.ErrorCode() {
	case "ThrottlingException", "ServiceQuotaExceededException", "TooManyRequestsException":
		return fmt.Errorf("%w: %s", llmr.ErrRateLimited, apiErr.ErrorMessage())
	case "AccessDeniedException", "UnrecognizedClientException", "ExpiredTokenException":
		return fmt.Errorf("%w: %s", llmr.ErrAuthFailed, apiErr.ErrorMessage())
	case "ValidationException":
		return fmt.Errorf("%w: %s", llmr.ErrInvalidRequest, apiErr.ErrorMessage())
	case "ResourceNotFoundException":
		return fmt.Errorf("%w: %s", llmr.ErrModelNotFound, apiErr.ErrorMessage())
	default:
		return fmt.Errorf("%w: %s: %s", llmr.ErrBackendUnavailable, apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
}

// CallerAccount returns the account id behind the client's credentials.
func CallerAccount(ctx context.Context, client IdentityAPI) (string, error) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("llmresilience: get caller identity: %w", err)
	}
	return aws.ToString(out.Account), nil
}

// MaskAccount hides all but the last four digits of an account id.
func MaskAccount(id string) string {
	if len(id) <= 4 {
		return id
	}
	return "..." + id[len(id)-4:]
}
