package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/aws/smithy-go/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmr "github.com/aws-samples/llmresilience"
)

type fakeRuntime struct {
	in   *bedrockruntime.InvokeModelInput
	body string
	err  error
}

func (f *fakeRuntime) InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	var md middleware.Metadata
	awsmiddleware.SetRequestIDMetadata(&md, "req-123")
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body), ResultMetadata: md}, nil
}

func TestInvoke_Success(t *testing.T) {
	rt := &fakeRuntime{body: `{"id":"msg_1","model":"claude","content":[{"type":"text","text":"Hi"}],"usage":{"input_tokens":5,"output_tokens":2}}`}
	b := New(rt, WithName("primary"))

	resp, err := b.Invoke(context.Background(), llmr.BackendRequest{
		Model:    "us.anthropic.claude",
		Messages: []llmr.Message{{Role: "user", Content: "hello"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "primary", b.Name())
	assert.Equal(t, "req-123", resp.RequestID)
	assert.Equal(t, "Hi", resp.Content)
	assert.Equal(t, int64(7), resp.Usage.TotalTokens)
	assert.Equal(t, "us.anthropic.claude", aws.ToString(rt.in.ModelId))

	var sent anthropicRequest
	require.NoError(t, json.Unmarshal(rt.in.Body, &sent))
	assert.Equal(t, AnthropicVersion, sent.AnthropicVersion)
	assert.Equal(t, llmr.DefaultMaxTokens, sent.MaxTokens)
	require.Len(t, sent.Messages, 1)
	assert.Equal(t, "hello", sent.Messages[0].Content)
}

func TestInvoke_ErrorMapping(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"ThrottlingException", llmr.ErrRateLimited},
		{"ServiceQuotaExceededException", llmr.ErrRateLimited},
		{"AccessDeniedException", llmr.ErrAuthFailed},
		{"ValidationException", llmr.ErrInvalidRequest},
		{"ResourceNotFoundException", llmr.ErrModelNotFound},
		{"InternalServerException", llmr.ErrBackendUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rt := &fakeRuntime{err: &smithy.GenericAPIError{Code: tt.code, Message: "x"}}
			_, err := New(rt).Invoke(context.Background(), llmr.BackendRequest{Model: "m"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestInvoke_NonAPIError(t *testing.T) {
	rt := &fakeRuntime{err: errors.New("dial tcp: refused")}
	_, err := New(rt).Invoke(context.Background(), llmr.BackendRequest{Model: "m"})
	assert.ErrorIs(t, err, llmr.ErrBackendUnavailable)

	rt = &fakeRuntime{err: context.DeadlineExceeded}
	_, err = New(rt).Invoke(context.Background(), llmr.BackendRequest{Model: "m"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type fakeIdentity struct{ account string }

func (f fakeIdentity) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return &sts.GetCallerIdentityOutput{Account: aws.String(f.account)}, nil
}

func TestCallerAccount(t *testing.T) {
	id, err := CallerAccount(context.Background(), fakeIdentity{account: "123456789012"})
	require.NoError(t, err)
	assert.Equal(t, "123456789012", id)
	assert.Equal(t, "...9012", MaskAccount(id))
	assert.Equal(t, "12", MaskAccount("12"))
}
