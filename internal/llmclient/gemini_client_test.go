package llmclient

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/genai"

	"github.com/xkilldash9x/cherry/api/schemas"
)

// newTestGeminiClient wires a GeminiClient to a mocked generator.
func newTestGeminiClient(t *testing.T) (*GeminiClient, *mockGenerator, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	gen := new(mockGenerator)
	return &GeminiClient{
		models:     gen,
		model:      "test-model",
		config:     getValidLLMConfig(),
		logger:     zap.New(core),
		maxElapsed: 2 * time.Second,
	}, gen, logs
}

// -- Test Cases: Generate --

func TestGeminiGenerate_Success(t *testing.T) {
	client, gen, logs := newTestGeminiClient(t)
	resp := textResponse(`{"function":"wait","parameters":{"seconds":1}}`, genai.FinishReasonStop)
	resp.UsageMetadata = &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 5, TotalTokenCount: 15}
	gen.On("GenerateContent", mock.Anything, "test-model", mock.Anything, mock.Anything).Return(resp, nil).Once()

	out, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "what next?"})

	require.NoError(t, err)
	assert.Equal(t, `{"function":"wait","parameters":{"seconds":1}}`, out)
	gen.AssertExpectations(t)

	entries := logs.FilterMessage("LLM generation complete").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 15, entries[0].ContextMap()["total_tokens"])
}

func TestGeminiGenerate_RetriesEmptyContent(t *testing.T) {
	client, gen, _ := newTestGeminiClient(t)
	gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(textResponse("", genai.FinishReasonMaxTokens), nil).Once()
	gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(textResponse("ok", genai.FinishReasonStop), nil).Once()

	out, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "p"})

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	gen.AssertNumberOfCalls(t, "GenerateContent", 2)
}

func TestGeminiGenerate_PermanentFailures(t *testing.T) {
	tests := []struct {
		name    string
		resp    *genai.GenerateContentResponse
		err     error
		wantMsg string
	}{
		{
			name:    "No Candidates",
			resp:    &genai.GenerateContentResponse{},
			wantMsg: "no candidates",
		},
		{
			name:    "Safety Block",
			resp:    textResponse("", genai.FinishReasonSafety),
			wantMsg: "blocked the request",
		},
		{
			name:    "Client Error Status",
			err:     genai.APIError{Code: http.StatusBadRequest, Message: "bad prompt"},
			wantMsg: "gemini API error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, gen, _ := newTestGeminiClient(t)
			gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(tt.resp, tt.err)

			out, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "p"})

			assert.Empty(t, out)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
			gen.AssertNumberOfCalls(t, "GenerateContent", 1)
		})
	}
}

func TestGeminiGenerate_RetriesRateLimit(t *testing.T) {
	client, gen, logs := newTestGeminiClient(t)
	gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, genai.APIError{Code: http.StatusTooManyRequests, Message: "slow down"}).Once()
	gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(textResponse("done", genai.FinishReasonStop), nil).Once()

	out, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "p"})

	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, 1, logs.FilterMessage("Transient Gemini API error, retrying").Len())
}

func TestGeminiGenerate_ContextCancelled(t *testing.T) {
	client, gen, _ := newTestGeminiClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, context.Canceled).Maybe()

	_, err := client.Generate(ctx, schemas.GenerationRequest{UserPrompt: "p"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

// -- Test Cases: Request Config --

func TestBuildConfig_FallsBackToClientConfig(t *testing.T) {
	client, _, _ := newTestGeminiClient(t)

	cfg := client.buildConfig(schemas.GenerationRequest{SystemPrompt: "be brief"})

	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.8, *cfg.Temperature, 1e-6)
	require.NotNil(t, cfg.TopP)
	assert.InDelta(t, 0.9, *cfg.TopP, 1e-6)
	require.NotNil(t, cfg.TopK)
	assert.InDelta(t, 40, *cfg.TopK, 1e-6)
	assert.Equal(t, int32(2048), cfg.MaxOutputTokens)
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "be brief", cfg.SystemInstruction.Parts[0].Text)
	assert.Empty(t, cfg.ResponseMIMEType)
}

func TestBuildConfig_RequestOverrides(t *testing.T) {
	client, _, _ := newTestGeminiClient(t)

	cfg := client.buildConfig(schemas.GenerationRequest{
		Options: schemas.GenerationOptions{Temperature: 0.2, TopP: 0.5, TopK: 7, MaxTokens: 100, ForceJSONFormat: true},
	})

	assert.InDelta(t, 0.2, *cfg.Temperature, 1e-6)
	assert.InDelta(t, 0.5, *cfg.TopP, 1e-6)
	assert.InDelta(t, 7, *cfg.TopK, 1e-6)
	assert.Equal(t, int32(100), cfg.MaxOutputTokens)
	assert.Equal(t, "application/json", cfg.ResponseMIMEType)
	assert.Nil(t, cfg.SystemInstruction)
}
