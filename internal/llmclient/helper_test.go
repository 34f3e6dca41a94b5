package llmclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/genai"

	"github.com/xkilldash9x/cherry/api/schemas"
	"github.com/xkilldash9x/cherry/internal/config"
)

// MockLLMClient is a mock implementation of the LLMClient interface for testing.
type MockLLMClient struct {
	mock.Mock
	Name string
}

// Generate mocks the Generate method.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// Close mocks the Close method.
func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// mockGenerator stands in for the genai Models service.
type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	args := m.Called(ctx, model, contents, cfg)
	resp, _ := args.Get(0).(*genai.GenerateContentResponse)
	return resp, args.Error(1)
}

// setupTestLogger is a helper to create a zap logger for testing with an observer.
func setupTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	core, _ := observer.New(zap.DebugLevel)
	return zap.New(core)
}

// getValidLLMConfig returns a valid LLMModelConfig for testing purposes.
func getValidLLMConfig() config.LLMModelConfig {
	return config.LLMModelConfig{
		Provider:    config.ProviderGemini,
		APIKey:      "test-api-key",
		Model:       "test-model",
		APITimeout:  5 * time.Second,
		Temperature: 0.8,
		TopP:        0.9,
		TopK:        40,
		MaxTokens:   2048,
	}
}

// textResponse builds a single-candidate response carrying text.
func textResponse(text string, reason genai.FinishReason) *genai.GenerateContentResponse {
	content := &genai.Content{Role: genai.RoleModel}
	if text != "" {
		content.Parts = []*genai.Part{{Text: text}}
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: content, FinishReason: reason}},
	}
}
