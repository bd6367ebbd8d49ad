package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Model is the language-model boundary: one prompt in, raw text out. The
// model name is chosen per call so a fallback can be addressed directly.
type Model interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// GeminiModel talks to the Gemini API.
type GeminiModel struct {
	client      *genai.Client
	temperature float32
}

func NewGeminiModel(ctx context.Context, apiKey string) (*GeminiModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiModel{client: client, temperature: 0.2}, nil
}

func (g *GeminiModel) Generate(ctx context.Context, model, prompt string) (string, error) {
	m := g.client.GenerativeModel(model)
	m.SetTemperature(g.temperature)
	m.ResponseMIMEType = "application/json"

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no content generated")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("unexpected response format (empty content)")
	}
	return sb.String(), nil
}

func (g *GeminiModel) Close() error {
	return g.client.Close()
}

// IsBusy reports whether err means the model is overloaded or rate limited,
// which makes a retry against another model worthwhile.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		if st := apiErr.GRPCStatus(); st != nil && busyCode(st.Code()) {
			return true
		}
		if busyHTTP(apiErr.HTTPCode()) {
			return true
		}
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) && busyHTTP(gErr.Code) {
		return true
	}

	if st, ok := status.FromError(err); ok && busyCode(st.Code()) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"overloaded", "resource has been exhausted", "rate limit", "too many requests"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func busyCode(c codes.Code) bool {
	return c == codes.ResourceExhausted || c == codes.Unavailable
}

func busyHTTP(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}
