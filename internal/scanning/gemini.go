package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.5-pro"

// scanTimeout bounds the single provider round trip per request.
const scanTimeout = 30 * time.Second

// GeminiConfig carries everything the Gemini scanner needs at construction.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// Gemini implements Scanner using Google Gemini. When no API key is
// configured the instance is still valid: Configured reports false and Scan
// fails fast with ErrMissingCredential without touching the network.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a Gemini scanner. An empty API key yields an
// unconfigured instance rather than an error so the service can start
// without transcription enabled.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return &Gemini{}, nil
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(cfg.Model),
	}, nil
}

// Configured reports whether an API key was supplied.
func (g *Gemini) Configured() bool {
	return g.client != nil
}

// Scan sends the image and the receipt prompt to Gemini and returns the
// reply text. The response shape is normalized here: all text parts of the
// first candidate are concatenated, and anything else is a provider error.
func (g *Gemini) Scan(ctx context.Context, imageData []byte, contentType string) (string, error) {
	if g.client == nil {
		return "", ErrMissingCredential
	}

	ctx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()

	pngData, err := preparePNG(imageData, contentType)
	if err != nil {
		return "", err
	}

	parts := []genai.Part{
		genai.Text(receiptPrompt),
		genai.ImageData("png", pngData),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		perr := &ProviderError{Err: err}
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			perr.Code = apiErr.Code
			perr.Body = apiErr.Body
		}
		return "", perr
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", &ProviderError{Err: errors.New("empty response from gemini")}
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	return strings.TrimSpace(sb.String()), nil
}

// Close closes the Gemini client.
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
