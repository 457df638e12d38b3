package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/timmy/memetag/internal/prompts"
)

// VLMReader reads image text through an OpenAI-compatible vision model.
type VLMReader struct {
	client   *resty.Client
	model    string
	endpoint string
}

// VLMConfig holds configuration for the vision model client.
type VLMConfig struct {
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewVLMReader creates a new vision model client.
// Parameters:
//   - cfg: model, API key and endpoint configuration.
//
// Returns:
//   - *VLMReader: initialized client wrapper.
func NewVLMReader(cfg *VLMConfig) *VLMReader {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &VLMReader{
		client:   client,
		model:    cfg.Model,
		endpoint: baseURL + "/chat/completions",
	}
}

// Model returns the model name being used.
func (r *VLMReader) Model() string {
	return r.model
}

// OpenAI-compatible Chat Completion API request/response structures
type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string for system, []interface{} for user with images
}

type openAITextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type openAIImageContent struct {
	Type     string         `json:"type"`
	ImageURL openAIImageURL `json:"image_url"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// ReadText extracts text from an image using the OCR prompt.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - data: raw image bytes.
//   - format: image format extension (jpg, png, gif, webp).
//
// Returns:
//   - string: extracted OCR text (may be empty).
//   - error: non-nil if the API request fails; 4xx responses other than 429 are permanent.
func (r *VLMReader) ReadText(ctx context.Context, data []byte, format string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", MIMEType(format), base64.StdEncoding.EncodeToString(data))

	req := openAIRequest{
		Model: r.model,
		Messages: []openAIMessage{
			{
				Role:    "system",
				Content: prompts.OCRSystemPrompt,
			},
			{
				Role: "user",
				Content: []interface{}{
					openAITextContent{
						Type: "text",
						Text: prompts.OCRUserPrompt,
					},
					openAIImageContent{
						Type: "image_url",
						ImageURL: openAIImageURL{
							URL:    dataURL,
							Detail: "auto",
						},
					},
				},
			},
		},
		MaxTokens: prompts.OCRMaxTokens,
	}

	var resp openAIResponse
	httpResp, err := r.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(r.endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to call VLM OCR API: %w", err)
	}

	if status := httpResp.StatusCode(); status < 200 || status >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d: %s", status, string(httpResp.Body()))
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", status, resp.Error.Message)
		}
		err := fmt.Errorf("VLM OCR API returned error: %s", errorMsg)
		if status >= 400 && status < 500 && status != 429 {
			return "", Permanent(err)
		}
		return "", err
	}

	if resp.Error != nil {
		return "", fmt.Errorf("VLM OCR API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in VLM OCR response (status: %d)", httpResp.StatusCode())
	}

	return resp.Choices[0].Message.Content, nil
}

// MIMEType maps an image format name to its content type.
func MIMEType(format string) string {
	switch format {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
