package classifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/sashabaranov/go-openai"

	domain "github.com/bryanwahyu/medimaging-bridge/internal/domain/analysis"
)

const visionMaxTokens = 512

// VisionClient scores an image over a fixed class list using an OpenAI
// vision model. Fallback backend for deployments without the dedicated
// model server.
type VisionClient struct {
	*openai.Client
	Model   string
	Classes []string
}

func NewVisionClient(apiKey, model string, classes []string) *VisionClient {
	return &VisionClient{Client: openai.NewClient(apiKey), Model: model, Classes: classes}
}

func (c *VisionClient) Classify(ctx context.Context, imagePath string) (domain.Scores, error) {
	if len(c.Classes) == 0 {
		return nil, fmt.Errorf("vision classifier needs a class list")
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(imagePath))
	if contentType == "" {
		contentType = "image/jpeg"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))

	model := c.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	req := openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: visionMaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: visionSystemPrompt(c.Classes)},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: "Classify this medical image."},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
				},
			},
		},
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vision completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("vision completion returned no choices")
	}

	var scores map[string]float64
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &scores); err != nil {
		return nil, fmt.Errorf("vision response is not a score map: %w", err)
	}

	// keep only the configured labels, defaulting absent ones to 0
	out := domain.Scores{}
	for _, label := range c.Classes {
		out[label] = scores[label]
	}
	return out, nil
}

func visionSystemPrompt(classes []string) string {
	return fmt.Sprintf(
		"You score medical images. Respond with a single JSON object whose keys are "+
			"exactly [%s] and whose values are probabilities between 0 and 1. "+
			"No prose, no extra keys.",
		strings.Join(classes, ", "),
	)
}
