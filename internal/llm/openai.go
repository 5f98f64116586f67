package llm

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"digestbot/pkg/logger"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

type openAIAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// OpenAI uses chat completions for text. Audio payloads are first turned
// into text with Whisper and the prompt is applied to that transcript.
// Video payloads are rejected with ErrMediaUnsupported.
type OpenAI struct {
	client openAIAPI
	model  string
}

func NewOpenAI(apiKey, modelName string) *OpenAI {
	logger.Info("OpenAI client initialized", zap.String("model", modelName))

	return &OpenAI{
		client: openai.NewClient(apiKey),
		model:  modelName,
	}
}

func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	content := req.Prompt

	if req.Media != nil {
		if !strings.HasPrefix(req.Media.MIMEType, "audio/") {
			return "", fmt.Errorf("%w: %s", ErrMediaUnsupported, req.Media.MIMEType)
		}

		speech, err := o.transcribe(ctx, req.Media.Data, req.Media.MIMEType)
		if err != nil {
			return "", err
		}
		content = fmt.Sprintf("%s\n\nRecording transcribed verbatim:\n%s", req.Prompt, speech)
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: content,
			},
		},
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}

	return text, nil
}

func (o *OpenAI) transcribe(ctx context.Context, data []byte, mimeType string) (string, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: "recording" + audioExt(mimeType),
		Reader:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}
	return resp.Text, nil
}

func audioExt(mimeType string) string {
	switch mimeType {
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/mp4", "audio/m4a":
		return ".m4a"
	default:
		return ".ogg"
	}
}
