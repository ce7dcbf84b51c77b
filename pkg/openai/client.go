package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/glanceassist/glance/pkg/domain"
)

const (
	summarizeSystemPrompt = `You are a reading assistant embedded in an overlay next to the user's selection.
Summarize or explain the selected text concisely.
Respond with a single JSON object: {"content": "<your answer>", "beyond_text": <true when the answer relies on knowledge beyond the literal selected text>}.`

	chatSystemPrompt = `You are a reading assistant answering follow-up questions about the user's selection.
Respond with a single JSON object: {"content": "<your answer>", "beyond_text": <true when the answer relies on knowledge beyond the conversation so far>}.`

	visionSystemPrompt = `You analyze a selected image or diagram.
Respond with a single JSON object:
{"description": "<overall description>",
 "concepts": ["<concept>", ...],
 "markers": [{"label": "<short label>", "description": "<what this part is>",
   "x": <0..1>, "y": <0..1>, "w": <0..1>, "h": <0..1>}, ...]}.
Marker positions are approximate regions of interest, not pixel-exact boxes.`
)

type Client struct {
	api         *goopenai.Client
	textModel   string
	visionModel string
}

func NewClient(token, textModel, visionModel string) (*Client, error) {
	if token == "" {
		return nil, errors.New("empty OpenAI token")
	}

	return &Client{
		api:         goopenai.NewClient(token),
		textModel:   textModel,
		visionModel: visionModel,
	}, nil
}

// Summarize runs the text-extraction pipeline's initial request.
func (c *Client) Summarize(ctx context.Context, text string) (domain.AssistantReply, error) {
	messages := []goopenai.ChatCompletionMessage{
		{Role: goopenai.ChatMessageRoleSystem, Content: summarizeSystemPrompt},
		{Role: goopenai.ChatMessageRoleUser, Content: text},
	}
	return c.completeText(ctx, messages)
}

// Chat runs a conversational turn with prior session messages as context.
func (c *Client) Chat(ctx context.Context, history []domain.ChatMessage, prompt string) (domain.AssistantReply, error) {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role: goopenai.ChatMessageRoleSystem, Content: chatSystemPrompt,
	})
	for _, msg := range history {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role: goopenai.ChatMessageRoleUser, Content: prompt,
	})
	return c.completeText(ctx, messages)
}

// Analyze runs the vision-processing pipeline over raw image bytes.
func (c *Client) Analyze(ctx context.Context, image []byte) (domain.VisionResult, error) {
	request := goopenai.ChatCompletionRequest{
		Model: c.visionModel,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: visionSystemPrompt},
			{
				Role: goopenai.ChatMessageRoleUser,
				MultiContent: []goopenai.ChatMessagePart{
					{Type: goopenai.ChatMessagePartTypeText, Text: "Analyze this image."},
					{
						Type: goopenai.ChatMessagePartTypeImageURL,
						ImageURL: &goopenai.ChatMessageImageURL{
							URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image),
						},
					},
				},
			},
		},
	}

	resp, err := c.api.CreateChatCompletion(ctx, request)
	if err != nil {
		return domain.VisionResult{}, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return domain.VisionResult{}, domain.NewPermanentError("empty vision completion", nil)
	}

	var parsed visionPayload
	if err := json.Unmarshal([]byte(extractJSON(resp.Choices[0].Message.Content)), &parsed); err != nil {
		return domain.VisionResult{}, domain.NewPermanentError("unparseable vision completion", err)
	}

	slog.DebugContext(ctx, "Vision completion received",
		"markers", len(parsed.Markers),
		"concepts", len(parsed.Concepts),
	)

	return parsed.toResult(), nil
}

func (c *Client) completeText(ctx context.Context, messages []goopenai.ChatCompletionMessage) (domain.AssistantReply, error) {
	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:    c.textModel,
		Messages: messages,
	})
	if err != nil {
		return domain.AssistantReply{}, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return domain.AssistantReply{}, domain.NewPermanentError("empty chat completion", nil)
	}

	content := resp.Choices[0].Message.Content

	var parsed textPayload
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err != nil {
		// Plain-text answers still count; they just cannot flag beyond-text.
		return domain.AssistantReply{
			Content: content,
			Source:  domain.ResponseSourceTextDerived,
		}, nil
	}

	source := domain.ResponseSourceTextDerived
	if parsed.BeyondText {
		source = domain.ResponseSourceInferred
	}

	return domain.AssistantReply{
		Content:    parsed.Content,
		Source:     source,
		Confidence: parsed.Confidence,
	}, nil
}

// classifyError maps backend failures onto the domain taxonomy: rate limits,
// timeouts and connectivity problems are transient; rejected or unprocessable
// input is permanent.
func classifyError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return domain.NewTransientError("rate limited", err)
		case apiErr.HTTPStatusCode >= 500:
			return domain.NewTransientError("backend unreachable", err)
		default:
			return domain.NewPermanentError(fmt.Sprintf("request rejected (%d)", apiErr.HTTPStatusCode), err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewTransientError("request timed out", err)
	}
	return domain.NewTransientError("connectivity failure", err)
}

// extractJSON tolerates models wrapping JSON in markdown fences.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			return content[start : end+1]
		}
	}
	return content
}
