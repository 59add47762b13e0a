package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	assistant "fleet-risk-engine/internal/assistant/domain"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 500
	fallbackReply    = "Sorry, I'm having trouble responding right now."
)

const systemPrompt = `You are a fleet service advisor.
Explain vehicle issues simply.
Emphasize safety and preventive maintenance.
Be polite and professional.`

// Config configures the chat completions endpoint.
type Config struct {
	BaseURL     string
	Model       string
	APIKey      string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

// Responder generates replies through an OpenAI-compatible chat completions API.
type Responder struct {
	endpoint    string
	model       string
	apiKey      string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// NewResponder constructs a responder. An API key is required.
func NewResponder(cfg Config, client *http.Client) (*Responder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: api key required")
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(valueOrDefault(cfg.BaseURL, defaultBaseURL), "/")
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Responder{
		endpoint:    baseURL + "/chat/completions",
		model:       valueOrDefault(cfg.Model, defaultModel),
		apiKey:      cfg.APIKey,
		temperature: temperature,
		maxTokens:   maxTokens,
		httpClient:  client,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (r chatCompletionResponse) firstMessage() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(r.Choices[0].Message.Content)
}

// GenerateReply implements assistant.Responder.
func (r *Responder) GenerateReply(ctx context.Context, reply assistant.ReplyContext, userMessage string) (string, error) {
	payload := chatCompletionRequest{
		Model:       r.model,
		Messages:    buildMessages(reply, userMessage),
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("authorization", "Bearer "+r.apiKey)
	httpReq.Header.Set("content-type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("openai: %s", resp.Status)
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	content := decoded.firstMessage()
	if content == "" {
		return fallbackReply, nil
	}
	return content, nil
}

func buildMessages(reply assistant.ReplyContext, userMessage string) []chatMessage {
	system := systemPrompt
	if reply.VehicleSummary != "" {
		system += "\n\n" + reply.VehicleSummary
	}
	if reply.PredictionSummary != "" {
		system += "\n\n" + reply.PredictionSummary
	}
	messages := []chatMessage{{Role: "system", Content: system}}
	for _, m := range reply.ConversationHistory {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	return append(messages, chatMessage{Role: "user", Content: userMessage})
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
