package plannerrepo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"

	maxRetries = 3
	initDelay  = time.Second
)

const systemPrompt = "You are a travel planner. Reply with a concise day-by-day itinerary " +
	"for the trip the user describes. Use plain text, no markdown tables."

var ErrNotConfigured = errors.New("planner: api key not set")

type Repo interface {
	Plan(ctx context.Context, prompt string) (string, error)
}

type chatRepo struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	delay   time.Duration
}

// New returns a client for an OpenAI-compatible chat completions API.
func New(apiKey, baseURL, model string, client *http.Client) Repo {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	return &chatRepo{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  client,
		delay:   initDelay,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (r *chatRepo) Plan(ctx context.Context, prompt string) (string, error) {
	if r.apiKey == "" {
		return "", ErrNotConfigured
	}
	body, err := json.Marshal(chatRequest{
		Model: r.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.delay << (attempt - 1)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("planner API error (%d): %s", resp.StatusCode, string(respBody))
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				continue
			}
			return "", lastErr
		}

		var out chatResponse
		if err := json.Unmarshal(respBody, &out); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
			return "", errors.New("empty response content")
		}
		return strings.TrimSpace(out.Choices[0].Message.Content), nil
	}
	return "", fmt.Errorf("max retries (%d) exceeded: %w", maxRetries, lastErr)
}
