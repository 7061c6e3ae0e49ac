package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appErrors "github.com/noah-isme/socratic-tutor-api/pkg/errors"
)

const streamDataPrefix = "data: "

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint
// (OpenAI, Qwen, GLM and friends).
type OpenAIProvider struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAIProvider builds a provider from a settings snapshot.
func NewOpenAIProvider(settings Settings, client *http.Client) *OpenAIProvider {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	name := settings.Provider
	if name == "" {
		name = "openai"
	}
	return &OpenAIProvider{
		name:    name,
		baseURL: strings.TrimRight(settings.BaseURL, "/"),
		apiKey:  settings.APIKey,
		model:   settings.ModelName,
		client:  client,
	}
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Chat performs a blocking completion call and reports end-to-end latency.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, opts Options) (*ChatResult, error) {
	start := time.Now()

	resp, err := p.post(ctx, messages, opts, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := requireSuccess(resp); err != nil {
		return nil, err
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrProviderUnavailable.Code, appErrors.ErrProviderUnavailable.Status, "malformed completion response")
	}
	if len(decoded.Choices) == 0 {
		return nil, appErrors.Clone(appErrors.ErrProviderUnavailable, "completion response contained no choices")
	}

	return &ChatResult{
		Content:   decoded.Choices[0].Message.Content,
		TokenIn:   decoded.Usage.PromptTokens,
		TokenOut:  decoded.Usage.CompletionTokens,
		Model:     p.model,
		Provider:  p.name,
		LatencyMS: time.Since(start).Milliseconds(),
	}, nil
}

// ChatStream performs a streaming completion call, invoking onDelta for each
// content fragment until the terminator frame arrives.
func (p *OpenAIProvider) ChatStream(ctx context.Context, messages []Message, opts Options, onDelta func(delta string) error) error {
	resp, err := p.post(ctx, messages, opts, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := requireSuccess(resp); err != nil {
		return err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, streamDataPrefix) {
			continue
		}
		data := strings.TrimPrefix(line, streamDataPrefix)
		if data == "[DONE]" {
			return nil
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return appErrors.Wrap(err, appErrors.ErrProviderUnavailable.Code, appErrors.ErrProviderUnavailable.Status, "malformed stream chunk")
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == nil {
			continue
		}
		if err := onDelta(*chunk.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrProviderUnavailable.Code, appErrors.ErrProviderUnavailable.Status, "stream interrupted")
	}

	return nil
}

func (p *OpenAIProvider) post(ctx context.Context, messages []Message, opts Options, stream bool) (*http.Response, error) {
	payload := chatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "encode completion request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "build completion request")
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrProviderUnavailable.Code, appErrors.ErrProviderUnavailable.Status, "completion request failed")
	}
	return resp, nil
}

func requireSuccess(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return appErrors.Clone(appErrors.ErrProviderUnavailable,
		fmt.Sprintf("provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
}
