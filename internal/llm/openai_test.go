package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/socratic-tutor-api/pkg/errors"
)

func TestOpenAIProviderChatSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req["model"])
		assert.Nil(t, req["stream"], "blocking calls omit the stream flag")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"content": "total = 0"}}],
			"usage": {"prompt_tokens": 42, "completion_tokens": 7}
		}`))
	}))
	defer server.Close()

	provider := NewOpenAIProvider(Settings{
		Provider:  "openai",
		BaseURL:   server.URL + "/v1/",
		APIKey:    "sk-test",
		ModelName: "gpt-4o-mini",
	}, server.Client())

	result, err := provider.Chat(context.Background(), []Message{{Role: "user", Content: "求和"}}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "total = 0", result.Content)
	assert.Equal(t, 42, result.TokenIn)
	assert.Equal(t, 7, result.TokenOut)
	assert.Equal(t, "openai", result.Provider)
	assert.GreaterOrEqual(t, result.LatencyMS, int64(0))
}

func TestOpenAIProviderChatNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "rate limit"}`))
	}))
	defer server.Close()

	provider := NewOpenAIProvider(Settings{BaseURL: server.URL, APIKey: "sk-test", ModelName: "gpt-4o-mini"}, server.Client())

	_, err := provider.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, DefaultOptions())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrProviderUnavailable.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "429")
}

func TestOpenAIProviderChatNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	provider := NewOpenAIProvider(Settings{BaseURL: server.URL, APIKey: "sk-test", ModelName: "gpt-4o-mini"}, server.Client())

	_, err := provider.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, DefaultOptions())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrProviderUnavailable.Code, appErrors.FromError(err).Code)
}

func TestOpenAIProviderChatStreamAssemblesDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, true, req["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"你\"}}]}\n\n"))
		_, _ = w.Write([]byte(": keep-alive comment\n\n"))
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"好\"}}]}\n\n"))
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{}}]}\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"ignored\"}}]}\n\n"))
	}))
	defer server.Close()

	provider := NewOpenAIProvider(Settings{BaseURL: server.URL, APIKey: "sk-test", ModelName: "gpt-4o-mini"}, server.Client())

	var deltas []string
	err := provider.ChatStream(context.Background(), []Message{{Role: "user", Content: "打招呼"}}, DefaultOptions(), func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"你", "好"}, deltas, "frames after the terminator and empty deltas are dropped")
}

func TestOpenAIProviderChatStreamPropagatesCallbackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"你\"}}]}\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	provider := NewOpenAIProvider(Settings{BaseURL: server.URL, APIKey: "sk-test", ModelName: "gpt-4o-mini"}, server.Client())

	callbackErr := assert.AnError
	err := provider.ChatStream(context.Background(), []Message{{Role: "user", Content: "hi"}}, DefaultOptions(), func(string) error {
		return callbackErr
	})
	assert.ErrorIs(t, err, callbackErr)
}

func TestSettingsHolderSwapsWholeSnapshot(t *testing.T) {
	holder := NewSettingsHolder(Settings{Provider: "openai", ModelName: "gpt-4o-mini"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				snapshot := holder.Snapshot()
				// A snapshot is either fully old or fully new.
				if snapshot.Provider == "deepseek" {
					assert.Equal(t, "deepseek-chat", snapshot.ModelName)
				} else {
					assert.Equal(t, "gpt-4o-mini", snapshot.ModelName)
				}
			}
		}()
	}
	holder.Update(Settings{Provider: "deepseek", ModelName: "deepseek-chat"})
	wg.Wait()

	assert.Equal(t, "deepseek", holder.Snapshot().Provider)
}

func TestProviderFactoryTracksSettings(t *testing.T) {
	holder := NewSettingsHolder(Settings{Provider: "openai", BaseURL: "https://api.openai.com/v1", ModelName: "gpt-4o-mini"})
	factory := NewProviderFactory(holder, nil)

	first := factory.Provider().(*OpenAIProvider)
	assert.Equal(t, "gpt-4o-mini", first.model)

	holder.Update(Settings{Provider: "glm", BaseURL: "https://open.bigmodel.cn/api/paas/v4", ModelName: "glm-4"})
	second := factory.Provider().(*OpenAIProvider)
	assert.Equal(t, "glm-4", second.model)
	assert.Equal(t, "glm", second.name)
}
