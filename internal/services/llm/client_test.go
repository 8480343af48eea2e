package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bookture/internal/retry"
	"bookture/internal/services"
)

func completionServer(t *testing.T, handler func(req map[string]any) any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if err := json.NewEncoder(w).Encode(handler(body)); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func contentResponse(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"content": content}},
		},
	}
}

func TestClientHealthCheck(t *testing.T) {
	server := completionServer(t, func(req map[string]any) any {
		if req["model"] != "demo-model" {
			t.Errorf("unexpected model %v", req["model"])
		}
		return contentResponse(`{"ok":true}`)
	})

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckCodeFence(t *testing.T) {
	server := completionServer(t, func(map[string]any) any {
		return contentResponse("```json\n{\"ok\":true}\n```")
	})

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientCompleteJSONSetsResponseFormat(t *testing.T) {
	server := completionServer(t, func(req map[string]any) any {
		format, _ := req["response_format"].(map[string]any)
		if format["type"] != "json_object" {
			t.Errorf("expected json_object response format, got %v", req["response_format"])
		}
		return contentResponse(`{"artStyle":"ink"}`)
	})

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if content != `{"artStyle":"ink"}` {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestClientCompleteReadsFallbackFields(t *testing.T) {
	cases := map[string]map[string]any{
		"delta": {"choices": []any{map[string]any{"delta": map[string]any{"content": "from delta"}}}},
		"text":  {"choices": []any{map[string]any{"text": "from delta"}}},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			server := completionServer(t, func(map[string]any) any { return payload })
			client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
			content, err := client.Complete(context.Background(), "", "hello")
			if err != nil {
				t.Fatalf("Complete: %v", err)
			}
			if content != "from delta" {
				t.Fatalf("unexpected content %q", content)
			}
		})
	}
}

func TestClientEmptyContentIsMalformed(t *testing.T) {
	server := completionServer(t, func(map[string]any) any {
		return map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"content": "", "refusal": "no"}, "finish_reason": "content_filter"},
			},
		}
	})

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
	_, err := client.Complete(context.Background(), "", "hello")
	if !errors.Is(err, services.ErrMalformedOutput) {
		t.Fatalf("expected malformed output, got %v", err)
	}
	var empty *EmptyContentError
	if !errors.As(err, &empty) || empty.FinishReason != "content_filter" || empty.Refusal != "no" {
		t.Fatalf("expected EmptyContentError with details, got %#v", err)
	}
}

func TestClientStatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
		marker    error
	}{
		{http.StatusTooManyRequests, true, services.ErrTransient},
		{http.StatusServiceUnavailable, true, services.ErrTransient},
		{http.StatusUnauthorized, false, services.ErrExternal},
		{http.StatusInternalServerError, false, services.ErrExternal},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "3")
			http.Error(w, `{"error":"nope"}`, tc.status)
		}))
		client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
		_, err := client.Complete(context.Background(), "", "hello")
		server.Close()

		if !errors.Is(err, tc.marker) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.marker, err)
		}
		if got := retry.IsTransient(err); got != tc.transient {
			t.Fatalf("status %d: IsTransient=%v, want %v", tc.status, got, tc.transient)
		}
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.RetryAfter.Seconds() != 3 {
			t.Fatalf("status %d: expected StatusError with Retry-After, got %#v", tc.status, err)
		}
	}
}

func TestClientRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1", Model: "demo"})
	if _, err := client.Complete(context.Background(), "", "hello"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := client.Complete(context.Background(), "", "  "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty prompt, got %v", err)
	}
}

func TestClientDoReturnsImages(t *testing.T) {
	server := completionServer(t, func(req map[string]any) any {
		modalities, _ := req["modalities"].([]any)
		if len(modalities) != 2 {
			t.Errorf("expected modalities, got %v", req["modalities"])
		}
		messages := req["messages"].([]any)
		parts := messages[0].(map[string]any)["content"].([]any)
		if parts[1].(map[string]any)["type"] != "image_url" {
			t.Errorf("expected image part, got %v", parts[1])
		}
		return map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{
					"content": "",
					"images": []any{
						map[string]any{"type": "image_url", "image_url": map[string]any{"url": "data:image/png;base64,aGk="}},
					},
				}},
			},
		}
	})

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "image-model"})
	resp, err := client.Do(context.Background(), Request{
		Messages: []Message{{
			Role:    "user",
			Content: []ContentPart{TextPart("draw"), ImagePart("https://example.test/ref.png")},
		}},
		Modalities: []string{"image", "text"},
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	images := resp.Images()
	if len(images) != 1 || !strings.HasPrefix(images[0], "data:image/png") {
		t.Fatalf("unexpected images %v", images)
	}
}

func TestDecodeLLMJSON(t *testing.T) {
	var target struct {
		Setting string `json:"setting"`
	}
	if err := DecodeLLMJSON("Sure! ```json\n{\"setting\":\"sea\"}\n```", &target); err != nil {
		t.Fatalf("DecodeLLMJSON: %v", err)
	}
	if err := DecodeLLMJSON("Here you go: {\"setting\":\"sea\"} enjoy", &target); err != nil {
		t.Fatalf("DecodeLLMJSON prose: %v", err)
	}
	if target.Setting != "sea" {
		t.Fatalf("unexpected setting %q", target.Setting)
	}
	if err := DecodeLLMJSON("not json", &target); err == nil {
		t.Fatal("expected error for non-json payload")
	}
}
