package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/longregen/cogexec/internal/ports"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	client := NewClient(srv.URL, "test-key", "test-model", 256, 0.0)
	return client, srv.Close
}

func TestService_Complete_PlainText(t *testing.T) {
	client, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		resp := ChatCompletionResponse{
			Choices: []struct {
				Index        int         `json:"index"`
				Message      ChatMessage `json:"message"`
				FinishReason string      `json:"finish_reason"`
			}{{Message: ChatMessage{Role: "assistant", Content: "it is sunny"}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	defer closeFn()

	svc := NewService(client)
	out, err := svc.Complete(context.Background(), "what is the weather", nil)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != "it is sunny" {
		t.Errorf("expected 'it is sunny', got %q", out)
	}
}

func TestService_Complete_WithGrammar_ReturnsToolCallArguments(t *testing.T) {
	client, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		resp := ChatCompletionResponse{
			Choices: []struct {
				Index        int         `json:"index"`
				Message      ChatMessage `json:"message"`
				FinishReason string      `json:"finish_reason"`
			}{{Message: ChatMessage{
				Role: "assistant",
				ToolCalls: []ToolCall{{
					ID:   "call_1",
					Type: "function",
					Function: FunctionCall{
						Name:      "get_weather",
						Arguments: `{"city":"Berlin"}`,
					},
				}},
			}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	defer closeFn()

	svc := NewService(client)
	grammar := &ports.Grammar{ToolName: "get_weather"}
	out, err := svc.Complete(context.Background(), "weather in berlin", grammar)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != `{"city":"Berlin"}` {
		t.Errorf("expected tool call arguments, got %q", out)
	}
}

func TestService_Complete_PropagatesHTTPError(t *testing.T) {
	client, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer closeFn()

	svc := NewService(client)
	if _, err := svc.Complete(context.Background(), "hello", nil); err == nil {
		t.Error("expected error from 500 response")
	}
}
