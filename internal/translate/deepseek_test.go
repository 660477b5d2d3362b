package translate_test

// Notes:
// - DeepSeek is exercised against an httptest.Server speaking its wire
//   format; the base URL option points the client at it.
// - Status-code classification is covered through the server. The exported
//   ClassifyDeepSeekError only sees errors a caller could construct.

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alnah/go-bisub/internal/apierr"
	"github.com/alnah/go-bisub/internal/translate"
)

// ---------------------------------------------------------------------------
// Helpers - DeepSeek mock server
// ---------------------------------------------------------------------------

func deepSeekBody(content string, in, out int) map[string]any {
	return map[string]any{
		"id":    "chatcmpl-test",
		"model": "deepseek-chat",
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     in,
			"completion_tokens": out,
			"total_tokens":      in + out,
		},
	}
}

func deepSeekErrorBody(message, errType, code string) map[string]any {
	return map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    errType,
			"code":    code,
		},
	}
}

type deepSeekCall struct {
	Model    string
	Messages []map[string]string
}

type scriptedResponse struct {
	status int
	body   any
}

// mockDeepSeekServer returns scripted responses in sequence, repeating the
// last one when exhausted.
type mockDeepSeekServer struct {
	*httptest.Server
	mu        sync.Mutex
	calls     []deepSeekCall
	responses []scriptedResponse
	idx       int
}

func newMockDeepSeekServer(t *testing.T) *mockDeepSeekServer {
	t.Helper()
	m := &mockDeepSeekServer{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		call := deepSeekCall{Model: req.Model}
		for _, msg := range req.Messages {
			call.Messages = append(call.Messages, map[string]string{"role": msg.Role, "content": msg.Content})
		}
		m.calls = append(m.calls, call)

		resp := scriptedResponse{status: http.StatusOK, body: deepSeekBody("default", 1, 1)}
		if m.idx < len(m.responses) {
			resp = m.responses[m.idx]
			m.idx++
		} else if len(m.responses) > 0 {
			resp = m.responses[len(m.responses)-1]
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		json.NewEncoder(w).Encode(resp.body)
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *mockDeepSeekServer) add(status int, body any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, scriptedResponse{status, body})
}

func (m *mockDeepSeekServer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockDeepSeekServer) lastCall() deepSeekCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return deepSeekCall{}
	}
	return m.calls[len(m.calls)-1]
}

// mustNewDeepSeek builds a translator against the mock server with fast retries.
func mustNewDeepSeek(t *testing.T, server *mockDeepSeekServer, opts ...translate.DeepSeekOption) *translate.DeepSeekTranslator {
	t.Helper()
	all := append([]translate.DeepSeekOption{
		translate.WithDeepSeekBaseURL(server.URL),
		translate.WithDeepSeekRetryDelays(time.Millisecond, time.Millisecond),
	}, opts...)
	tr, err := translate.NewDeepSeekTranslator("test-key", all...)
	if err != nil {
		t.Fatalf("NewDeepSeekTranslator failed: %v", err)
	}
	return tr
}

// ---------------------------------------------------------------------------
// TestNewDeepSeekTranslator - Constructor validation
// ---------------------------------------------------------------------------

func TestNewDeepSeekTranslator(t *testing.T) {
	t.Parallel()

	t.Run("empty API key returns error", func(t *testing.T) {
		t.Parallel()
		_, err := translate.NewDeepSeekTranslator("")
		if !errors.Is(err, translate.ErrEmptyAPIKey) {
			t.Errorf("err = %v, want ErrEmptyAPIKey", err)
		}
	})

	t.Run("valid API key succeeds", func(t *testing.T) {
		t.Parallel()
		tr, err := translate.NewDeepSeekTranslator("test-key")
		if err != nil || tr == nil {
			t.Fatalf("got (%v, %v), want a translator", tr, err)
		}
		if tr.Model() != "deepseek-chat" {
			t.Errorf("default Model() = %q", tr.Model())
		}
	})

	t.Run("invalid option values are ignored", func(t *testing.T) {
		t.Parallel()
		tr, err := translate.NewDeepSeekTranslator("test-key",
			translate.WithDeepSeekMaxInputTokens(0),
			translate.WithDeepSeekMaxOutputTokens(-1),
			translate.WithDeepSeekMaxRetries(-1),
			translate.WithDeepSeekHTTPTimeout(0),
		)
		if err != nil || tr == nil {
			t.Fatalf("got (%v, %v), want a translator", tr, err)
		}
	})
}

// ---------------------------------------------------------------------------
// TestDeepSeekTranslator_Translate
// ---------------------------------------------------------------------------

func TestDeepSeekTranslator_Translate(t *testing.T) {
	t.Parallel()

	t.Run("returns text and token usage", func(t *testing.T) {
		t.Parallel()
		server := newMockDeepSeekServer(t)
		server.add(http.StatusOK, deepSeekBody("translated", 200, 80))
		tr := mustNewDeepSeek(t, server, translate.WithDeepSeekModel("deepseek-reasoner"))

		res, err := tr.Translate(context.Background(), "the prompt")
		if err != nil {
			t.Fatalf("Translate failed: %v", err)
		}
		if res.Text != "translated" || res.InputTokens != 200 || res.OutputTokens != 80 {
			t.Errorf("result = %+v", res)
		}

		call := server.lastCall()
		if call.Model != "deepseek-reasoner" {
			t.Errorf("request model = %q", call.Model)
		}
		if len(call.Messages) != 1 || call.Messages[0]["role"] != "user" {
			t.Errorf("messages = %+v, want one user message", call.Messages)
		}
	})

	t.Run("retries rate limits", func(t *testing.T) {
		t.Parallel()
		server := newMockDeepSeekServer(t)
		server.add(http.StatusTooManyRequests, deepSeekErrorBody("slow down", "rate_limit", ""))
		server.add(http.StatusOK, deepSeekBody("ok", 1, 1))
		tr := mustNewDeepSeek(t, server, translate.WithDeepSeekMaxRetries(2))

		res, err := tr.Translate(context.Background(), "p")
		if err != nil {
			t.Fatalf("Translate failed: %v", err)
		}
		if res.Text != "ok" || server.callCount() != 2 {
			t.Errorf("result %+v after %d calls", res, server.callCount())
		}
	})

	t.Run("insufficient balance fails fast", func(t *testing.T) {
		t.Parallel()
		server := newMockDeepSeekServer(t)
		server.add(http.StatusPaymentRequired, deepSeekErrorBody("insufficient balance", "billing", ""))
		tr := mustNewDeepSeek(t, server, translate.WithDeepSeekMaxRetries(3))

		_, err := tr.Translate(context.Background(), "p")
		if !errors.Is(err, apierr.ErrQuotaExceeded) {
			t.Fatalf("err = %v, want ErrQuotaExceeded", err)
		}
		if server.callCount() != 1 {
			t.Errorf("calls = %d, want 1", server.callCount())
		}
	})

	t.Run("auth failure fails fast", func(t *testing.T) {
		t.Parallel()
		server := newMockDeepSeekServer(t)
		server.add(http.StatusUnauthorized, deepSeekErrorBody("bad key", "auth", ""))
		tr := mustNewDeepSeek(t, server, translate.WithDeepSeekMaxRetries(3))

		_, err := tr.Translate(context.Background(), "p")
		if !errors.Is(err, apierr.ErrAuthFailed) {
			t.Fatalf("err = %v, want ErrAuthFailed", err)
		}
		if server.callCount() != 1 {
			t.Errorf("calls = %d, want 1", server.callCount())
		}
	})

	t.Run("server errors exhaust the retry budget", func(t *testing.T) {
		t.Parallel()
		server := newMockDeepSeekServer(t)
		server.add(http.StatusInternalServerError, deepSeekErrorBody("boom", "server", ""))
		tr := mustNewDeepSeek(t, server, translate.WithDeepSeekMaxRetries(1))

		_, err := tr.Translate(context.Background(), "p")
		if err == nil {
			t.Fatal("Translate succeeded, want error")
		}
		if server.callCount() != 2 {
			t.Errorf("calls = %d, want 2", server.callCount())
		}
	})

	t.Run("empty choices is an API failure", func(t *testing.T) {
		t.Parallel()
		server := newMockDeepSeekServer(t)
		server.add(http.StatusOK, map[string]any{"id": "x", "choices": []any{}})
		tr := mustNewDeepSeek(t, server, translate.WithDeepSeekMaxRetries(0))

		_, err := tr.Translate(context.Background(), "p")
		if !errors.Is(err, apierr.ErrAPIFailure) {
			t.Fatalf("err = %v, want ErrAPIFailure", err)
		}
	})

	t.Run("oversized prompt short-circuits", func(t *testing.T) {
		t.Parallel()
		server := newMockDeepSeekServer(t)
		tr := mustNewDeepSeek(t, server, translate.WithDeepSeekMaxInputTokens(1))

		_, err := tr.Translate(context.Background(), strings.Repeat("x", 100))
		if !errors.Is(err, translate.ErrPromptTooLong) {
			t.Fatalf("err = %v, want ErrPromptTooLong", err)
		}
		if server.callCount() != 0 {
			t.Errorf("calls = %d, want 0", server.callCount())
		}
	})

	t.Run("context length rejection maps to prompt too long", func(t *testing.T) {
		t.Parallel()
		server := newMockDeepSeekServer(t)
		server.add(http.StatusBadRequest, deepSeekErrorBody("maximum context length exceeded", "invalid_request", ""))
		tr := mustNewDeepSeek(t, server)

		_, err := tr.Translate(context.Background(), "p")
		if !errors.Is(err, translate.ErrPromptTooLong) {
			t.Fatalf("err = %v, want ErrPromptTooLong", err)
		}
	})
}

// ---------------------------------------------------------------------------
// TestClassifyDeepSeekError - Errors a caller can construct
// ---------------------------------------------------------------------------

func TestClassifyDeepSeekError(t *testing.T) {
	t.Parallel()

	t.Run("nil error returns nil", func(t *testing.T) {
		t.Parallel()
		if got := translate.ClassifyDeepSeekError(nil); got != nil {
			t.Errorf("got %v, want nil", got)
		}
	})

	t.Run("context deadline exceeded", func(t *testing.T) {
		t.Parallel()
		got := translate.ClassifyDeepSeekError(context.DeadlineExceeded)
		if !errors.Is(got, apierr.ErrTimeout) {
			t.Errorf("got %v, want ErrTimeout", got)
		}
	})

	t.Run("unknown error passes through", func(t *testing.T) {
		t.Parallel()
		err := errors.New("random")
		if got := translate.ClassifyDeepSeekError(err); !errors.Is(got, err) {
			t.Errorf("got %v, want the original error", got)
		}
	})
}

func TestIsRetryableDeepSeekError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", apierr.ErrRateLimit, true},
		{"timeout", apierr.ErrTimeout, true},
		{"auth failure", apierr.ErrAuthFailed, false},
		{"quota", apierr.ErrQuotaExceeded, false},
		{"prompt too long", translate.ErrPromptTooLong, false},
		{"random", errors.New("nope"), false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := translate.IsRetryableDeepSeekError(tt.err); got != tt.want {
				t.Errorf("IsRetryableDeepSeekError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
