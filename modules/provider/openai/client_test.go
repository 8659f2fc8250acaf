package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flemzord/tgpt/internal/provider"
)

// newTestProvider returns a provisioned-like Provider talking to a test
// server built from routes ("POST /chat/completions" and the like).
func newTestProvider(t *testing.T, routes map[string]http.HandlerFunc) *Provider {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, h := range routes {
		mux.HandleFunc(pattern, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := &Provider{
		config: Config{APIKey: "sk-test", BaseURL: srv.URL},
		logger: slog.New(slog.DiscardHandler),
		client: srv.Client(),
		sleep:  func(context.Context, time.Duration) error { return nil },
		window: 16385,
	}
	p.config.defaults()
	p.streamClient = srv.Client()
	return p
}

func chatRoute(h http.HandlerFunc) map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{"POST /chat/completions": h}
}

// answer is a minimal completion body.
func answer(content string, totalTokens int) string {
	raw, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"total_tokens": totalTokens},
	})
	return string(raw)
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func readChatRequest(t *testing.T, r *http.Request) chatRequest {
	t.Helper()
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Errorf("decode request: %v", err)
	}
	return req
}

func writeSSE(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, ev := range events {
		_, _ = io.WriteString(w, ev+"\n\n")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func ask(text string) provider.CompletionRequest {
	return provider.CompletionRequest{Messages: []provider.Message{{Role: provider.RoleUser, Content: text}}}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, chatRoute(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if req := readChatRequest(t, r); req.Model != "gpt-3.5-turbo" || req.Stream {
			t.Errorf("request = %+v", req)
		}
		_, _ = io.WriteString(w, answer("Hello!", 12))
	}))

	resp, err := p.Complete(t.Context(), ask("Hi"))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Hello!" || resp.FinishReason != provider.FinishReasonStop || resp.Usage.TotalTokens != 12 {
		t.Errorf("response = %+v", resp)
	}
}

func TestComplete_MapsErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limit", http.StatusTooManyRequests, `{"error":{"message":"Rate limit exceeded"}}`, provider.ErrRateLimit},
		{"quota", http.StatusTooManyRequests, `{"error":{"message":"You exceeded your current quota","code":"insufficient_quota"}}`, provider.ErrQuotaExceeded},
		{"context length message", http.StatusBadRequest, `{"error":{"message":"maximum context_length is 4097 tokens"}}`, provider.ErrContextLength},
		{"context length code", http.StatusBadRequest, `{"error":{"message":"too long","code":"context_length_exceeded"}}`, provider.ErrContextLength},
		{"content policy", http.StatusBadRequest, `{"error":{"message":"safety system","code":"content_policy_violation"}}`, provider.ErrContentPolicy},
		{"server error", http.StatusBadGateway, `upstream connect error`, provider.ErrProviderDown},
		{"bad key", http.StatusUnauthorized, `{"error":{"message":"Invalid API key"}}`, errAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := newTestProvider(t, chatRoute(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			p.config.MaxRetries = -1
			if _, err := p.Complete(t.Context(), ask("Hi")); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestComplete_SamplingDefaults(t *testing.T) {
	t.Parallel()

	temp, presence, override := 0.8, 0.1, 0.3
	got := make(chan chatRequest, 1)
	p := newTestProvider(t, chatRoute(func(w http.ResponseWriter, r *http.Request) {
		got <- readChatRequest(t, r)
		_, _ = io.WriteString(w, answer("ok", 1))
	}))
	p.config.Sampling = provider.Sampling{MaxTokens: 1200, Temperature: &temp, PresencePenalty: &presence}

	req := ask("Hi")
	req.PresencePenalty = &override
	if _, err := p.Complete(t.Context(), req); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	sent := <-got
	if sent.MaxTokens != 1200 || *sent.Temperature != temp {
		t.Errorf("configured defaults not sent: %+v", sent.Sampling)
	}
	if *sent.PresencePenalty != override {
		t.Errorf("presence_penalty = %v, want the request's %v", *sent.PresencePenalty, override)
	}
	if sent.FrequencyPenalty != nil || sent.TopP != nil {
		t.Errorf("unset fields sent: %+v", sent.Sampling)
	}
}

func TestComplete_Cancelled(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, chatRoute(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if _, err := p.Complete(ctx, ask("Hi")); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestStream(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, chatRoute(func(w http.ResponseWriter, r *http.Request) {
		if req := readChatRequest(t, r); !req.Stream || req.StreamOptions == nil || !req.StreamOptions.IncludeUsage {
			t.Errorf("stream request = %+v", req)
		}
		writeSSE(w,
			`: keep-alive`,
			`data: {"choices":[{"delta":{"content":"Hel"},"finish_reason":null}]}`,
			`data: {"choices":[{"delta":{"content":"lo"},"finish_reason":null}]}`,
			`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
			`data: {"choices":[],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
			`data: [DONE]`,
		)
	}))

	ch, err := p.Stream(t.Context(), ask("Hi"))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var (
		text  strings.Builder
		final []provider.StreamChunk
	)
	for c := range ch {
		if c.Err != nil {
			t.Fatalf("chunk error: %v", c.Err)
		}
		text.WriteString(c.Content)
		if c.Final() {
			final = append(final, c)
		}
	}
	if text.String() != "Hello" {
		t.Errorf("text = %q, want Hello", text.String())
	}
	if len(final) != 1 || final[0].Usage == nil || final[0].Usage.TotalTokens != 5 {
		t.Errorf("final chunks = %+v, want one with 5 tokens", final)
	}
}

func TestStream_RefusedBeforeFirstByte(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	p := newTestProvider(t, chatRoute(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down"}}`)
	}))

	if _, err := p.Stream(t.Context(), ask("Hi")); !errors.Is(err, provider.ErrRateLimit) {
		t.Errorf("error = %v, want ErrRateLimit", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, streams are not retried", n)
	}
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, map[string]http.HandlerFunc{
		"POST /audio/transcriptions": func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("ParseMultipartForm: %v", err)
				return
			}
			if r.FormValue("model") != "whisper-1" || r.FormValue("response_format") != "verbose_json" {
				t.Errorf("form = %v", r.MultipartForm.Value)
			}
			f, hdr, err := r.FormFile("file")
			if err != nil {
				t.Errorf("FormFile: %v", err)
				return
			}
			defer func() { _ = f.Close() }()
			data, _ := io.ReadAll(f)
			if hdr.Filename != "voice.mp3" || string(data) != "audio-bytes" {
				t.Errorf("file = %q %q", hdr.Filename, data)
			}
			writeJSON(t, w, transcriptionResponse{Text: " hello there \n", Language: "english", Duration: 2.5})
		},
	})

	tr, err := p.Transcribe(t.Context(), "/tmp/x/voice.mp3", strings.NewReader("audio-bytes"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	want := provider.Transcription{Text: "hello there", Language: "english", Duration: 2.5}
	if tr != want {
		t.Errorf("transcription = %+v, want %+v", tr, want)
	}
}

func TestGenerateImage(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		body    string
		wantURL string
		wantErr error
	}{
		"url":     {`{"data":[{"url":"https://img.example/cat.png"}]}`, "https://img.example/cat.png", nil},
		"no data": {`{"data":[]}`, "", provider.ErrProviderDown},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			p := newTestProvider(t, map[string]http.HandlerFunc{
				"POST /images/generations": func(w http.ResponseWriter, r *http.Request) {
					var req imageRequest
					if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
						t.Errorf("decode: %v", err)
					}
					if req.Prompt != "a cat" || req.N != 1 || req.Size != "512x512" {
						t.Errorf("request = %+v", req)
					}
					_, _ = io.WriteString(w, tt.body)
				},
			})

			img, err := p.GenerateImage(t.Context(), "a cat")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if img.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", img.URL, tt.wantURL)
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, chatRoute(func(w http.ResponseWriter, r *http.Request) {
		if req := readChatRequest(t, r); req.MaxTokens != 1 {
			t.Errorf("max_tokens = %d, want 1", req.MaxTokens)
		}
		_, _ = io.WriteString(w, answer(".", 2))
	}))
	if err := p.HealthCheck(t.Context()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestResultLabel(t *testing.T) {
	t.Parallel()

	tests := map[string]error{
		"ok":           nil,
		"rate_limited": provider.ErrRateLimit,
		"quota":        mapHTTPError(http.StatusTooManyRequests, []byte(`{"error":{"message":"m","code":"insufficient_quota"}}`)),
		"refused":      provider.ErrContentPolicy,
		"cancelled":    context.Canceled,
		"error":        errors.New("boom"),
	}
	for want, err := range tests {
		if got := resultLabel(err); got != want {
			t.Errorf("resultLabel(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestAPIError(t *testing.T) {
	t.Parallel()

	err := mapHTTPError(http.StatusTeapot, []byte("short and stout\n"))

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %T is not *APIError", err)
	}
	if apiErr.Status != http.StatusTeapot || apiErr.Message != "short and stout" {
		t.Errorf("APIError = %+v", apiErr)
	}
	if errors.Unwrap(err) != nil {
		t.Errorf("unclassified status unwraps to %v", errors.Unwrap(err))
	}
	if got := err.Error(); got != "openai: HTTP 418: short and stout" {
		t.Errorf("Error() = %q", got)
	}
	if mapHTTPError(http.StatusOK, nil) != nil {
		t.Error("2xx must map to nil")
	}
}
