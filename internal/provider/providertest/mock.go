// Package providertest holds a scriptable provider for tests of code that
// talks to an LLM backend.
package providertest

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/flemzord/tgpt/internal/provider"
)

// ErrUnscripted is returned by a MockProvider method whose Func is nil.
var ErrUnscripted = errors.New("providertest: no behaviour scripted for this call")

var (
	_ provider.Provider       = (*MockProvider)(nil)
	_ provider.Transcriber    = (*MockProvider)(nil)
	_ provider.ImageGenerator = (*MockProvider)(nil)
)

// MockProvider answers with its Func fields and counts the calls it gets.
// Read the counters only after the code under test is done with it.
type MockProvider struct {
	CompleteFunc      func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	StreamFunc        func(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error)
	TranscribeFunc    func(ctx context.Context, filename string, audio io.Reader) (provider.Transcription, error)
	GenerateImageFunc func(ctx context.Context, prompt string) (provider.Image, error)

	Window int // reported by ContextWindowSize

	mu              sync.Mutex
	CompleteCalls   int
	StreamCalls     int
	TranscribeCalls int
	ImageCalls      int
	Requests        []provider.CompletionRequest
}

func (m *MockProvider) count(n *int, req *provider.CompletionRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*n++
	if req != nil {
		m.Requests = append(m.Requests, *req)
	}
}

func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.count(&m.CompleteCalls, &req)
	if m.CompleteFunc == nil {
		return provider.CompletionResponse{}, ErrUnscripted
	}
	return m.CompleteFunc(ctx, req)
}

func (m *MockProvider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	m.count(&m.StreamCalls, &req)
	if m.StreamFunc == nil {
		return nil, ErrUnscripted
	}
	return m.StreamFunc(ctx, req)
}

func (m *MockProvider) Transcribe(ctx context.Context, filename string, audio io.Reader) (provider.Transcription, error) {
	m.count(&m.TranscribeCalls, nil)
	if m.TranscribeFunc == nil {
		return provider.Transcription{}, ErrUnscripted
	}
	return m.TranscribeFunc(ctx, filename, audio)
}

func (m *MockProvider) GenerateImage(ctx context.Context, prompt string) (provider.Image, error) {
	m.count(&m.ImageCalls, nil)
	if m.GenerateImageFunc == nil {
		return provider.Image{}, ErrUnscripted
	}
	return m.GenerateImageFunc(ctx, prompt)
}

func (m *MockProvider) ContextWindowSize() int { return m.Window }

func (m *MockProvider) ModelName() string { return "mock-model" }

// LastRequest returns the latest request passed to Complete or Stream.
func (m *MockProvider) LastRequest() (provider.CompletionRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.Requests); n > 0 {
		return m.Requests[n-1], true
	}
	return provider.CompletionRequest{}, false
}

// StreamOf returns a closed channel holding chunks, for StreamFunc.
func StreamOf(chunks ...provider.StreamChunk) <-chan provider.StreamChunk {
	ch := make(chan provider.StreamChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}
