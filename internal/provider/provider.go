package provider

import (
	"context"
	"io"
)

// Provider answers conversations. Implementations are modules that publish
// themselves as a "provider.<name>" service.
type Provider interface {
	// Complete returns the whole answer at once.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// Stream returns the answer as it is generated. Errors before the
	// first byte are returned directly; later ones arrive as a chunk with
	// Err set. The channel is closed after the last chunk.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// ContextWindowSize is the model's context window in tokens, or zero
	// when unknown.
	ContextWindowSize() int

	ModelName() string
}

// Transcriber is a Provider that also recognizes speech.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (Transcription, error)
}

// ImageGenerator is a Provider that also draws pictures.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (Image, error)
}

// HealthChecker is implemented by providers the gateway can probe.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
