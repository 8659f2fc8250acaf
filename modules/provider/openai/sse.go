package openai

import (
	"bufio"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/flemzord/tgpt/internal/provider"
)

// maxEventSize bounds one server-sent event line.
const maxEventSize = 1 << 20

// streamReader turns the server-sent events of a streamed completion into
// chunks. OpenAI reports the finish reason and the usage in separate
// events; both are held back and sent as the single final chunk.
type streamReader struct {
	ctx    context.Context
	out    chan<- provider.StreamChunk
	finish provider.FinishReason
	usage  *provider.TokenUsage
}

// emit sends c unless ctx is done first.
func (r *streamReader) emit(c provider.StreamChunk) bool {
	select {
	case r.out <- c:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *streamReader) fail(err error) { r.emit(provider.StreamChunk{Err: err}) }

func (r *streamReader) done() {
	r.emit(provider.StreamChunk{
		FinishReason: cmp.Or(r.finish, provider.FinishReasonStop),
		Usage:        r.usage,
	})
}

// event handles one data payload. It returns false once the stream is over.
func (r *streamReader) event(data string) bool {
	if data == "[DONE]" {
		r.done()
		return false
	}
	var ev streamEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		r.fail(fmt.Errorf("openai: decode stream event: %w", err))
		return false
	}
	if ev.Usage != nil {
		u := ev.Usage.tokens()
		r.usage = &u
	}
	for _, choice := range ev.Choices {
		if choice.Delta.Content != "" && !r.emit(provider.StreamChunk{Content: choice.Delta.Content}) {
			return false
		}
		if reason := finishReason(choice.FinishReason); reason != "" {
			r.finish = reason
		}
	}
	return true
}

// readStream forwards the events of body to ch and closes both. A
// successful stream ends with one final chunk, a failed one with a chunk
// carrying Err.
func readStream(ctx context.Context, body io.ReadCloser, ch chan<- provider.StreamChunk) {
	defer close(ch)
	defer func() { _ = body.Close() }()

	// Closing the body is the only way to interrupt a blocked read.
	stop := context.AfterFunc(ctx, func() { _ = body.Close() })
	defer stop()

	r := &streamReader{ctx: ctx, out: ch}
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64<<10), maxEventSize)

	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data:")
		if !ok {
			continue // comments, event names, blank separators
		}
		if data = strings.TrimSpace(data); data == "" {
			continue
		}
		if !r.event(data) {
			return
		}
	}

	switch {
	case ctx.Err() != nil:
		r.fail(ctx.Err())
	case sc.Err() != nil:
		r.fail(mapConnectionError(sc.Err()))
	case r.finish != "":
		// EOF without [DONE] after the model finished.
		r.done()
	default:
		r.fail(fmt.Errorf("%w: stream ended before completion", provider.ErrProviderDown))
	}
}
