package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/flemzord/tgpt/internal/provider"
	"github.com/flemzord/tgpt/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// maxAudioSize is the upload limit of the transcription endpoint.
const maxAudioSize = 25 * 1024 * 1024

// Transcribe sends audio to the transcription endpoint. filename only
// tells the API the container format.
func (p *Provider) Transcribe(ctx context.Context, filename string, audio io.Reader) (tr provider.Transcription, err error) {
	ctx, span := telemetry.StartSpan(ctx, "openai.transcribe",
		attribute.String("llm.model", p.config.TranscriptionModel))
	defer func() {
		telemetry.EndSpan(span, err)
		observe("transcribe", err)
	}()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err = mw.WriteField("model", p.config.TranscriptionModel); err != nil {
		return tr, fmt.Errorf("openai: build transcription form: %w", err)
	}
	if err = mw.WriteField("response_format", "verbose_json"); err != nil {
		return tr, fmt.Errorf("openai: build transcription form: %w", err)
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return tr, fmt.Errorf("openai: build transcription form: %w", err)
	}
	n, err := io.Copy(fw, io.LimitReader(audio, maxAudioSize+1))
	if err != nil {
		return tr, fmt.Errorf("openai: read audio: %w", err)
	}
	if n > maxAudioSize {
		err = fmt.Errorf("openai: audio larger than %d bytes", maxAudioSize)
		return tr, err
	}
	if err = mw.Close(); err != nil {
		return tr, fmt.Errorf("openai: build transcription form: %w", err)
	}

	form := buf.Bytes()
	body, err := p.send(ctx, func(ctx context.Context) (*http.Request, error) {
		return p.request(ctx, "/audio/transcriptions", mw.FormDataContentType(), form)
	})
	if err != nil {
		return tr, err
	}

	var resp transcriptionResponse
	if err = json.Unmarshal(body, &resp); err != nil {
		err = fmt.Errorf("openai: unmarshal transcription: %w", err)
		return tr, err
	}
	return provider.Transcription{
		Text:     strings.TrimSpace(resp.Text),
		Language: resp.Language,
		Duration: resp.Duration,
	}, nil
}

// GenerateImage renders one picture of the configured size.
func (p *Provider) GenerateImage(ctx context.Context, prompt string) (img provider.Image, err error) {
	ctx, span := telemetry.StartSpan(ctx, "openai.image",
		attribute.String("image.size", p.config.ImageSize))
	defer func() {
		telemetry.EndSpan(span, err)
		observe("image", err)
	}()

	body, err := p.postJSON(ctx, "/images/generations", imageRequest{
		Model:  p.config.ImageModel,
		Prompt: prompt,
		N:      1,
		Size:   p.config.ImageSize,
	})
	if err != nil {
		return img, err
	}

	var resp imageResponse
	if err = json.Unmarshal(body, &resp); err != nil {
		err = fmt.Errorf("openai: unmarshal image response: %w", err)
		return img, err
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		err = fmt.Errorf("%w: image response without url", provider.ErrProviderDown)
		return img, err
	}
	return provider.Image{URL: resp.Data[0].URL, Size: p.config.ImageSize}, nil
}
