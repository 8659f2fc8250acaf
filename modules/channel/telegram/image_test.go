package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/flemzord/tgpt/internal/provider"
	"github.com/flemzord/tgpt/internal/provider/providertest"
)

func imageLLM(err error) *providertest.MockProvider {
	return &providertest.MockProvider{
		GenerateImageFunc: func(context.Context, string) (provider.Image, error) {
			if err != nil {
				return provider.Image{}, err
			}
			return provider.Image{URL: "https://images.example.com/cat.png", Size: "512x512"}, nil
		},
	}
}

func TestHandleImage(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	llm := imageLLM(nil)
	b := newTestBot(t, api, llm, func(c *Config) {
		c.Prices.ImagePrices = map[string]float64{"512x512": 0.018}
	})

	if err := b.HandleUpdate(context.Background(), privateText(100, "/image a cat")); err != nil {
		t.Fatalf("HandleUpdate() error: %v", err)
	}

	photos := api.callsTo("sendPhoto")
	if len(photos) != 1 {
		t.Fatalf("sendPhoto calls = %d, want 1", len(photos))
	}
	req := decodeCall[SendPhotoRequest](t, photos[0])
	if req.Photo != "https://images.example.com/cat.png" || req.ChatID != 100 {
		t.Errorf("sendPhoto = %+v", req)
	}
	c := b.recorder.Snapshot("100")
	if c.ImagesToday != 1 || c.CostToday != 0.018 {
		t.Errorf("counters = %d images, $%v", c.ImagesToday, c.CostToday)
	}
}

func TestHandleImageWithoutPrompt(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	llm := imageLLM(nil)
	b := newTestBot(t, api, llm, nil)

	if err := b.HandleUpdate(context.Background(), privateText(100, "/image")); err != nil {
		t.Fatalf("HandleUpdate() error: %v", err)
	}
	if texts := api.sentTexts(); len(texts) != 1 || texts[0] != b.text.ImageNoPrompt {
		t.Errorf("sent = %q, want %q", texts, b.text.ImageNoPrompt)
	}
	if llm.ImageCalls != 0 {
		t.Errorf("ImageCalls = %d, want 0", llm.ImageCalls)
	}
}

func TestHandleImageFailure(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	b := newTestBot(t, api, imageLLM(errors.New("content policy")), nil)

	if err := b.HandleUpdate(context.Background(), privateText(100, "/image a cat")); err != nil {
		t.Fatalf("HandleUpdate() error: %v", err)
	}
	texts := api.sentTexts()
	if len(texts) != 1 || !strings.HasPrefix(texts[0], b.text.ImageFail) || !strings.Contains(texts[0], "content policy") {
		t.Errorf("sent = %q, want the failure reported", texts)
	}
	if got := b.recorder.Snapshot("100").ImagesToday; got != 0 {
		t.Errorf("ImagesToday = %d, want 0", got)
	}
}

// chatOnly hides the optional capabilities of a provider.
type chatOnly struct {
	provider.Provider
}

func TestHandleImageUnsupportedProvider(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	b := newTestBot(t, api, chatOnly{helloStream()}, nil)

	if err := b.HandleUpdate(context.Background(), privateText(100, "/image a cat")); err != nil {
		t.Fatalf("HandleUpdate() error: %v", err)
	}
	texts := api.sentTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], errNoImages.Error()) {
		t.Errorf("sent = %q, want %q reported", texts, errNoImages)
	}
}
