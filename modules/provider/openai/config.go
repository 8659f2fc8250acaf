package openai

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/flemzord/tgpt/internal/provider"
)

// Config holds the configuration for the OpenAI provider module.
type Config struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`

	// Sampling defaults; a request may override each of them.
	provider.Sampling `yaml:",inline"`

	// ContextWindow overrides the window known for Model.
	ContextWindow int `yaml:"context_window"`

	// MaxRetries bounds retries of rate-limited or failed requests.
	// Zero means the default, a negative value disables retries.
	MaxRetries int `yaml:"max_retries"`

	TranscriptionModel string `yaml:"transcription_model"`

	// An empty ImageModel lets the API pick.
	ImageModel string `yaml:"image_model"`
	ImageSize  string `yaml:"image_size"`
}

func (c *Config) defaults() {
	c.BaseURL = strings.TrimRight(cmp.Or(c.BaseURL, "https://api.openai.com/v1"), "/")
	c.Model = cmp.Or(c.Model, "gpt-3.5-turbo")
	c.Timeout = cmp.Or(c.Timeout, time.Minute)
	c.TranscriptionModel = cmp.Or(c.TranscriptionModel, "whisper-1")
	c.ImageSize = cmp.Or(c.ImageSize, "512x512")
}

var imageSizes = []string{"256x256", "512x512", "1024x1024"}

// validate rejects values the API would refuse on every request.
func (c *Config) validate() error {
	if c.APIKey == "" {
		return errors.New("provider.openai: api_key is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("provider.openai: negative timeout %s", c.Timeout)
	}
	if err := inRange("temperature", c.Temperature, 0, 2); err != nil {
		return err
	}
	if err := inRange("top_p", c.TopP, 0, 1); err != nil {
		return err
	}
	if err := inRange("presence_penalty", c.PresencePenalty, -2, 2); err != nil {
		return err
	}
	if err := inRange("frequency_penalty", c.FrequencyPenalty, -2, 2); err != nil {
		return err
	}
	if !slices.Contains(imageSizes, c.ImageSize) {
		return fmt.Errorf("provider.openai: image_size %q is not one of %s", c.ImageSize, strings.Join(imageSizes, ", "))
	}
	return nil
}

func inRange(name string, v *float64, lo, hi float64) error {
	if v != nil && (*v < lo || *v > hi) {
		return fmt.Errorf("provider.openai: %s %v out of range [%v, %v]", name, *v, lo, hi)
	}
	return nil
}

// modelWindows lists context windows by model name prefix. Dated
// snapshots ("gpt-4o-2024-08-06") match their family.
var modelWindows = []struct {
	prefix string
	tokens int
}{
	{"gpt-3.5-turbo", 16385},
	{"gpt-4-32k", 32768},
	{"gpt-4-turbo", 128000},
	{"gpt-4o", 128000},
	{"gpt-4.1", 1047576},
	{"gpt-4", 8192},
	{"o1", 200000},
	{"o3", 200000},
}

// contextWindow returns the window of model: the longest matching prefix
// wins. Zero means unknown.
func contextWindow(model string) int {
	best, tokens := 0, 0
	for _, w := range modelWindows {
		if strings.HasPrefix(model, w.prefix) && len(w.prefix) > best {
			best, tokens = len(w.prefix), w.tokens
		}
	}
	return tokens
}
