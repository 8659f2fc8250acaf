package openai

import "github.com/flemzord/tgpt/internal/provider"

// Wire types of the chat completions, transcription and image endpoints.

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	provider.Sampling
	Stop          []string    `json:"stop,omitempty"`
	Stream        bool        `json:"stream,omitempty"`
	StreamOptions *streamOpts `json:"stream_options,omitempty"`
}

type streamOpts struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u chatUsage) tokens() provider.TokenUsage {
	return provider.TokenUsage(u)
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason *string     `json:"finish_reason"`
	} `json:"choices"`
	Usage chatUsage `json:"usage"`
}

// streamEvent is the payload of one "data:" line of a streamed answer.
type streamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage,omitempty"`
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

type transcriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

type imageRequest struct {
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// chatRequestFor builds the body of a completion call. Sampling fields
// left unset by req fall back to the configured ones.
func (p *Provider) chatRequestFor(req provider.CompletionRequest, stream bool) chatRequest {
	msgs := make([]chatMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = chatMessage{Role: string(m.Role), Content: m.Content, Name: m.Name}
	}
	cr := chatRequest{
		Model:    p.config.Model,
		Messages: msgs,
		Sampling: req.Sampling.Over(p.config.Sampling),
		Stop:     req.Stop,
		Stream:   stream,
	}
	if stream {
		cr.StreamOptions = &streamOpts{IncludeUsage: true}
	}
	return cr
}

func (r *chatResponse) completion() provider.CompletionResponse {
	out := provider.CompletionResponse{Usage: r.Usage.tokens()}
	if len(r.Choices) > 0 {
		out.Content = r.Choices[0].Message.Content
		out.FinishReason = finishReason(r.Choices[0].FinishReason)
	}
	return out
}

func finishReason(reason *string) provider.FinishReason {
	if reason == nil {
		return ""
	}
	if *reason == "content_filter" {
		return provider.FinishReasonFiltering
	}
	// "stop" and "length" share their names.
	return provider.FinishReason(*reason)
}
