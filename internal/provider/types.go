package provider

// Role is the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// Sampling tunes generation. Zero MaxTokens and nil pointers leave the
// backend default in place.
type Sampling struct {
	MaxTokens        int      `json:"max_tokens,omitempty" yaml:"max_tokens"`
	Temperature      *float64 `json:"temperature,omitempty" yaml:"temperature"`
	TopP             *float64 `json:"top_p,omitempty" yaml:"top_p"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty" yaml:"presence_penalty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty" yaml:"frequency_penalty"`
}

// Over returns s with every unset field taken from def.
func (s Sampling) Over(def Sampling) Sampling {
	if s.MaxTokens <= 0 {
		s.MaxTokens = def.MaxTokens
	}
	s.Temperature = firstSet(s.Temperature, def.Temperature)
	s.TopP = firstSet(s.TopP, def.TopP)
	s.PresencePenalty = firstSet(s.PresencePenalty, def.PresencePenalty)
	s.FrequencyPenalty = firstSet(s.FrequencyPenalty, def.FrequencyPenalty)
	return s
}

func firstSet(v, def *float64) *float64 {
	if v != nil {
		return v
	}
	return def
}

// CompletionRequest asks for the next assistant turn of Messages.
type CompletionRequest struct {
	Messages []Message
	Sampling
	Stop []string
}

// FinishReason tells why generation stopped.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonFiltering FinishReason = "filtering"
)

// TokenUsage is the token count the backend billed for an exchange.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse is a complete assistant turn.
type CompletionResponse struct {
	Content      string
	FinishReason FinishReason
	Usage        TokenUsage
}

// StreamChunk is one event of a streamed completion. Content holds the
// text added since the previous chunk. Exactly one final chunk, with a
// FinishReason or a Usage, ends a successful stream; a chunk with Err
// ends a failed one.
type StreamChunk struct {
	Content      string
	FinishReason FinishReason
	Usage        *TokenUsage
	Err          error
}

// Final reports whether the chunk ends the stream successfully.
func (c StreamChunk) Final() bool {
	return c.FinishReason != "" || c.Usage != nil
}

// Transcription is the text recognized in a recording.
type Transcription struct {
	Text     string
	Language string
	// Duration in seconds, zero when the backend does not report it.
	Duration float64
}

// Image is a generated picture, reachable at URL.
type Image struct {
	URL  string
	Size string
}
