package session

import (
	"slices"
	"time"

	"github.com/flemzord/tgpt/internal/provider"
)

// DefaultMaxHistoryTokens caps the estimated size of a conversation.
const DefaultMaxHistoryTokens = 16000

// HistoryConfig configures a History.
type HistoryConfig struct {
	// SystemPrompt opens every new conversation.
	SystemPrompt string

	// MaxTokens caps the estimated prompt size. Oldest non-system messages
	// are dropped first when it is exceeded.
	MaxTokens int

	Estimator Estimator
}

// History stores the conversation of each chat.
type History struct {
	cfg   HistoryConfig
	chats *Store[[]provider.Message]
}

// NewHistory creates an empty History.
func NewHistory(cfg HistoryConfig) *History {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxHistoryTokens
	}
	if cfg.Estimator == nil {
		cfg.Estimator = DefaultEstimator
	}
	return &History{cfg: cfg, chats: NewStore[[]provider.Message]()}
}

// Messages returns a copy of the chat's conversation, starting a new one
// with the system prompt if none exists.
func (h *History) Messages(chatID string) []provider.Message {
	msgs := h.chats.Update(chatID, func(cur []provider.Message, found bool) []provider.Message {
		if !found {
			return h.fresh("")
		}
		return cur
	})
	return slices.Clone(msgs)
}

// Append adds messages to the chat's conversation and trims it to the
// token cap.
func (h *History) Append(chatID string, msgs ...provider.Message) {
	h.chats.Update(chatID, func(cur []provider.Message, found bool) []provider.Message {
		if !found {
			cur = h.fresh("")
		}
		return h.trim(append(slices.Clone(cur), msgs...))
	})
}

// Reset starts the chat's conversation over. A non-empty systemPrompt
// replaces the configured one for this chat.
func (h *History) Reset(chatID, systemPrompt string) {
	h.chats.Set(chatID, h.fresh(systemPrompt))
}

// Stats returns the number of messages and the estimated token size of the
// chat's conversation.
func (h *History) Stats(chatID string) (messages, tokens int) {
	msgs, ok := h.chats.Get(chatID)
	if !ok {
		msgs = h.fresh("")
	}
	return len(msgs), EstimateMessages(h.cfg.Estimator, msgs)
}

// Prune drops conversations idle for longer than maxIdle.
func (h *History) Prune(maxIdle time.Duration) int {
	return h.chats.Prune(maxIdle)
}

func (h *History) fresh(systemPrompt string) []provider.Message {
	if systemPrompt == "" {
		systemPrompt = h.cfg.SystemPrompt
	}
	if systemPrompt == "" {
		return nil
	}
	return []provider.Message{{Role: provider.RoleSystem, Content: systemPrompt}}
}

// trim drops the oldest non-system messages until the conversation fits.
// The newest message is always kept.
func (h *History) trim(msgs []provider.Message) []provider.Message {
	for EstimateMessages(h.cfg.Estimator, msgs) > h.cfg.MaxTokens {
		i := slices.IndexFunc(msgs, func(m provider.Message) bool {
			return m.Role != provider.RoleSystem
		})
		if i < 0 || i == len(msgs)-1 {
			break
		}
		msgs = slices.Delete(msgs, i, i+1)
	}
	return msgs
}
