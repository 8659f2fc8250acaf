package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/flemzord/tgpt/internal/channel"
	"github.com/flemzord/tgpt/internal/provider"
	"github.com/flemzord/tgpt/internal/relay"
	"github.com/flemzord/tgpt/internal/session"
)

// estimator sizes exchanges the backend did not report usage for.
const estimator = session.DefaultEstimator

// promptText returns the text of m without a leading bot command.
func promptText(m *Message) string {
	if m == nil {
		return ""
	}
	if m.Command() != "" {
		return m.CommandArgs()
	}
	if m.Text != "" {
		return strings.TrimSpace(m.Text)
	}
	return strings.TrimSpace(m.Caption)
}

// handlePrompt answers a chat prompt. In groups the prompt must start with
// the trigger keyword, come through /chat or reply to the bot.
func (b *Bot) handlePrompt(ctx context.Context, req *Request, prompt string) error {
	m := req.Message
	b.logger.Info("telegram: new message", "user_id", req.UserID(), "chat_id", req.ChatID())
	b.last.Set(req.ChatKey(), prompt)

	if req.IsGroup() {
		var ok bool
		if prompt, ok = b.groupPrompt(m, prompt); !ok {
			b.logger.Debug("telegram: group message without trigger ignored", "chat_id", req.ChatID())
			return nil
		}
	}
	if strings.TrimSpace(prompt) == "" {
		return nil
	}

	cfg := b.relayCfg
	cfg.IsGroup = req.IsGroup()
	sender := &chatSender{
		client:   b.client,
		chatID:   req.ChatID(),
		threadID: req.ThreadID(),
		replyTo:  b.replyTo(req),
		markdown: true,
	}

	var tokens int
	err := channel.WithIndicator(ctx, channel.DefaultIndicatorInterval, b.chatAction(req, "typing"), func(ctx context.Context) error {
		_, n, err := b.ask(ctx, req.ChatKey(), prompt, sender, cfg)
		tokens = n
		return err
	})
	if err != nil {
		b.logger.Error("telegram: chat request failed", "user_id", req.UserID(), "error", err)
		_, sendErr := b.client.SendMessage(ctx, SendMessageRequest{
			ChatID:           req.ChatID(),
			Text:             b.text.ChatFail + " " + err.Error(),
			ReplyToMessageID: b.replyTo(req),
			MessageThreadID:  req.ThreadID(),
		})
		if sendErr != nil {
			b.logger.Warn("telegram: failed to report chat failure", "error", sendErr)
		}
		return nil
	}

	b.recorder.AddChatTokens(req.UserID(), userName(req.From), tokens, req.Guest)
	return nil
}

// groupPrompt applies the group trigger rules to prompt. It reports false
// when the message is not addressed to the bot.
func (b *Bot) groupPrompt(m *Message, prompt string) (string, bool) {
	trigger := b.cfg.GroupTriggerKeyword
	cmd := m.Command()
	triggered := trigger != "" && len(prompt) >= len(trigger) && strings.EqualFold(prompt[:len(trigger)], trigger)

	if !triggered && cmd != "chat" && cmd != "resend" && trigger != "" {
		if m.ReplyToMessage != nil && m.ReplyToMessage.From != nil && m.ReplyToMessage.From.ID == b.me.ID {
			return prompt, true
		}
		return "", false
	}
	if triggered {
		prompt = strings.TrimSpace(prompt[len(trigger):])
	}

	if q := m.ReplyToMessage; q != nil && q.Text != "" && (q.From == nil || q.From.ID != b.me.ID) {
		prompt = `"` + q.Text + `" ` + prompt
	}
	return prompt, true
}

// ask adds prompt to the conversation of key, asks the model and delivers
// the answer through sender. It returns the answer and the tokens the
// exchange cost.
func (b *Bot) ask(ctx context.Context, key, prompt string, sender relay.Sender, cfg relay.Config) (string, int, error) {
	b.history.Append(key, provider.Message{Role: provider.RoleUser, Content: prompt})
	messages := b.history.Messages(key)
	llmReq := provider.CompletionRequest{Messages: messages}

	var (
		answer string
		tokens int
	)
	if b.cfg.Stream {
		streamCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		chunks, err := b.llm.Stream(streamCtx, llmReq)
		if err != nil {
			return "", 0, fmt.Errorf("telegram: starting stream: %w", err)
		}
		res, err := relay.New(sender, cfg).Run(streamCtx, chunks)
		if err != nil {
			return res.Text, 0, fmt.Errorf("telegram: relaying answer: %w", err)
		}
		answer, tokens = res.Text, res.TotalTokens
	} else {
		resp, err := b.llm.Complete(ctx, llmReq)
		if err != nil {
			return "", 0, fmt.Errorf("telegram: completion: %w", err)
		}
		answer, tokens = resp.Content, resp.Usage.TotalTokens
		if err := deliver(ctx, sender, answer, cfg.MaxMessageLength); err != nil {
			return answer, 0, err
		}
	}

	b.history.Append(key, provider.Message{Role: provider.RoleAssistant, Content: answer})
	if tokens <= 0 {
		tokens = session.EstimateMessages(estimator, messages) + estimator.Estimate(answer)
	}
	return answer, tokens, nil
}

// deliver writes a complete answer through sender, split into messages of
// at most maxLen characters.
func deliver(ctx context.Context, sender relay.Sender, text string, maxLen int) error {
	if maxLen <= 0 {
		maxLen = relay.DefaultMaxMessageLength
	}
	for _, chunk := range relay.Chunk(text, maxLen) {
		if _, err := sender.Create(ctx, chunk, true); err != nil {
			return fmt.Errorf("telegram: sending answer: %w", err)
		}
	}
	return nil
}
