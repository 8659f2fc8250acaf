package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/flemzord/tgpt/internal/relay"
)

// maxTextLength is the Bot API limit on message text. Inline answers are
// never chunked and are cut to it.
const maxTextLength = 4096

// Compile-time interface guards.
var (
	_ relay.Sender = (*chatSender)(nil)
	_ relay.Sender = (*inlineSender)(nil)
)

// chatSender writes relay output as regular messages in one chat. The
// first created message replies to replyTo; later ones do not.
type chatSender struct {
	client   *Client
	chatID   int64
	threadID int
	replyTo  int
	markdown bool
}

func (s *chatSender) Create(ctx context.Context, text string, final bool) (relay.MessageID, error) {
	req := SendMessageRequest{
		ChatID:           s.chatID,
		Text:             text,
		ReplyToMessageID: s.replyTo,
		MessageThreadID:  s.threadID,
	}

	var msg *Message
	err := s.withFormatting(final, text, func(body, parseMode string) error {
		req.Text, req.ParseMode = body, parseMode
		var err error
		msg, err = once[Message](ctx, s.client, "sendMessage", req)
		return err
	})
	if err != nil {
		return "", classify(err)
	}
	s.replyTo = 0
	return relay.MessageID(strconv.Itoa(msg.MessageID)), nil
}

func (s *chatSender) Edit(ctx context.Context, id relay.MessageID, text string, final bool) error {
	messageID, err := strconv.Atoi(string(id))
	if err != nil {
		return fmt.Errorf("telegram: invalid message id %q: %w", id, err)
	}
	req := EditMessageTextRequest{ChatID: s.chatID, MessageID: messageID}
	err = s.withFormatting(final, text, func(body, parseMode string) error {
		req.Text, req.ParseMode = body, parseMode
		_, err := once[json.RawMessage](ctx, s.client, "editMessageText", req)
		return err
	})
	return classify(err)
}

// withFormatting sends the final text as MarkdownV2 and falls back to
// plain text when escaping outgrows the length limit or Telegram rejects
// the formatted body.
func (s *chatSender) withFormatting(final bool, text string, send func(body, parseMode string) error) error {
	if !final || !s.markdown {
		return send(text, "")
	}
	formatted := FormatMarkdownV2(text)
	if utf8.RuneCountInString(formatted) > maxTextLength {
		return send(text, "")
	}
	err := send(formatted, ParseModeMarkdownV2)
	if isFormattingRejected(err) {
		return send(text, "")
	}
	return err
}

// inlineSender writes relay output into a message sent via inline mode.
// The message already exists, so Create edits it too.
type inlineSender struct {
	client          *Client
	inlineMessageID string
	query           string
	answerLabel     string
}

func (s *inlineSender) Create(ctx context.Context, text string, final bool) (relay.MessageID, error) {
	if err := s.Edit(ctx, relay.MessageID(s.inlineMessageID), text, final); err != nil {
		return "", err
	}
	return relay.MessageID(s.inlineMessageID), nil
}

func (s *inlineSender) Edit(ctx context.Context, _ relay.MessageID, text string, final bool) error {
	req := EditMessageTextRequest{InlineMessageID: s.inlineMessageID}

	if final {
		req.Text = truncate(inlineMarkdown(s.query, s.answerLabel, text), maxTextLength)
		req.ParseMode = ParseModeMarkdownV2
		_, err := once[json.RawMessage](ctx, s.client, "editMessageText", req)
		if !isFormattingRejected(err) {
			return classify(err)
		}
	}

	req.Text = truncate(inlinePlain(s.query, s.answerLabel, text), maxTextLength)
	req.ParseMode = ""
	_, err := once[json.RawMessage](ctx, s.client, "editMessageText", req)
	return classify(err)
}

// inlinePlain renders "query\n\nAnswer:\ncontent".
func inlinePlain(query, answerLabel, content string) string {
	return query + "\n\n" + answerLabel + ":\n" + content
}

// inlineMarkdown renders the same layout with the label in italics.
func inlineMarkdown(query, answerLabel, content string) string {
	return EscapeMarkdownV2(query) + "\n\n_" + EscapeMarkdownV2(answerLabel) + ":_\n" + FormatMarkdownV2(content)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
