package telegram

import (
	"context"
	"strings"
)

// inlineThumbnail is the picture shown next to inline results.
const inlineThumbnail = "https://user-images.githubusercontent.com/11541888/223106202-7576ff11-2c8e-408d-94ea-b02a7a32149a.png"

// inlineLength is the relay size ceiling in inline mode. Inline messages
// are never chunked; inlineSender truncates them instead.
const inlineLength = 1 << 20

// handleInlineQuery offers the typed query as a result card whose button
// asks the model.
func (b *Bot) handleInlineQuery(ctx context.Context, req *Request) error {
	query := req.Inline.Query
	id := b.newID()
	b.inline.Set(id, query)

	if err := b.answerInline(ctx, req.Inline.ID, id, query, callbackInlinePrefix+id); err != nil {
		b.logger.Error("telegram: failed to answer inline query", "user_id", req.UserID(), "error", err)
	}
	return nil
}

// answerInline answers an inline query with a single article. A non-empty
// callbackData adds the answer button.
func (b *Bot) answerInline(ctx context.Context, inlineQueryID, resultID, text, callbackData string) error {
	article := InlineQueryResultArticle{
		Type:                "article",
		ID:                  resultID,
		Title:               b.text.AskChatGPT,
		InputMessageContent: InputTextMessage{MessageText: text},
		Description:         text,
		ThumbnailURL:        inlineThumbnail,
	}
	if callbackData != "" {
		article.ReplyMarkup = keyboard(InlineKeyboardButton{
			Text:         "🤖 " + b.text.AnswerWithChatGPT,
			CallbackData: callbackData,
		})
	}
	return b.client.AnswerInlineQuery(ctx, AnswerInlineQueryRequest{
		InlineQueryID: inlineQueryID,
		Results:       []InlineQueryResultArticle{article},
		CacheTime:     0,
	})
}

// handleInlineAnswer answers the query behind a pressed inline button by
// editing the inline message in place.
func (b *Bot) handleInlineAnswer(ctx context.Context, req *Request) error {
	cb := req.Callback
	if err := b.client.AnswerCallbackQuery(ctx, AnswerCallbackQueryRequest{CallbackQueryID: cb.ID}); err != nil {
		b.logger.Debug("telegram: failed to answer callback query", "error", err)
	}

	sender := &inlineSender{
		client:          b.client,
		inlineMessageID: cb.InlineMessageID,
		answerLabel:     b.text.Answer,
	}

	id := strings.TrimPrefix(cb.Data, callbackInlinePrefix)
	query, ok := b.inline.Take(id)
	if !ok {
		b.logger.Info("telegram: inline query expired", "user_id", req.UserID(), "result_id", id)
		if err := sender.Edit(ctx, "", b.text.Error+". "+b.text.TryAgain, true); err != nil {
			b.logger.Warn("telegram: failed to report expired inline query", "error", err)
		}
		return nil
	}
	sender.query = query
	b.logger.Info("telegram: answering inline query", "user_id", req.UserID())

	if !b.cfg.Stream {
		if err := sender.Edit(ctx, "", b.text.Loading, false); err != nil {
			b.logger.Debug("telegram: failed to show loading", "error", err)
		}
	}

	cfg := b.relayCfg
	cfg.IsGroup = false
	cfg.MaxMessageLength = inlineLength

	_, tokens, err := b.ask(ctx, req.UserID(), query, sender, cfg)
	if err != nil {
		b.logger.Error("telegram: inline answer failed", "user_id", req.UserID(), "error", err)
		if err := sender.Edit(ctx, "", b.text.ChatFail+" "+err.Error(), false); err != nil {
			b.logger.Warn("telegram: failed to report inline failure", "error", err)
		}
		return nil
	}

	b.recorder.AddChatTokens(req.UserID(), userName(req.From), tokens, req.Guest)
	return nil
}
