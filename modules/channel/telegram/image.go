package telegram

import (
	"context"
	"errors"

	"github.com/flemzord/tgpt/internal/channel"
	"github.com/flemzord/tgpt/internal/provider"
)

// errNoImages is reported when the backend cannot render pictures.
var errNoImages = errors.New("telegram: provider does not generate images")

// handleImage renders the prompt after /image and sends the picture.
func (b *Bot) handleImage(ctx context.Context, req *Request) error {
	prompt := req.Message.CommandArgs()
	if prompt == "" {
		_, err := b.reply(ctx, req, b.text.ImageNoPrompt)
		return err
	}
	b.logger.Info("telegram: generating image", "user_id", req.UserID())

	err := channel.WithIndicator(ctx, channel.DefaultIndicatorInterval, b.chatAction(req, "upload_photo"), func(ctx context.Context) error {
		gen, ok := b.llm.(provider.ImageGenerator)
		if !ok {
			return errNoImages
		}
		img, err := gen.GenerateImage(ctx, prompt)
		if err != nil {
			return err
		}
		if _, err := b.client.SendPhoto(ctx, SendPhotoRequest{
			ChatID:           req.ChatID(),
			Photo:            img.URL,
			ReplyToMessageID: b.replyTo(req),
			MessageThreadID:  req.ThreadID(),
		}); err != nil {
			return err
		}
		b.recorder.AddImage(req.UserID(), userName(req.From), img.Size, req.Guest)
		return nil
	})
	if err != nil {
		b.logger.Error("telegram: image generation failed", "user_id", req.UserID(), "error", err)
		_, sendErr := b.client.SendMessage(ctx, SendMessageRequest{
			ChatID:           req.ChatID(),
			Text:             b.text.ImageFail + ": " + err.Error(),
			ReplyToMessageID: b.replyTo(req),
			MessageThreadID:  req.ThreadID(),
		})
		if sendErr != nil {
			b.logger.Warn("telegram: failed to report image failure", "error", sendErr)
		}
	}
	return nil
}
