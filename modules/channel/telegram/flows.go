package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/flemzord/tgpt/internal/channel"
	"github.com/flemzord/tgpt/internal/conversation"
)

// Flow names.
const (
	flowRateDialog = "rate_dialog"
	flowOnboarding = "onboarding"
)

// Rate dialog states.
const (
	stateAskSeller = iota
	stateAskClient
)

// Onboarding states.
const (
	stateAskName = iota
	stateAskAge
)

// adultAge is the youngest age onboarding accepts.
const adultAge = 18

func isCommand(name string) conversation.Match[*Request] {
	return func(r *Request) bool {
		return r.Callback == nil && r.Message.Command() == name
	}
}

func isCallback(data string) conversation.Match[*Request] {
	return func(r *Request) bool {
		return r.callbackData() == data
	}
}

// cancelStep ends any conversation on /cancel.
func (b *Bot) cancelStep(ctx context.Context, req *Request, _ conversation.Data) (int, error) {
	_, err := b.reply(ctx, req, b.text.ResetDone)
	return conversation.End, err
}

// rateDialogFlow asks for the seller and client names, then has the model
// evaluate the sender's last transcript.
func (b *Bot) rateDialogFlow() *conversation.Flow[*Request] {
	start := func(ctx context.Context, req *Request, data conversation.Data) (int, error) {
		if err := b.client.AnswerCallbackQuery(ctx, AnswerCallbackQueryRequest{CallbackQueryID: req.Callback.ID}); err != nil {
			b.logger.Debug("telegram: failed to answer callback query", "error", err)
		}
		transcript, ok := b.transcripts.Get(req.ConversationKey())
		if !ok || transcript == "" {
			_, err := b.reply(ctx, req, b.text.NoTranscript)
			return conversation.End, err
		}
		data["transcript"] = transcript
		_, err := b.reply(ctx, req, b.text.AskSeller)
		return stateAskSeller, err
	}

	return conversation.NewFlow[*Request](flowRateDialog).
		Entry(isCallback(callbackRateDialog), start).
		State(stateAskSeller, func(ctx context.Context, req *Request, data conversation.Data) (int, error) {
			name := strings.TrimSpace(req.Text())
			if name == "" {
				_, err := b.reply(ctx, req, b.text.AskSeller)
				return stateAskSeller, err
			}
			data["seller"] = name
			_, err := b.reply(ctx, req, b.text.AskClient)
			return stateAskClient, err
		}).
		State(stateAskClient, func(ctx context.Context, req *Request, data conversation.Data) (int, error) {
			name := strings.TrimSpace(req.Text())
			if name == "" {
				_, err := b.reply(ctx, req, b.text.AskClient)
				return stateAskClient, err
			}
			if _, err := b.reply(ctx, req, b.text.RequestSent); err != nil {
				b.logger.Warn("telegram: failed to acknowledge rate request", "error", err)
			}
			prompt := fmt.Sprintf(b.cfg.RatePrompt, data["transcript"], data["seller"], name)
			err := b.billable(ctx, req, func(ctx context.Context, r *Request) error {
				return b.rateTranscript(ctx, r, prompt)
			})
			if isRejection(err) {
				err = nil
			}
			return conversation.End, err
		}).
		Fallback(isCommand("cancel"), b.cancelStep).
		Fallback(isCallback(callbackRateDialog), start)
}

// rateTranscript streams the evaluation of prompt into the chat. The
// evaluation runs in its own history so it never leaks into the chat's
// conversation.
func (b *Bot) rateTranscript(ctx context.Context, req *Request, prompt string) error {
	key := "rate:" + req.ConversationKey()
	b.history.Reset(key, "")

	cfg := b.relayCfg
	cfg.IsGroup = req.IsGroup()
	sender := &chatSender{client: b.client, chatID: req.ChatID(), threadID: req.ThreadID(), markdown: true}

	var tokens int
	err := channel.WithIndicator(ctx, channel.DefaultIndicatorInterval, b.chatAction(req, "typing"), func(ctx context.Context) error {
		_, n, err := b.ask(ctx, key, prompt, sender, cfg)
		tokens = n
		return err
	})
	if err != nil {
		b.logger.Error("telegram: rating failed", "user_id", req.UserID(), "error", err)
		if _, sendErr := b.reply(ctx, req, b.text.ChatFail+" "+err.Error()); sendErr != nil {
			b.logger.Warn("telegram: failed to report rating failure", "error", sendErr)
		}
		return nil
	}
	b.recorder.AddChatTokens(req.UserID(), userName(req.From), tokens, req.Guest)
	return nil
}

// onboardingFlow asks for a name and an age and turns away minors.
func (b *Bot) onboardingFlow() *conversation.Flow[*Request] {
	return conversation.NewFlow[*Request](flowOnboarding).
		Entry(isCommand("onboard"), func(ctx context.Context, req *Request, _ conversation.Data) (int, error) {
			_, err := b.reply(ctx, req, b.text.OnboardAskName)
			return stateAskName, err
		}).
		State(stateAskName, func(ctx context.Context, req *Request, data conversation.Data) (int, error) {
			name := strings.TrimSpace(req.Text())
			if name == "" {
				_, err := b.reply(ctx, req, b.text.OnboardAskName)
				return stateAskName, err
			}
			data["name"] = name
			_, err := b.reply(ctx, req, fmt.Sprintf(b.text.OnboardAskAge, name))
			return stateAskAge, err
		}).
		State(stateAskAge, func(ctx context.Context, req *Request, data conversation.Data) (int, error) {
			age, err := strconv.Atoi(strings.TrimSpace(req.Text()))
			if err != nil || age <= 0 {
				_, err := b.reply(ctx, req, b.text.OnboardBadAge)
				return stateAskAge, err
			}
			if age < adultAge {
				_, err := b.reply(ctx, req, b.text.OnboardTooYoung)
				return conversation.End, err
			}
			b.logger.Info("telegram: user onboarded", "user_id", req.UserID(), "name", data["name"], "age", age)
			_, err = b.reply(ctx, req, b.text.OnboardDone)
			return conversation.End, err
		}).
		Fallback(isCommand("cancel"), b.cancelStep)
}
