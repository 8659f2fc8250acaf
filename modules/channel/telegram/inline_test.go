package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/flemzord/tgpt/internal/channel"
)

func inlineQuery(userID int64, query string) *Update {
	return &Update{
		UpdateID:    3,
		InlineQuery: &InlineQuery{ID: "q-1", From: &User{ID: userID, FirstName: "Alice"}, Query: query},
	}
}

func inlineCallback(userID int64, data string) *Update {
	return &Update{
		UpdateID: 4,
		CallbackQuery: &CallbackQuery{
			ID:              "cb-9",
			From:            &User{ID: userID, FirstName: "Alice"},
			InlineMessageID: "im-1",
			Data:            data,
		},
	}
}

func TestInlineQueryOffersAnswerButton(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	b := newTestBot(t, api, helloStream(), nil)

	if err := b.HandleUpdate(context.Background(), inlineQuery(100, "what is go")); err != nil {
		t.Fatalf("HandleUpdate() error: %v", err)
	}

	calls := api.callsTo("answerInlineQuery")
	if len(calls) != 1 {
		t.Fatalf("answerInlineQuery calls = %d, want 1", len(calls))
	}
	req := decodeCall[AnswerInlineQueryRequest](t, calls[0])
	if req.InlineQueryID != "q-1" || len(req.Results) != 1 {
		t.Fatalf("answer = %+v", req)
	}
	res := req.Results[0]
	if res.Title != b.text.AskChatGPT || res.InputMessageContent.MessageText != "what is go" {
		t.Errorf("result = %+v", res)
	}
	if res.ReplyMarkup == nil || res.ReplyMarkup.InlineKeyboard[0][0].CallbackData != "gpt:"+res.ID {
		t.Errorf("result keyboard = %+v, want the answer button", res.ReplyMarkup)
	}
	if q, ok := b.inline.Get(res.ID); !ok || q != "what is go" {
		t.Errorf("stored query = %q, %v", q, ok)
	}
}

func TestInlineAnswerEditsInPlace(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	llm := helloStream()
	b := newTestBot(t, api, llm, nil)
	b.inline.Set("r1", "what is go")

	if err := b.HandleUpdate(context.Background(), inlineCallback(100, "gpt:r1")); err != nil {
		t.Fatalf("HandleUpdate() error: %v", err)
	}

	if len(api.callsTo("answerCallbackQuery")) != 1 {
		t.Error("the callback query should be answered")
	}
	if len(api.callsTo("sendMessage")) != 0 {
		t.Error("inline answers must not send chat messages")
	}
	edits := api.callsTo("editMessageText")
	if len(edits) < 2 {
		t.Fatalf("editMessageText calls = %d, want the first text and the final edit", len(edits))
	}
	for _, body := range edits {
		if e := decodeCall[EditMessageTextRequest](t, body); e.InlineMessageID != "im-1" || e.ChatID != 0 {
			t.Errorf("edit target = %q/%d, want inline message im-1", e.InlineMessageID, e.ChatID)
		}
	}
	final := decodeCall[EditMessageTextRequest](t, edits[len(edits)-1])
	if final.ParseMode != ParseModeMarkdownV2 || !strings.Contains(final.Text, "_"+b.text.Answer+":_") || !strings.HasSuffix(final.Text, "Hello world") {
		t.Errorf("final edit = %q (%q)", final.Text, final.ParseMode)
	}
	if _, ok := b.inline.Get("r1"); ok {
		t.Error("answered query should be consumed")
	}
	if got := b.recorder.Snapshot("100").TokensToday; got != 42 {
		t.Errorf("TokensToday = %d, want 42", got)
	}
}

func TestInlineAnswerExpired(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	llm := helloStream()
	b := newTestBot(t, api, llm, nil)

	if err := b.HandleUpdate(context.Background(), inlineCallback(100, "gpt:missing")); err != nil {
		t.Fatalf("HandleUpdate() error: %v", err)
	}
	if llm.StreamCalls != 0 {
		t.Errorf("StreamCalls = %d, want 0", llm.StreamCalls)
	}
	edits := api.callsTo("editMessageText")
	if len(edits) != 1 {
		t.Fatalf("editMessageText calls = %d, want 1", len(edits))
	}
	if e := decodeCall[EditMessageTextRequest](t, edits[0]); !strings.Contains(e.Text, b.text.Error) {
		t.Errorf("edit = %q, want the error notice", e.Text)
	}
}

func TestInlineAnswerNonStreamingShowsLoading(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	b := newTestBot(t, api, completeLLM("Hi there"), func(c *Config) { c.Stream = false })
	b.inline.Set("r1", "hello bot")

	if err := b.HandleUpdate(context.Background(), inlineCallback(100, "gpt:r1")); err != nil {
		t.Fatalf("HandleUpdate() error: %v", err)
	}
	edits := api.callsTo("editMessageText")
	if len(edits) != 2 {
		t.Fatalf("editMessageText calls = %d, want loading then answer", len(edits))
	}
	if e := decodeCall[EditMessageTextRequest](t, edits[0]); !strings.HasSuffix(e.Text, b.text.Loading) {
		t.Errorf("first edit = %q, want %q", e.Text, b.text.Loading)
	}
	if e := decodeCall[EditMessageTextRequest](t, edits[1]); !strings.HasSuffix(e.Text, "Hi there") {
		t.Errorf("second edit = %q, want the answer", e.Text)
	}
}

func TestInlineDisallowedAnswersWithNotice(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	b := newTestBot(t, api, helloStream(), func(c *Config) { c.AllowedUserIDs = "1" })

	err := b.HandleUpdate(context.Background(), inlineQuery(100, "what is go"))
	if !errors.Is(err, channel.ErrDenied) {
		t.Fatalf("HandleUpdate() error = %v, want ErrDenied", err)
	}
	calls := api.callsTo("answerInlineQuery")
	if len(calls) != 1 {
		t.Fatalf("answerInlineQuery calls = %d, want 1", len(calls))
	}
	res := decodeCall[AnswerInlineQueryRequest](t, calls[0]).Results[0]
	if res.Description != b.text.Disallowed || res.ReplyMarkup != nil {
		t.Errorf("result = %+v, want the notice without a button", res)
	}
}

func TestInlineSenderTruncates(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	s := &inlineSender{client: api.client(), inlineMessageID: "im", query: "q", answerLabel: "Answer"}

	if err := s.Edit(context.Background(), "", strings.Repeat("x", 5000), false); err != nil {
		t.Fatalf("Edit() error: %v", err)
	}
	e := decodeCall[EditMessageTextRequest](t, api.callsTo("editMessageText")[0])
	if n := len([]rune(e.Text)); n != maxTextLength {
		t.Errorf("edit length = %d, want %d", n, maxTextLength)
	}
}
