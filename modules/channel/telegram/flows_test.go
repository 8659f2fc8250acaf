package telegram

import (
	"context"
	"strings"
	"testing"
)

func send(t *testing.T, b *Bot, u *Update) {
	t.Helper()
	if err := b.HandleUpdate(context.Background(), u); err != nil {
		t.Fatalf("HandleUpdate() error: %v", err)
	}
}

func lastText(t *testing.T, api *fakeAPI) string {
	t.Helper()
	texts := api.sentTexts()
	if len(texts) == 0 {
		t.Fatal("no messages sent")
	}
	return texts[len(texts)-1]
}

func TestRateDialogFlow(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	llm := helloStream()
	b := newTestBot(t, api, llm, nil)
	b.transcripts.Set("100:100", "hello, how can I help you")

	send(t, b, callback(100, 100, callbackRateDialog))
	if got := lastText(t, api); got != b.text.AskSeller {
		t.Fatalf("reply = %q, want %q", got, b.text.AskSeller)
	}
	if flow, state, ok := b.flows.Active("100:100"); !ok || flow != flowRateDialog || state != stateAskSeller {
		t.Fatalf("Active() = %q, %d, %v", flow, state, ok)
	}

	send(t, b, privateText(100, "Bob"))
	if got := lastText(t, api); got != b.text.AskClient {
		t.Fatalf("reply = %q, want %q", got, b.text.AskClient)
	}

	send(t, b, privateText(100, "Carol"))
	if _, _, ok := b.flows.Active("100:100"); ok {
		t.Error("conversation should end after the rating")
	}

	prompt := lastUserMessage(t, llm)
	for _, want := range []string{"hello, how can I help you", "Bob", "Carol"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("rating prompt is missing %q:\n%s", want, prompt)
		}
	}
	if msgs := b.history.Messages("100"); len(msgs) > 1 {
		t.Errorf("chat history = %+v, the rating must not leak into it", msgs)
	}
	if got := b.recorder.Snapshot("100").TokensToday; got != 42 {
		t.Errorf("TokensToday = %d, want 42", got)
	}
	texts := api.sentTexts()
	if !containsText(texts, b.text.RequestSent) || !containsText(texts, "Hello") {
		t.Errorf("sent = %q, want the ack and the rating", texts)
	}
}

func TestRateDialogWithoutTranscript(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	b := newTestBot(t, api, helloStream(), nil)

	send(t, b, callback(100, 100, callbackRateDialog))
	if got := lastText(t, api); got != b.text.NoTranscript {
		t.Errorf("reply = %q, want %q", got, b.text.NoTranscript)
	}
	if _, _, ok := b.flows.Active("100:100"); ok {
		t.Error("no conversation should start without a transcript")
	}
}

func TestRateDialogRespectsBudget(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	llm := helloStream()
	b := newTestBot(t, api, llm, func(c *Config) {
		c.AllowedUserIDs = "100"
		c.UserBudgets = "0.01"
	})
	b.recorder.AddChatTokens("100", "alice", 10000, false)
	b.transcripts.Set("100:100", "transcript")

	send(t, b, callback(100, 100, callbackRateDialog))
	send(t, b, privateText(100, "Bob"))
	send(t, b, privateText(100, "Carol"))

	if llm.StreamCalls != 0 {
		t.Errorf("StreamCalls = %d, want 0 over budget", llm.StreamCalls)
	}
	if got := lastText(t, api); got != b.text.BudgetLimit {
		t.Errorf("reply = %q, want %q", got, b.text.BudgetLimit)
	}
}

func TestOnboardingFlow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		age       string
		wantReply string
	}{
		{name: "adult", age: "30", wantReply: "OnboardDone"},
		{name: "minor", age: "15", wantReply: "OnboardTooYoung"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := newFakeAPI(t)
			b := newTestBot(t, api, helloStream(), nil)

			send(t, b, privateText(100, "/onboard"))
			if got := lastText(t, api); got != b.text.OnboardAskName {
				t.Fatalf("reply = %q, want %q", got, b.text.OnboardAskName)
			}
			send(t, b, privateText(100, "Alice"))
			if got := lastText(t, api); !strings.Contains(got, "Alice") {
				t.Fatalf("reply = %q, want the age question with the name", got)
			}
			send(t, b, privateText(100, "old enough"))
			if got := lastText(t, api); got != b.text.OnboardBadAge {
				t.Fatalf("reply = %q, want %q", got, b.text.OnboardBadAge)
			}
			send(t, b, privateText(100, tt.age))

			want := map[string]string{
				"OnboardDone":     b.text.OnboardDone,
				"OnboardTooYoung": b.text.OnboardTooYoung,
			}[tt.wantReply]
			if got := lastText(t, api); got != want {
				t.Errorf("reply = %q, want %q", got, want)
			}
			if _, _, ok := b.flows.Active("100:100"); ok {
				t.Error("conversation should have ended")
			}
		})
	}
}

func TestFlowCancel(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	llm := helloStream()
	b := newTestBot(t, api, llm, nil)

	send(t, b, privateText(100, "/onboard"))
	send(t, b, privateText(100, "/cancel"))
	if got := lastText(t, api); got != b.text.ResetDone {
		t.Errorf("reply = %q, want %q", got, b.text.ResetDone)
	}
	if _, _, ok := b.flows.Active("100:100"); ok {
		t.Fatal("conversation should be cancelled")
	}

	send(t, b, privateText(100, "hello"))
	if llm.StreamCalls != 1 {
		t.Errorf("StreamCalls = %d, want plain text to reach the model again", llm.StreamCalls)
	}
}

func TestCommandsDuringFlow(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	llm := helloStream()
	b := newTestBot(t, api, llm, nil)

	send(t, b, privateText(100, "/onboard"))
	send(t, b, privateText(100, "/help"))

	if got := lastText(t, api); !strings.Contains(got, b.text.HelpIntro) {
		t.Errorf("reply = %q, want the help text", got)
	}
	if _, state, ok := b.flows.Active("100:100"); !ok || state != stateAskName {
		t.Error("a command should leave the conversation running")
	}
	if llm.StreamCalls != 0 {
		t.Errorf("StreamCalls = %d, want 0 while the conversation runs", llm.StreamCalls)
	}
}

func TestFlowsAreKeyedPerUser(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	llm := helloStream()
	b := newTestBot(t, api, llm, nil)

	send(t, b, groupText(7, -100, "/onboard"))
	send(t, b, groupText(8, -100, "/chat hello from someone else"))

	if llm.StreamCalls != 1 {
		t.Errorf("StreamCalls = %d, want the other member's prompt answered", llm.StreamCalls)
	}
	if _, _, ok := b.flows.Active("-100:7"); !ok {
		t.Error("the first member's conversation should still run")
	}
}

func containsText(texts []string, want string) bool {
	for _, s := range texts {
		if s == want {
			return true
		}
	}
	return false
}
