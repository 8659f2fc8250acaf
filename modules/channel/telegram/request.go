package telegram

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// minInlineQuery is the shortest inline query the bot answers.
const minInlineQuery = 3

// Routes an update can take. The middleware chain decides per route which
// gates apply.
const (
	routeHelp       = "help"
	routeReset      = "reset"
	routeStats      = "stats"
	routeResend     = "resend"
	routeImage      = "image"
	routePrompt     = "prompt"
	routeMedia      = "media"
	routeInline     = "inline"
	routeInlineGPT  = "inline_answer"
	routeTranscript = "transcript"
	routeFlow       = "flow"
	routeIgnore     = "ignore"
)

// Callback data prefixes and values.
const (
	callbackInlinePrefix = "gpt:"
	callbackRateDialog   = "rate_dialog"
	callbackTranscript   = "look_transcribe"
)

// Request is one update on its way through the middleware chain.
type Request struct {
	Update   *Update
	Message  *Message // the message, or the message a callback belongs to
	Inline   *InlineQuery
	Callback *CallbackQuery
	From     *User

	route string

	// Guest is set by the budget gate when the sender spends from the
	// guest pool.
	Guest bool
}

// newRequest wraps u. It returns nil for updates the bot never handles.
func newRequest(u *Update) *Request {
	r := &Request{Update: u}
	switch {
	case u.Message != nil:
		r.Message = u.Message
		r.From = u.Message.From
	case u.InlineQuery != nil:
		r.Inline = u.InlineQuery
		r.From = u.InlineQuery.From
	case u.CallbackQuery != nil:
		r.Callback = u.CallbackQuery
		r.Message = u.CallbackQuery.Message
		r.From = u.CallbackQuery.From
	default:
		return nil
	}
	if r.From == nil {
		return nil
	}
	return r
}

// UserID returns the sender id as a string.
func (r *Request) UserID() string {
	return strconv.FormatInt(r.From.ID, 10)
}

// ChatID returns the chat of the request, or 0 for inline queries and
// callbacks on inline messages.
func (r *Request) ChatID() int64 {
	if r.Message == nil {
		return 0
	}
	return r.Message.Chat.ID
}

// ChatKey identifies the chat in the session stores.
func (r *Request) ChatKey() string {
	return strconv.FormatInt(r.ChatID(), 10)
}

// ConversationKey identifies the (chat, user) pair a conversation belongs to.
func (r *Request) ConversationKey() string {
	return r.ChatKey() + ":" + r.UserID()
}

// IsGroup reports whether the request comes from a group chat.
func (r *Request) IsGroup() bool {
	return r.Message != nil && r.Message.Chat.IsGroup()
}

// IsInline reports whether replies must go through inline mode.
func (r *Request) IsInline() bool {
	return r.Inline != nil || (r.Callback != nil && r.Callback.InlineMessageID != "")
}

// ThreadID returns the forum topic of the message, if any.
func (r *Request) ThreadID() int {
	if r.Message != nil && r.Message.IsTopicMessage {
		return r.Message.MessageThreadID
	}
	return 0
}

// Text returns the message text, or the caption of media messages.
func (r *Request) Text() string {
	if r.Message == nil {
		return ""
	}
	if r.Message.Text != "" {
		return r.Message.Text
	}
	return r.Message.Caption
}

// callbackData returns the data of a callback query.
func (r *Request) callbackData() string {
	if r.Callback == nil {
		return ""
	}
	return r.Callback.Data
}

// classifyRoute picks the route of r. Commands the bot does not know fall
// through to the prompt route, as plain text does.
func classifyRoute(r *Request, imagesEnabled, transcriptionEnabled bool) string {
	switch {
	case r.Inline != nil:
		if utf8.RuneCountInString(r.Inline.Query) < minInlineQuery {
			return routeIgnore
		}
		return routeInline
	case r.Callback != nil:
		data := r.callbackData()
		switch {
		case strings.HasPrefix(data, callbackInlinePrefix):
			return routeInlineGPT
		case data == callbackTranscript:
			return routeTranscript
		case data == callbackRateDialog:
			return routeFlow
		}
		return routeIgnore
	}

	m := r.Message
	switch m.Command() {
	case "help", "start":
		return routeHelp
	case "reset":
		return routeReset
	case "stats":
		return routeStats
	case "resend":
		return routeResend
	case "image":
		if imagesEnabled {
			return routeImage
		}
	case "onboard", "cancel":
		return routeFlow
	}

	switch {
	case m.Audio != nil || m.Voice != nil || m.Video != nil || m.VideoNote != nil:
		if transcriptionEnabled {
			return routeMedia
		}
		return routeIgnore
	case m.ViaBot != nil:
		return routeIgnore
	case r.Text() == "":
		return routeIgnore
	}
	return routePrompt
}
