package telegram

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// floodAttempts bounds the tries of a call that waits out flood control.
	floodAttempts    = 3
	floodBackoff     = time.Second
	maxResponseBytes = 10 << 20

	// maxDownloadBytes is the Bot API getFile limit.
	maxDownloadBytes = 20 << 20
)

// Client calls the Bot API over HTTP. The token is part of every URL, so
// transport errors must only reach logs through the redacting handler.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the API at baseURL. A non-positive
// timeout means one minute, which must exceed the long-poll timeout.
func NewClient(token, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Client{token: token, baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

func (c *Client) methodURL(method string) string {
	return c.baseURL + "/bot" + c.token + "/" + method
}

// do calls method and waits out up to two flood-control answers.
func do[T any](ctx context.Context, c *Client, method string, payload any) (*T, error) {
	return call[T](ctx, c, method, payload, floodAttempts)
}

// once calls method a single time. A flood-control answer comes back as an
// *APIError with RetryAfter set, for callers that pace themselves.
func once[T any](ctx context.Context, c *Client, method string, payload any) (*T, error) {
	return call[T](ctx, c, method, payload, 1)
}

func call[T any](ctx context.Context, c *Client, method string, payload any, attempts int) (*T, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("telegram: encode %s: %w", method, err)
		}
	}

	wait := floodBackoff
	for attempt := 1; ; attempt++ {
		status, raw, err := c.post(ctx, method, body)
		if err != nil {
			return nil, err
		}
		result, apiErr := decodeResponse[T](raw, status)
		if apiErr == nil {
			return result, nil
		}
		if apiErr.Code != http.StatusTooManyRequests || attempt >= attempts {
			return nil, apiErr
		}
		if apiErr.RetryAfter > 0 {
			wait = time.Duration(apiErr.RetryAfter) * time.Second
		}
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
		wait *= 2
	}
}

// post sends one request and returns the status and the capped body.
func (c *Client) post(ctx context.Context, method string, body []byte) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), rd)
	if err != nil {
		return 0, nil, fmt.Errorf("telegram: build %s request: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("telegram: %s request failed: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("telegram: read %s response: %w", method, err)
	}
	return resp.StatusCode, raw, nil
}

// decodeResponse unwraps the Bot API envelope. Anything that is not an ok
// envelope becomes an *APIError, falling back to the HTTP status.
func decodeResponse[T any](raw []byte, status int) (*T, *APIError) {
	var env APIResponse[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &APIError{Code: status, Description: "undecodable response: " + err.Error()}
	}
	if env.OK {
		return &env.Result, nil
	}
	apiErr := &APIError{Code: cmp.Or(env.ErrorCode, status), Description: env.Description}
	if env.Parameters != nil {
		apiErr.RetryAfter = env.Parameters.RetryAfter
	}
	return nil, apiErr
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// GetUpdatesRequest is the request body for the getUpdates method.
type GetUpdatesRequest struct {
	Offset         int      `json:"offset,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Timeout        int      `json:"timeout,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// SetWebhookRequest is the request body for the setWebhook method.
type SetWebhookRequest struct {
	URL            string   `json:"url"`
	SecretToken    string   `json:"secret_token,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
	MaxConnections int      `json:"max_connections,omitempty"`
}

// SendMessageRequest is the request body for the sendMessage method.
type SendMessageRequest struct {
	ChatID                int64                 `json:"chat_id"`
	Text                  string                `json:"text"`
	ParseMode             string                `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool                  `json:"disable_web_page_preview,omitempty"`
	ReplyToMessageID      int                   `json:"reply_to_message_id,omitempty"`
	MessageThreadID       int                   `json:"message_thread_id,omitempty"`
	ReplyMarkup           *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// EditMessageTextRequest is the request body for the editMessageText method.
// Either ChatID and MessageID or InlineMessageID identify the message.
type EditMessageTextRequest struct {
	ChatID                int64                 `json:"chat_id,omitempty"`
	MessageID             int                   `json:"message_id,omitempty"`
	InlineMessageID       string                `json:"inline_message_id,omitempty"`
	Text                  string                `json:"text"`
	ParseMode             string                `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool                  `json:"disable_web_page_preview,omitempty"`
	ReplyMarkup           *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// SendPhotoRequest is the request body for the sendPhoto method.
type SendPhotoRequest struct {
	ChatID           int64  `json:"chat_id"`
	Photo            string `json:"photo"`
	Caption          string `json:"caption,omitempty"`
	ReplyToMessageID int    `json:"reply_to_message_id,omitempty"`
	MessageThreadID  int    `json:"message_thread_id,omitempty"`
}

// AnswerInlineQueryRequest is the request body for the answerInlineQuery method.
type AnswerInlineQueryRequest struct {
	InlineQueryID string                     `json:"inline_query_id"`
	Results       []InlineQueryResultArticle `json:"results"`
	CacheTime     int                        `json:"cache_time"`
	IsPersonal    bool                       `json:"is_personal,omitempty"`
}

// AnswerCallbackQueryRequest is the request body for the answerCallbackQuery method.
type AnswerCallbackQueryRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
}

// SetMyCommandsRequest is the request body for the setMyCommands method.
type SetMyCommandsRequest struct {
	Commands []BotCommand    `json:"commands"`
	Scope    BotCommandScope `json:"scope"`
}

// sendChatActionRequest is the request body for the sendChatAction method.
type sendChatActionRequest struct {
	ChatID          int64  `json:"chat_id"`
	Action          string `json:"action"`
	MessageThreadID int    `json:"message_thread_id,omitempty"`
}

// getFileRequest is the request body for the getFile method.
type getFileRequest struct {
	FileID string `json:"file_id"`
}

// getChatMemberRequest is the request body for the getChatMember method.
type getChatMemberRequest struct {
	ChatID string `json:"chat_id"` // numeric id or @channelusername
	UserID int64  `json:"user_id"`
}

// GetMe returns the bot's user information.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	return do[User](ctx, c, "getMe", nil)
}

// GetUpdates fetches incoming updates using long polling.
// A 429 is returned as an *APIError carrying RetryAfter; the poller waits.
func (c *Client) GetUpdates(ctx context.Context, req GetUpdatesRequest) ([]Update, error) {
	result, err := once[[]Update](ctx, c, "getUpdates", req)
	if err != nil {
		return nil, err
	}
	return *result, nil
}

// SetWebhook configures the webhook URL for receiving updates.
func (c *Client) SetWebhook(ctx context.Context, req SetWebhookRequest) error {
	_, err := do[bool](ctx, c, "setWebhook", req)
	return err
}

// DeleteWebhook removes the current webhook integration.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := do[bool](ctx, c, "deleteWebhook", nil)
	return err
}

// SendMessage sends a text message to the specified chat.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	return do[Message](ctx, c, "sendMessage", req)
}

// EditMessageText edits the text of a previously sent message.
func (c *Client) EditMessageText(ctx context.Context, req EditMessageTextRequest) error {
	// Inline message edits return true instead of the message.
	_, err := do[json.RawMessage](ctx, c, "editMessageText", req)
	return err
}

// SendPhoto sends a photo, by URL or file id, to the specified chat.
func (c *Client) SendPhoto(ctx context.Context, req SendPhotoRequest) (*Message, error) {
	return do[Message](ctx, c, "sendPhoto", req)
}

// SendChatAction sends a chat action (e.g., "typing") to the specified chat.
func (c *Client) SendChatAction(ctx context.Context, chatID int64, threadID int, action string) error {
	_, err := do[bool](ctx, c, "sendChatAction", sendChatActionRequest{
		ChatID:          chatID,
		Action:          action,
		MessageThreadID: threadID,
	})
	return err
}

// GetFile retrieves basic info about a file and prepares it for downloading.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	return do[File](ctx, c, "getFile", getFileRequest{FileID: fileID})
}

// GetChatMember returns a user's membership in a chat. chatID is a numeric
// id or a public @username.
func (c *Client) GetChatMember(ctx context.Context, chatID string, userID int64) (*ChatMember, error) {
	return do[ChatMember](ctx, c, "getChatMember", getChatMemberRequest{ChatID: chatID, UserID: userID})
}

// AnswerInlineQuery sends the results of an inline query.
func (c *Client) AnswerInlineQuery(ctx context.Context, req AnswerInlineQueryRequest) error {
	_, err := do[bool](ctx, c, "answerInlineQuery", req)
	return err
}

// AnswerCallbackQuery acknowledges a keyboard button press.
func (c *Client) AnswerCallbackQuery(ctx context.Context, req AnswerCallbackQueryRequest) error {
	_, err := do[bool](ctx, c, "answerCallbackQuery", req)
	return err
}

// SetMyCommands replaces the command menu for a scope.
func (c *Client) SetMyCommands(ctx context.Context, req SetMyCommandsRequest) error {
	_, err := do[bool](ctx, c, "setMyCommands", req)
	return err
}

// FileURL returns the download URL for a file path returned by GetFile.
func (c *Client) FileURL(filePath string) string {
	return fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, filePath)
}

// Download copies the file at filePath into w and returns the number of
// bytes written.
func (c *Client) Download(ctx context.Context, filePath string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.FileURL(filePath), nil)
	if err != nil {
		return 0, fmt.Errorf("telegram: create download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("telegram: download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, &APIError{Code: resp.StatusCode, Description: "file download failed"}
	}
	n, err := io.Copy(w, io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return n, fmt.Errorf("telegram: read download: %w", err)
	}
	if n > maxDownloadBytes {
		return n, ErrFileTooLarge
	}
	return n, nil
}
