package telegram

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/tgpt/internal/provider"
	"github.com/flemzord/tgpt/internal/usage"
)

const testToken = "123:abc"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

// apiCall is one request received by fakeAPI.
type apiCall struct {
	Method string
	Body   []byte
}

// apiHandler answers one Bot API method. A status other than 200 is
// written before resp.
type apiHandler func(body []byte) (status int, resp any)

// fakeAPI is an httptest Bot API that records calls and answers with
// plausible defaults. Handlers override single methods.
type fakeAPI struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	calls    []apiCall
	handlers map[string]apiHandler
	nextID   int
	files    map[string][]byte
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{
		t:        t,
		handlers: make(map[string]apiHandler),
		nextID:   100,
		files:    make(map[string][]byte),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/file/bot"+testToken+"/") {
		f.mu.Lock()
		data, ok := f.files[strings.TrimPrefix(r.URL.Path, "/file/bot"+testToken+"/")]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
		return
	}

	method := strings.TrimPrefix(r.URL.Path, "/bot"+testToken+"/")
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, Body: body})
	h, ok := f.handlers[method]
	f.mu.Unlock()

	status, resp := http.StatusOK, any(nil)
	if ok {
		status, resp = h(body)
	} else {
		resp = f.defaultResponse(method, body)
	}
	if status != http.StatusOK {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
	}
	writeJSON(f.t, w, resp)
}

func (f *fakeAPI) defaultResponse(method string, body []byte) any {
	switch method {
	case "getMe":
		return APIResponse[User]{OK: true, Result: User{ID: 999, IsBot: true, FirstName: "Bot", Username: "tgpt_bot"}}
	case "sendMessage", "sendPhoto":
		var req struct {
			ChatID int64  `json:"chat_id"`
			Text   string `json:"text"`
		}
		_ = json.Unmarshal(body, &req)
		f.mu.Lock()
		f.nextID++
		id := f.nextID
		f.mu.Unlock()
		return APIResponse[Message]{OK: true, Result: Message{MessageID: id, Chat: Chat{ID: req.ChatID}, Text: req.Text}}
	case "getUpdates":
		time.Sleep(10 * time.Millisecond)
		return APIResponse[[]Update]{OK: true, Result: []Update{}}
	case "getFile":
		return APIResponse[File]{OK: true, Result: File{FileID: "f1", FilePath: "voice/f1.ogg"}}
	case "getChatMember":
		return APIResponse[ChatMember]{OK: true, Result: ChatMember{Status: MemberMember}}
	default:
		return APIResponse[bool]{OK: true, Result: true}
	}
}

// handle overrides the answer to method.
func (f *fakeAPI) handle(method string, h apiHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
}

// serveFile makes path downloadable.
func (f *fakeAPI) serveFile(path string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = data
}

func (f *fakeAPI) client() *Client {
	return NewClient(testToken, f.srv.URL, 5*time.Second)
}

// callsTo returns the bodies sent to method, in order.
func (f *fakeAPI) callsTo(method string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c.Body)
		}
	}
	return out
}

// sentTexts returns the text of every sendMessage call.
func (f *fakeAPI) sentTexts() []string {
	var out []string
	for _, body := range f.callsTo("sendMessage") {
		var req SendMessageRequest
		_ = json.Unmarshal(body, &req)
		out = append(out, req.Text)
	}
	return out
}

func decodeCall[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("decode call: %v", err)
	}
	return v
}

func apiError(code int, description string) apiHandler {
	return func([]byte) (int, any) {
		return code, APIResponse[json.RawMessage]{OK: false, ErrorCode: code, Description: description}
	}
}

// newTestBot returns a Bot talking to api and llm. mutate adjusts the
// configuration before it is validated.
func newTestBot(t *testing.T, api *fakeAPI, llm provider.Provider, mutate func(*Config), opts ...botOption) *Bot {
	t.Helper()
	cfg := defaultConfig()
	cfg.Token = testToken
	cfg.defaults()
	if mutate != nil {
		mutate(&cfg)
	}
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate() error: %v", err)
	}

	recorder := usage.NewRecorder(usage.Config{
		Prices:    cfg.Prices,
		GuestPool: cfg.AllowedUserIDs != "*",
	}, usage.WithLogger(discardLogger()))

	n := 0
	opts = append([]botOption{
		withSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
		withIDs(func() string { n++; return "id-" + string(rune('0'+n)) }),
	}, opts...)
	b := newBot(cfg, api.client(), llm, recorder, discardLogger(), opts...)
	b.me = User{ID: 999, IsBot: true, FirstName: "Bot", Username: "tgpt_bot"}
	return b
}

func privateText(userID int64, text string) *Update {
	return &Update{
		UpdateID: 1,
		Message: &Message{
			MessageID: 10,
			From:      &User{ID: userID, FirstName: "Alice", Username: "alice"},
			Chat:      Chat{ID: userID, Type: ChatTypePrivate},
			Text:      text,
		},
	}
}

func groupText(userID, chatID int64, text string) *Update {
	return &Update{
		UpdateID: 1,
		Message: &Message{
			MessageID: 11,
			From:      &User{ID: userID, FirstName: "Bob", Username: "bob"},
			Chat:      Chat{ID: chatID, Type: ChatTypeSupergroup, Title: "team"},
			Text:      text,
		},
	}
}

func callback(userID, chatID int64, data string) *Update {
	return &Update{
		UpdateID: 2,
		CallbackQuery: &CallbackQuery{
			ID:      "cb-1",
			From:    &User{ID: userID, FirstName: "Alice", Username: "alice"},
			Message: &Message{MessageID: 50, Chat: Chat{ID: chatID, Type: ChatTypePrivate}},
			Data:    data,
		},
	}
}
