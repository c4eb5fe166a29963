package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	companion "github.com/Protocol-Lattice/go-companion"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"), goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"), goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"))
}

type apiCall struct {
	Method    string
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
}

type fakeTelegram struct {
	mu      sync.Mutex
	calls   []apiCall
	updates [][]Update
	nextID  int64
}

func (f *fakeTelegram) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndexByte(r.URL.Path, '/')+1:]
		assert.True(t, strings.HasPrefix(r.URL.Path, "/bottok/"), r.URL.Path)

		var c apiCall
		if r.ContentLength != 0 {
			_ = json.NewDecoder(r.Body).Decode(&c)
		}
		c.Method = method

		w.Header().Set("Content-Type", "application/json")
		switch method {
		case "getUpdates":
			f.mu.Lock()
			var batch []Update
			if len(f.updates) > 0 {
				batch, f.updates = f.updates[0], f.updates[1:]
			}
			f.mu.Unlock()
			if batch == nil {
				select {
				case <-r.Context().Done():
				case <-time.After(20 * time.Millisecond):
				}
				batch = []Update{}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": batch})
		case "getMe":
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"username":"CompanionBot"}}`))
		case "sendMessage":
			f.mu.Lock()
			f.nextID++
			id := f.nextID
			f.calls = append(f.calls, c)
			f.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{"message_id": id}})
		default:
			f.mu.Lock()
			f.calls = append(f.calls, c)
			f.mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
		}
	})
}

func (f *fakeTelegram) snapshot() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

type fakeConversations struct {
	mu     sync.Mutex
	texts  []string
	owners []string
	resets []string
	reply  string
	err    error
}

func (f *fakeConversations) HandleMessage(_ context.Context, ownerID, text string) (companion.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	f.owners = append(f.owners, ownerID)
	if f.err != nil {
		return companion.Reply{}, f.err
	}
	return companion.Reply{Text: f.reply, State: companion.StatePersisted}, nil
}

func (f *fakeConversations) Reset(_ context.Context, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, ownerID)
	return nil
}

func (f *fakeConversations) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func newTestBot(t *testing.T, conv Conversations, mutate func(*Options)) (*Bot, *fakeTelegram) {
	t.Helper()
	fake := &fakeTelegram{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	opts := Options{
		API:           NewAPI(srv.Client(), srv.URL, "tok"),
		Conversations: conv,
		BotName:       "CompanionBot",
		PollTimeout:   time.Second,
	}
	if mutate != nil {
		mutate(&opts)
	}
	bot, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(bot.Close)
	return bot, fake
}

func textUpdate(id, chatID int64, text string) Update {
	return Update{UpdateID: id, Message: &Message{MessageID: id, Chat: &Chat{ID: chatID, Type: "private"}, Text: text}}
}

func TestStartAndHelp(t *testing.T) {
	conv := &fakeConversations{}
	bot, fake := newTestBot(t, conv, nil)

	bot.Dispatch(textUpdate(1, 42, "/start"))
	bot.Dispatch(textUpdate(2, 42, "/help@CompanionBot"))

	calls := fake.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, "Hello! I am CompanionBot. Type anything to chat with me!", calls[0].Text)
	assert.Equal(t, helpText, calls[1].Text)
	assert.Empty(t, conv.seen())
}

func TestMessageEditsThinkingPlaceholder(t *testing.T) {
	conv := &fakeConversations{reply: "You slept well."}
	bot, fake := newTestBot(t, conv, nil)

	bot.Dispatch(textUpdate(1, 42, "how did I sleep?"))

	require.Eventually(t, func() bool { return len(fake.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	calls := fake.snapshot()
	assert.Equal(t, apiCall{Method: "sendMessage", ChatID: 42, Text: thinkingText}, calls[0])
	assert.Equal(t, apiCall{Method: "editMessageText", ChatID: 42, MessageID: 1, Text: "You slept well."}, calls[1])

	conv.mu.Lock()
	assert.Equal(t, []string{"telegram:42"}, conv.owners)
	conv.mu.Unlock()
}

func TestLongReplyIsChunked(t *testing.T) {
	conv := &fakeConversations{reply: strings.Repeat("a", MaxMessageLength+10)}
	bot, fake := newTestBot(t, conv, nil)

	bot.Dispatch(textUpdate(1, 7, "tell me everything"))

	require.Eventually(t, func() bool { return len(fake.snapshot()) == 3 }, 2*time.Second, 10*time.Millisecond)
	calls := fake.snapshot()
	assert.Equal(t, "editMessageText", calls[1].Method)
	assert.Len(t, calls[1].Text, MaxMessageLength)
	assert.Equal(t, "sendMessage", calls[2].Method)
	assert.Equal(t, strings.Repeat("a", 10), calls[2].Text)
}

func TestTurnErrorIsReported(t *testing.T) {
	conv := &fakeConversations{err: errors.New("store down")}
	bot, fake := newTestBot(t, conv, nil)

	bot.Dispatch(textUpdate(1, 7, "hi"))

	require.Eventually(t, func() bool { return len(fake.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "An error occurred: store down", fake.snapshot()[1].Text)
}

func TestAllowList(t *testing.T) {
	conv := &fakeConversations{reply: "ok"}
	bot, fake := newTestBot(t, conv, func(o *Options) { o.AllowedChatIDs = []int64{42} })

	bot.Dispatch(textUpdate(1, 99, "hello"))
	calls := fake.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "Sorry, this bot is private.", calls[0].Text)
	assert.Empty(t, conv.seen())
}

func TestResetIsOrderedWithTurns(t *testing.T) {
	conv := &fakeConversations{reply: "ok"}
	bot, fake := newTestBot(t, conv, nil)

	bot.Dispatch(textUpdate(1, 5, "first"))
	bot.Dispatch(textUpdate(2, 5, "/reset"))
	bot.Dispatch(textUpdate(3, 5, "second"))

	require.Eventually(t, func() bool { return len(fake.snapshot()) == 5 }, 2*time.Second, 10*time.Millisecond)
	calls := fake.snapshot()
	assert.Equal(t, "Starting a fresh conversation.", calls[2].Text)
	assert.Equal(t, []string{"first", "second"}, conv.seen())
	conv.mu.Lock()
	assert.Equal(t, []string{"telegram:5"}, conv.resets)
	conv.mu.Unlock()
}

func TestEditedMessagesAreIgnored(t *testing.T) {
	conv := &fakeConversations{reply: "ok"}
	bot, fake := newTestBot(t, conv, nil)

	edit := textUpdate(1, 8, "how did I sleep??")
	edit.EditedMessage, edit.Message = edit.Message, nil
	bot.Dispatch(edit)
	bot.Dispatch(textUpdate(2, 8, "and my recovery?"))

	require.Eventually(t, func() bool { return len(fake.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"and my recovery?"}, conv.seen())
}

func TestWebhookHandler(t *testing.T) {
	conv := &fakeConversations{reply: "ok"}
	bot, _ := newTestBot(t, conv, func(o *Options) { o.WebhookSecret = "s3cret" })

	body := `{"update_id":1,"message":{"message_id":1,"chat":{"id":3},"text":"hi"}}`

	rec := httptest.NewRecorder()
	bot.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body))
	req.Header.Set(secretHeader, "s3cret")
	rec = httptest.NewRecorder()
	bot.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	bot.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/telegram/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	require.Eventually(t, func() bool { return len(conv.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestRunPollsUntilCancelled(t *testing.T) {
	conv := &fakeConversations{reply: "pong"}
	bot, fake := newTestBot(t, conv, func(o *Options) { o.BotName = "" })
	fake.updates = [][]Update{{textUpdate(10, 1, "ping")}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()

	require.Eventually(t, func() bool { return len(fake.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, "CompanionBot", bot.botName)
	assert.Equal(t, "pong", fake.snapshot()[1].Text)
}

func TestChunk(t *testing.T) {
	assert.Equal(t, []string{"(empty)"}, Chunk("  ", 10))
	assert.Equal(t, []string{"short"}, Chunk("short", 10))

	parts := Chunk("line one\nline two\nline three", 20)
	assert.Equal(t, []string{"line one\nline two", "line three"}, parts)

	emoji := strings.Repeat("🧠", 7)
	parts = Chunk(emoji, 3)
	require.Len(t, parts, 3)
	for _, p := range parts {
		assert.LessOrEqual(t, utf8.RuneCountInString(p), 3)
	}
	assert.Equal(t, emoji, strings.Join(parts, ""))
}
