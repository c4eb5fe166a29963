package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	companion "github.com/Protocol-Lattice/go-companion"
)

const (
	// MaxMessageLength is Telegram's limit for one text message.
	MaxMessageLength = 4096
	thinkingText     = "🧠 Thinking..."
	helpText         = "Just write to me. I can look at your fitness data, habit checklist, journal and personality profile to answer.\n\nCommands:\n/reset starts a new conversation\n/help shows this message"
	secretHeader     = "X-Telegram-Bot-Api-Secret-Token"
	workerQueue      = 16
)

// Conversations is the part of the controller the bot drives.
type Conversations interface {
	HandleMessage(ctx context.Context, ownerID, text string) (companion.Reply, error)
	Reset(ctx context.Context, ownerID string) error
}

// Sender is the part of the Bot API used to answer.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) (int64, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
}

type Options struct {
	API           *API
	Conversations Conversations
	BotName       string
	// AllowedChatIDs restricts who may talk to the bot. Empty allows everyone.
	AllowedChatIDs []int64
	PollTimeout    time.Duration
	WebhookSecret  string
	Logger         *zap.Logger
}

type job struct {
	chatID int64
	text   string
	reset  bool
}

// Bot routes updates to one worker goroutine per chat, so the turns of a
// chat are processed in arrival order while different chats run in parallel.
type Bot struct {
	api     *API
	send    Sender
	conv    Conversations
	botName string
	allowed map[int64]bool
	poll    time.Duration
	secret  string
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	workers map[int64]chan job
	closed  bool
	wg      sync.WaitGroup
}

func New(opts Options) (*Bot, error) {
	if opts.API == nil {
		return nil, errors.New("telegram: api is required")
	}
	if opts.Conversations == nil {
		return nil, errors.New("telegram: conversations handler is required")
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	allowed := make(map[int64]bool, len(opts.AllowedChatIDs))
	for _, id := range opts.AllowedChatIDs {
		allowed[id] = true
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bot{
		api:     opts.API,
		send:    opts.API,
		conv:    opts.Conversations,
		botName: opts.BotName,
		allowed: allowed,
		poll:    opts.PollTimeout,
		secret:  opts.WebhookSecret,
		log:     opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
		workers: make(map[int64]chan job),
	}, nil
}

// Run long-polls for updates until ctx is done, then stops the workers.
func (b *Bot) Run(ctx context.Context) error {
	defer b.Close()

	if b.botName == "" {
		if me, err := b.api.GetMe(ctx); err == nil {
			b.botName = me.Username
		} else {
			b.log.Warn("telegram getMe failed", zap.Error(err))
		}
	}
	b.log.Info("telegram polling", zap.String("bot", b.botName), zap.Duration("poll_timeout", b.poll))

	var offset int64
	for {
		updates, next, err := b.api.GetUpdates(ctx, offset, b.poll)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			b.log.Warn("telegram poll failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		offset = next
		for _, u := range updates {
			b.Dispatch(u)
		}
	}
}

// ServeHTTP accepts webhook deliveries.
func (b *Bot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if b.secret != "" && r.Header.Get(secretHeader) != b.secret {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var u Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	b.Dispatch(u)
	w.WriteHeader(http.StatusOK)
}

// Dispatch handles one update. Commands that touch no conversation are
// answered inline; everything else is queued on the chat's worker. Edits of
// earlier messages are ignored: the original text is already a turn.
func (b *Bot) Dispatch(u Update) {
	if u.Message == nil && u.EditedMessage != nil {
		b.log.Debug("telegram ignoring edited message", zap.Int64("update_id", u.UpdateID))
		return
	}
	msg := u.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	chatID := msg.Chat.ID

	if len(b.allowed) > 0 && !b.allowed[chatID] {
		b.log.Warn("telegram unauthorized chat", zap.Int64("chat_id", chatID))
		b.reply(chatID, "Sorry, this bot is private.")
		return
	}

	cmd, _ := splitCommand(text)
	switch normalizeCommand(cmd) {
	case "/start":
		name := b.botName
		if name == "" {
			name = "your companion"
		}
		b.reply(chatID, fmt.Sprintf("Hello! I am %s. Type anything to chat with me!", name))
		return
	case "/help":
		b.reply(chatID, helpText)
		return
	case "/reset":
		b.enqueue(job{chatID: chatID, reset: true})
		return
	}
	b.enqueue(job{chatID: chatID, text: text})
}

func (b *Bot) enqueue(j job) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	ch, ok := b.workers[j.chatID]
	if !ok {
		ch = make(chan job, workerQueue)
		b.workers[j.chatID] = ch
		b.wg.Add(1)
		go b.work(ch)
	}
	select {
	case ch <- j:
	default:
		b.log.Warn("telegram chat queue full, dropping message", zap.Int64("chat_id", j.chatID))
	}
}

func (b *Bot) work(jobs <-chan job) {
	defer b.wg.Done()
	for j := range jobs {
		if b.ctx.Err() != nil {
			continue
		}
		if j.reset {
			b.handleReset(j.chatID)
		} else {
			b.handleText(j.chatID, j.text)
		}
	}
}

func (b *Bot) handleReset(chatID int64) {
	if err := b.conv.Reset(b.ctx, OwnerID(chatID)); err != nil {
		b.log.Error("telegram reset failed", zap.Int64("chat_id", chatID), zap.Error(err))
		b.reply(chatID, "I couldn't reset the conversation, please try again.")
		return
	}
	b.reply(chatID, "Starting a fresh conversation.")
}

func (b *Bot) handleText(chatID int64, text string) {
	placeholder, err := b.send.SendMessage(b.ctx, chatID, thinkingText)
	if err != nil {
		b.log.Warn("telegram placeholder failed", zap.Int64("chat_id", chatID), zap.Error(err))
		placeholder = 0
	}

	reply, err := b.conv.HandleMessage(b.ctx, OwnerID(chatID), text)
	answer := reply.Text
	if err != nil {
		b.log.Error("telegram turn error", zap.Int64("chat_id", chatID), zap.Error(err))
		if answer == "" {
			answer = fmt.Sprintf("An error occurred: %v", err)
		}
	}

	chunks := Chunk(answer, MaxMessageLength)
	if placeholder != 0 {
		if err := b.send.EditMessageText(b.ctx, chatID, placeholder, chunks[0]); err != nil {
			b.log.Warn("telegram edit failed", zap.Int64("chat_id", chatID), zap.Error(err))
			b.reply(chatID, chunks[0])
		}
		chunks = chunks[1:]
	}
	for _, c := range chunks {
		b.reply(chatID, c)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.send.SendMessage(b.ctx, chatID, text); err != nil {
		b.log.Warn("telegram send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// Close stops accepting updates, cancels in-flight turns and waits for the
// chat workers to exit.
func (b *Bot) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, ch := range b.workers {
		close(ch)
		delete(b.workers, id)
	}
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
}

// OwnerID is the conversation owner for a chat.
func OwnerID(chatID int64) string {
	return "telegram:" + strconv.FormatInt(chatID, 10)
}

// Chunk splits text into pieces of at most limit runes, preferring to break
// after a newline. It always returns at least one chunk.
func Chunk(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{"(empty)"}
	}
	var out []string
	for utf8.RuneCountInString(text) > limit {
		cut := byteOffset(text, limit)
		if nl := strings.LastIndexByte(text[:cut], '\n'); nl > cut/2 {
			cut = nl + 1
		}
		out = append(out, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

func byteOffset(s string, runes int) int {
	i := 0
	for n := 0; n < runes && i < len(s); n++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return i
}

func splitCommand(text string) (cmd string, rest string) {
	text = strings.TrimSpace(text)
	i := strings.IndexAny(text, " \n\t")
	if i == -1 {
		return text, ""
	}
	return text[:i], strings.TrimSpace(text[i:])
}

func normalizeCommand(cmd string) string {
	if !strings.HasPrefix(cmd, "/") {
		return ""
	}
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}
