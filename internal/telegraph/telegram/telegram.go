// Package telegram implements the telegraph Adapter for the Telegram Bot API
// using long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/zulandar/mailslot/internal/telegraph"
	"golang.org/x/time/rate"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// maxDownload caps the size of a downloaded file; the Bot API serves
	// files up to 20 MB.
	maxDownload = 20 << 20
	// defaultPollTimeout is the long-poll timeout in seconds.
	defaultPollTimeout = 30
	// defaultRate is the outbound call budget per second.
	defaultRate = 25
)

// botAPI abstracts the Bot API methods we use, enabling test mocks.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	CopyMessage(config tgbotapi.CopyMessageConfig) (tgbotapi.MessageID, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
}

// Adapter implements telegraph.Adapter for Telegram.
type Adapter struct {
	bot         botAPI
	token       string
	username    string
	pollTimeout int
	limiter     *rate.Limiter
	httpClient  *http.Client
	fileURL     func(filePath string) string

	mu         sync.Mutex
	connected  bool
	closed     bool
	cancelFunc context.CancelFunc
}

// AdapterOpts holds parameters for creating a Telegram Adapter.
type AdapterOpts struct {
	Token          string
	PollTimeoutSec int     // defaults to 30
	SendRatePerSec float64 // defaults to 25
	// For testing: inject a mock Bot API client and file server.
	Bot        botAPI
	HTTPClient *http.Client
	FileURL    func(filePath string) string
}

// New creates a Telegram Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Bot == nil && opts.Token == "" {
		return nil, fmt.Errorf("telegram: token is required")
	}
	poll := opts.PollTimeoutSec
	if poll <= 0 {
		poll = defaultPollTimeout
	}
	perSec := opts.SendRatePerSec
	if perSec <= 0 {
		perSec = defaultRate
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	a := &Adapter{
		bot:         opts.Bot,
		token:       opts.Token,
		pollTimeout: poll,
		limiter:     rate.NewLimiter(rate.Limit(perSec), 1),
		httpClient:  client,
		fileURL:     opts.FileURL,
	}
	if a.fileURL == nil {
		a.fileURL = func(filePath string) string {
			return fmt.Sprintf(tgbotapi.FileEndpoint, a.token, filePath)
		}
	}
	return a, nil
}

// Connect authenticates with the Bot API.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("telegram: adapter already closed")
	}
	if a.connected {
		return nil
	}
	if a.bot == nil {
		api, err := tgbotapi.NewBotAPI(a.token)
		if err != nil {
			return fmt.Errorf("telegram: authorize: %w", err)
		}
		a.bot = api
		a.username = api.Self.UserName
		log.Printf("telegram: authorized as @%s", a.username)
	}
	a.connected = true
	return nil
}

// Listen starts long polling and returns a channel of converted updates.
// Updates the bot cannot represent (edits, channel posts) are dropped.
func (a *Adapter) Listen(ctx context.Context) (<-chan telegraph.Update, error) {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return nil, fmt.Errorf("telegram: not connected")
	}
	listenCtx, cancel := context.WithCancel(ctx)
	a.cancelFunc = cancel
	a.mu.Unlock()

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = a.pollTimeout
	cfg.AllowedUpdates = []string{"message", "callback_query"}
	updates := a.bot.GetUpdatesChan(cfg)

	out := make(chan telegraph.Update, 100)
	go func() {
		defer close(out)
		defer a.bot.StopReceivingUpdates()
		for {
			select {
			case <-listenCtx.Done():
				return
			case u, ok := <-updates:
				if !ok {
					return
				}
				conv, ok := convertUpdate(u)
				if !ok {
					continue
				}
				select {
				case out <- conv:
				case <-listenCtx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// SendText sends a text message.
func (a *Adapter) SendText(ctx context.Context, chatID int64, text string, kb telegraph.Keyboard) (telegraph.MessageRef, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup, ok := buildKeyboard(kb); ok {
		msg.ReplyMarkup = markup
	}
	var sent tgbotapi.Message
	err := a.call(ctx, func() error {
		var err error
		sent, err = a.bot.Send(msg)
		return err
	})
	if err != nil {
		return telegraph.MessageRef{}, fmt.Errorf("telegram: send to %d: %w", chatID, err)
	}
	return telegraph.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

// CopyMessage copies src into chatID.
func (a *Adapter) CopyMessage(ctx context.Context, chatID int64, src telegraph.MessageRef, caption string, kb telegraph.Keyboard) (telegraph.MessageRef, error) {
	cfg := tgbotapi.NewCopyMessage(chatID, src.ChatID, src.MessageID)
	cfg.Caption = caption
	if markup, ok := buildKeyboard(kb); ok {
		cfg.ReplyMarkup = markup
	}
	var id tgbotapi.MessageID
	err := a.call(ctx, func() error {
		var err error
		id, err = a.bot.CopyMessage(cfg)
		return err
	})
	if err != nil {
		return telegraph.MessageRef{}, fmt.Errorf("telegram: copy %d/%d to %d: %w", src.ChatID, src.MessageID, chatID, err)
	}
	return telegraph.MessageRef{ChatID: chatID, MessageID: id.MessageID}, nil
}

// EditText replaces the text of a message.
func (a *Adapter) EditText(ctx context.Context, ref telegraph.MessageRef, text string, kb telegraph.Keyboard) error {
	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)
	if markup, ok := buildKeyboard(kb); ok {
		edit.ReplyMarkup = &markup
	}
	err := a.call(ctx, func() error {
		_, err := a.bot.Request(edit)
		return err
	})
	if err != nil {
		return fmt.Errorf("telegram: edit %d/%d: %w", ref.ChatID, ref.MessageID, err)
	}
	return nil
}

// PostToChannel publishes post to channel.
func (a *Adapter) PostToChannel(ctx context.Context, channel string, post telegraph.ChannelPost) error {
	c, err := buildChannelPost(channel, post)
	if err != nil {
		return err
	}
	err = a.call(ctx, func() error {
		_, err := a.bot.Send(c)
		return err
	})
	if err != nil {
		return fmt.Errorf("telegram: post to %s: %w", channel, err)
	}
	return nil
}

// AnswerCallback acknowledges a button press.
func (a *Adapter) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	cfg := tgbotapi.NewCallback(callbackID, text)
	if alert {
		cfg = tgbotapi.NewCallbackWithAlert(callbackID, text)
	}
	err := a.call(ctx, func() error {
		_, err := a.bot.Request(cfg)
		return err
	})
	if err != nil {
		return fmt.Errorf("telegram: answer callback: %w", err)
	}
	return nil
}

// IsMember reports whether userID is in chat. Users who left or were
// banned are not members.
func (a *Adapter) IsMember(ctx context.Context, chat string, userID int64) (bool, error) {
	cfg := tgbotapi.GetChatMemberConfig{ChatConfigWithUser: tgbotapi.ChatConfigWithUser{UserID: userID}}
	if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
		cfg.ChatID = id
	} else {
		cfg.SuperGroupUsername = chat
	}
	var member tgbotapi.ChatMember
	err := a.call(ctx, func() error {
		var err error
		member, err = a.bot.GetChatMember(cfg)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("telegram: membership of %d in %s: %w", userID, chat, err)
	}
	return !member.HasLeft() && !member.WasKicked(), nil
}

// FetchFile downloads a file by id.
func (a *Adapter) FetchFile(ctx context.Context, fileID string) (telegraph.RemoteFile, error) {
	var file tgbotapi.File
	err := a.call(ctx, func() error {
		var err error
		file, err = a.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
		return err
	})
	if err != nil {
		return telegraph.RemoteFile{}, fmt.Errorf("telegram: get file %s: %w", fileID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.fileURL(file.FilePath), nil)
	if err != nil {
		return telegraph.RemoteFile{}, fmt.Errorf("telegram: download %s: %w", fileID, err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return telegraph.RemoteFile{}, fmt.Errorf("telegram: download %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return telegraph.RemoteFile{}, fmt.Errorf("telegram: download %s: status %d", fileID, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload+1))
	if err != nil {
		return telegraph.RemoteFile{}, fmt.Errorf("telegram: download %s: %w", fileID, err)
	}
	if len(data) > maxDownload {
		return telegraph.RemoteFile{}, fmt.Errorf("telegram: download %s: file exceeds %d bytes", fileID, maxDownload)
	}
	return telegraph.RemoteFile{Path: file.FilePath, Data: data}, nil
}

// Close stops polling.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	return nil
}

// call waits for the outbound budget, then runs fn, retrying when Telegram
// answers 429 with a retry_after hint.
func (a *Adapter) call(ctx context.Context, fn func() error) error {
	a.mu.Lock()
	connected := a.connected
	a.mu.Unlock()
	if !connected {
		return fmt.Errorf("not connected")
	}

	for attempt := 0; ; attempt++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		err := fn()
		var tgErr *tgbotapi.Error
		if err == nil || attempt >= maxRetries || !errors.As(err, &tgErr) || tgErr.Code != http.StatusTooManyRequests {
			return err
		}
		wait := time.Duration(tgErr.RetryAfter) * time.Second
		if wait <= 0 {
			wait = time.Second
		}
		log.Printf("telegram: rate limited, retrying in %s (attempt %d/%d)", wait, attempt+1, maxRetries)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// buildKeyboard converts kb to inline markup. It reports false for an empty
// keyboard, which must not be sent.
func buildKeyboard(kb telegraph.Keyboard) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(kb) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

// buildChannelPost addresses post to channel, a numeric chat id or "@name".
func buildChannelPost(channel string, post telegraph.ChannelPost) (tgbotapi.Chattable, error) {
	var chat tgbotapi.BaseChat
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		chat.ChatID = id
	} else if strings.HasPrefix(channel, "@") {
		chat.ChannelUsername = channel
	} else {
		return nil, fmt.Errorf("telegram: invalid channel %q", channel)
	}

	var file tgbotapi.RequestFileData
	switch {
	case post.FileID != "":
		file = tgbotapi.FileID(post.FileID)
	case post.FilePath != "":
		file = tgbotapi.FilePath(post.FilePath)
	}

	switch post.Kind {
	case telegraph.KindPhoto, telegraph.KindVideo, telegraph.KindAudio:
		if file == nil {
			return nil, fmt.Errorf("telegram: %s post without a file", post.Kind)
		}
	}

	switch post.Kind {
	case telegraph.KindPhoto:
		c := tgbotapi.NewPhoto(0, file)
		c.BaseChat = chat
		c.Caption = post.Text
		return c, nil
	case telegraph.KindVideo:
		c := tgbotapi.NewVideo(0, file)
		c.BaseChat = chat
		c.Caption = post.Text
		return c, nil
	case telegraph.KindAudio:
		c := tgbotapi.NewAudio(0, file)
		c.BaseChat = chat
		c.Caption = post.Text
		return c, nil
	default:
		c := tgbotapi.NewMessage(0, post.Text)
		c.BaseChat = chat
		return c, nil
	}
}

// convertUpdate maps a Bot API update to a telegraph update.
func convertUpdate(u tgbotapi.Update) (telegraph.Update, bool) {
	switch {
	case u.Message != nil:
		msg, ok := convertMessage(u.Message)
		if !ok {
			return telegraph.Update{}, false
		}
		return telegraph.Update{Message: msg}, true
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		if cq.From == nil {
			return telegraph.Update{}, false
		}
		cb := &telegraph.Callback{ID: cq.ID, From: convertUser(cq.From), Data: cq.Data}
		if cq.Message != nil {
			cb.Message, _ = convertMessage(cq.Message)
		}
		return telegraph.Update{Callback: cb}, true
	}
	return telegraph.Update{}, false
}

func convertUser(u *tgbotapi.User) telegraph.User {
	return telegraph.User{ID: u.ID, Username: u.UserName, FirstName: u.FirstName}
}

func convertMessage(m *tgbotapi.Message) (*telegraph.InboundMessage, bool) {
	out := &telegraph.InboundMessage{
		Ref:       telegraph.MessageRef{MessageID: m.MessageID},
		Text:      m.Text,
		Caption:   m.Caption,
		Timestamp: m.Time(),
	}
	if m.Chat != nil {
		out.Ref.ChatID = m.Chat.ID
		out.Private = m.Chat.IsPrivate()
	}
	if m.From == nil {
		// Channel posts have no sender.
		return out, false
	}
	out.From = convertUser(m.From)
	if m.IsCommand() {
		out.Command = m.Command()
	}
	switch {
	case len(m.Photo) > 0:
		out.Kind = telegraph.KindPhoto
		out.FileID = m.Photo[len(m.Photo)-1].FileID
	case m.Video != nil:
		out.Kind = telegraph.KindVideo
		out.FileID = m.Video.FileID
	case m.Audio != nil:
		out.Kind = telegraph.KindAudio
		out.FileID = m.Audio.FileID
	case m.Text != "":
		out.Kind = telegraph.KindText
	default:
		out.Kind = telegraph.KindOther
	}
	return out, true
}
