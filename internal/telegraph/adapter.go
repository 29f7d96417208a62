// Package telegraph defines the chat-platform surface the bot talks through:
// inbound updates, inline keyboards, and the Adapter that delivers them.
package telegraph

import (
	"context"
	"time"
)

// Adapter is the interface that platform-specific implementations must satisfy.
// Transport failures are returned as errors; callers decide whether to report
// or ignore them.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound updates from the platform.
	// The channel is closed when the context is cancelled or the adapter
	// is closed. Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan Update, error)

	// SendText sends a text message with an optional inline keyboard.
	SendText(ctx context.Context, chatID int64, text string, kb Keyboard) (MessageRef, error)

	// CopyMessage copies an existing message into chatID, replacing its
	// caption when caption is non-empty.
	CopyMessage(ctx context.Context, chatID int64, src MessageRef, caption string, kb Keyboard) (MessageRef, error)

	// EditText replaces the text and keyboard of a message the bot sent.
	EditText(ctx context.Context, ref MessageRef, text string, kb Keyboard) error

	// PostToChannel publishes a post to a channel, addressed by numeric id
	// or "@username".
	PostToChannel(ctx context.Context, channel string, post ChannelPost) error

	// AnswerCallback acknowledges a button press, optionally with a notice.
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error

	// IsMember reports whether userID is a current member of chat.
	IsMember(ctx context.Context, chat string, userID int64) (bool, error)

	// FetchFile downloads a previously uploaded file.
	FetchFile(ctx context.Context, fileID string) (RemoteFile, error)

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// Kind is the shape of a message's content.
type Kind string

// Content kinds.
const (
	KindText  Kind = "text"
	KindPhoto Kind = "photo"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindOther Kind = "other"
)

// IsMedia reports whether k carries a file.
func (k Kind) IsMedia() bool {
	return k == KindPhoto || k == KindVideo || k == KindAudio
}

// User identifies the sender of an update.
type User struct {
	ID        int64
	Username  string // without "@", empty if the user has none
	FirstName string
}

// Handle returns "@username", or "" when the user has no username.
func (u User) Handle() string {
	if u.Username == "" {
		return ""
	}
	return "@" + u.Username
}

// MessageRef addresses one message in one chat.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// InboundMessage is a message received in a chat with the bot.
type InboundMessage struct {
	Ref       MessageRef
	From      User
	Private   bool   // sent in a one-to-one chat
	Command   string // bot command without "/", e.g. "start"
	Kind      Kind
	Text      string
	Caption   string
	FileID    string // largest size for photos
	Timestamp time.Time
}

// Callback is a press on an inline keyboard button.
type Callback struct {
	ID      string
	From    User
	Data    string
	Message *InboundMessage // the message the keyboard was attached to
}

// Update is one inbound event. Exactly one of Message and Callback is set.
type Update struct {
	Message  *InboundMessage
	Callback *Callback
}

// UserID returns the id of the user who caused the update.
func (u Update) UserID() int64 {
	switch {
	case u.Message != nil:
		return u.Message.From.ID
	case u.Callback != nil:
		return u.Callback.From.ID
	}
	return 0
}

// Button is one inline keyboard button. Exactly one of Data and URL is set.
type Button struct {
	Text string
	Data string
	URL  string
}

// DataButton returns a button that sends data back as a callback.
func DataButton(text, data string) Button { return Button{Text: text, Data: data} }

// URLButton returns a button that opens url.
func URLButton(text, url string) Button { return Button{Text: text, URL: url} }

// Keyboard is an inline keyboard, row by row.
type Keyboard [][]Button

// Rows builds a keyboard from rows of buttons.
func Rows(rows ...[]Button) Keyboard { return Keyboard(rows) }

// Row groups buttons into one keyboard row.
func Row(buttons ...Button) []Button { return buttons }

// ChannelPost is one publication to a channel. Media is addressed either by
// the platform FileID of an earlier upload or by a local FilePath.
type ChannelPost struct {
	Kind     Kind
	FileID   string
	FilePath string
	Text     string // message text, or caption for media
}

// RemoteFile is a downloaded file. Path is the platform-side path, useful
// for its extension.
type RemoteFile struct {
	Path string
	Data []byte
}
