package telegraph

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Op names recorded by MockAdapter.
const (
	OpSend   = "send"
	OpCopy   = "copy"
	OpEdit   = "edit"
	OpPost   = "post"
	OpAnswer = "answer"
)

// Sent is one outbound call recorded by MockAdapter.
type Sent struct {
	Op       string
	ChatID   int64
	Ref      MessageRef // message produced (send/copy) or edited (edit)
	Source   MessageRef // copy source
	Text     string     // text, caption, or callback notice
	Keyboard Keyboard
	Channel  string
	Post     ChannelPost
	Alert    bool
}

// MockAdapter implements Adapter for testing. It records every outbound call
// and allows simulating inbound updates via SimulateInbound. Failures are
// injected per chat, per operation, or for channel posts.
type MockAdapter struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	inbound   chan Update
	sent      []Sent
	nextMsgID int

	failChats map[int64]error
	failEdit  error
	failPost  error
	members   map[int64]bool
	memberErr error
	files     map[string]RemoteFile
}

// NewMockAdapter creates a MockAdapter with a buffered inbound channel.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		inbound:   make(chan Update, 100),
		nextMsgID: 1000,
		failChats: make(map[int64]error),
		members:   make(map[int64]bool),
		files:     make(map[string]RemoteFile),
	}
}

// Connect marks the adapter as connected.
func (m *MockAdapter) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock adapter: already closed")
	}
	m.connected = true
	return nil
}

// Listen returns the inbound update channel. Must be called after Connect.
func (m *MockAdapter) Listen(ctx context.Context) (<-chan Update, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("mock adapter: not connected")
	}
	return m.inbound, nil
}

// SendText records a text message.
func (m *MockAdapter) SendText(ctx context.Context, chatID int64, text string, kb Keyboard) (MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deliverable(chatID); err != nil {
		return MessageRef{}, err
	}
	ref := m.newRef(chatID)
	m.sent = append(m.sent, Sent{Op: OpSend, ChatID: chatID, Ref: ref, Text: text, Keyboard: kb})
	return ref, nil
}

// CopyMessage records a copied message.
func (m *MockAdapter) CopyMessage(ctx context.Context, chatID int64, src MessageRef, caption string, kb Keyboard) (MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deliverable(chatID); err != nil {
		return MessageRef{}, err
	}
	ref := m.newRef(chatID)
	m.sent = append(m.sent, Sent{Op: OpCopy, ChatID: chatID, Ref: ref, Source: src, Text: caption, Keyboard: kb})
	return ref, nil
}

// EditText records an edit.
func (m *MockAdapter) EditText(ctx context.Context, ref MessageRef, text string, kb Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("mock adapter: not connected")
	}
	if m.failEdit != nil {
		return m.failEdit
	}
	m.sent = append(m.sent, Sent{Op: OpEdit, ChatID: ref.ChatID, Ref: ref, Text: text, Keyboard: kb})
	return nil
}

// PostToChannel records a channel post.
func (m *MockAdapter) PostToChannel(ctx context.Context, channel string, post ChannelPost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("mock adapter: not connected")
	}
	if m.failPost != nil {
		return m.failPost
	}
	m.sent = append(m.sent, Sent{Op: OpPost, Channel: channel, Post: post, Text: post.Text})
	return nil
}

// AnswerCallback records a callback answer.
func (m *MockAdapter) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("mock adapter: not connected")
	}
	m.sent = append(m.sent, Sent{Op: OpAnswer, Text: text, Alert: alert})
	return nil
}

// IsMember reports the configured membership; users are members unless
// SetMember says otherwise.
func (m *MockAdapter) IsMember(ctx context.Context, chat string, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.memberErr != nil {
		return false, m.memberErr
	}
	member, ok := m.members[userID]
	if !ok {
		return true, nil
	}
	return member, nil
}

// FetchFile returns a file registered with SetFile.
func (m *MockAdapter) FetchFile(ctx context.Context, fileID string) (RemoteFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fileID]
	if !ok {
		return RemoteFile{}, fmt.Errorf("mock adapter: file %q not found", fileID)
	}
	return f, nil
}

// Close shuts down the mock adapter and closes the inbound channel.
func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.connected = false
	close(m.inbound)
	return nil
}

func (m *MockAdapter) deliverable(chatID int64) error {
	if !m.connected {
		return fmt.Errorf("mock adapter: not connected")
	}
	if err, ok := m.failChats[chatID]; ok {
		return err
	}
	return nil
}

func (m *MockAdapter) newRef(chatID int64) MessageRef {
	m.nextMsgID++
	return MessageRef{ChatID: chatID, MessageID: m.nextMsgID}
}

// --- Test helpers ---

// SimulateInbound sends an update into the inbound channel as if it came
// from the chat platform. Safe to call from any goroutine.
func (m *MockAdapter) SimulateInbound(u Update) {
	if u.Message != nil && u.Message.Timestamp.IsZero() {
		u.Message.Timestamp = time.Now()
	}
	m.inbound <- u
}

// FailChat makes every send or copy to chatID fail with err.
func (m *MockAdapter) FailChat(chatID int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failChats[chatID] = err
}

// FailEdits makes every EditText call fail with err (nil restores).
func (m *MockAdapter) FailEdits(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failEdit = err
}

// FailPosts makes every PostToChannel call fail with err (nil restores).
func (m *MockAdapter) FailPosts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPost = err
}

// SetMember overrides the membership answer for userID.
func (m *MockAdapter) SetMember(userID int64, member bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[userID] = member
}

// FailMembership makes IsMember fail with err (nil restores).
func (m *MockAdapter) FailMembership(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberErr = err
}

// SetFile registers a downloadable file.
func (m *MockAdapter) SetFile(fileID string, f RemoteFile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[fileID] = f
}

// LastSent returns the most recently recorded call.
// Returns zero value and false if nothing has been recorded.
func (m *MockAdapter) LastSent() (Sent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return Sent{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// SentCount returns the number of recorded calls.
func (m *MockAdapter) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// AllSent returns a copy of all recorded calls.
func (m *MockAdapter) AllSent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sent, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentTo returns the recorded send, copy and edit calls addressed to chatID.
func (m *MockAdapter) SentTo(chatID int64) []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Sent
	for _, s := range m.sent {
		if s.ChatID == chatID && (s.Op == OpSend || s.Op == OpCopy || s.Op == OpEdit) {
			out = append(out, s)
		}
	}
	return out
}

// Posts returns the recorded channel posts.
func (m *MockAdapter) Posts() []Sent {
	return m.byOp(OpPost)
}

// Answers returns the recorded callback answers.
func (m *MockAdapter) Answers() []Sent {
	return m.byOp(OpAnswer)
}

func (m *MockAdapter) byOp(op string) []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Sent
	for _, s := range m.sent {
		if s.Op == op {
			out = append(out, s)
		}
	}
	return out
}

// Reset forgets all recorded calls.
func (m *MockAdapter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
