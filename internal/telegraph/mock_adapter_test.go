package telegraph

import (
	"context"
	"errors"
	"testing"
)

// Compile-time interface compliance check.
var _ Adapter = (*MockAdapter)(nil)

func TestMockAdapter_ConnectAndClose(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()

	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Connect after close should fail.
	if err := m.Connect(ctx); err == nil {
		t.Fatal("Connect after Close should fail")
	}

	// Double close should be safe.
	if err := m.Close(); err != nil {
		t.Fatalf("double Close should succeed: %v", err)
	}
}

func TestMockAdapter_RequiresConnect(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()

	if _, err := m.Listen(ctx); err == nil {
		t.Error("Listen before Connect should fail")
	}
	if _, err := m.SendText(ctx, 1, "hello", nil); err == nil {
		t.Error("SendText before Connect should fail")
	}
	if err := m.PostToChannel(ctx, "@chan", ChannelPost{Kind: KindText, Text: "x"}); err == nil {
		t.Error("PostToChannel before Connect should fail")
	}
}

func TestMockAdapter_SimulateInbound(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ch, err := m.Listen(ctx)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	m.SimulateInbound(Update{Message: &InboundMessage{From: User{ID: 7}, Kind: KindText, Text: "hi"}})

	u := <-ch
	if u.UserID() != 7 {
		t.Errorf("UserID = %d, want 7", u.UserID())
	}
	if u.Message.Timestamp.IsZero() {
		t.Error("timestamp should be auto-populated")
	}
}

func TestMockAdapter_RecordsCalls(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()
	m.Connect(ctx)

	kb := Rows(Row(DataButton("ok", "confirm_send")))
	ref, err := m.SendText(ctx, 10, "hello", kb)
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if ref.ChatID != 10 || ref.MessageID == 0 {
		t.Errorf("ref = %+v, want chat 10 and a message id", ref)
	}
	copied, _ := m.CopyMessage(ctx, 20, MessageRef{ChatID: 10, MessageID: 5}, "cap", nil)
	if copied.MessageID == ref.MessageID {
		t.Error("message ids should be unique")
	}
	m.EditText(ctx, ref, "edited", nil)
	m.AnswerCallback(ctx, "cb", "notice", true)

	if got := m.SentCount(); got != 4 {
		t.Fatalf("SentCount = %d, want 4", got)
	}
	to10 := m.SentTo(10)
	if len(to10) != 2 || to10[0].Op != OpSend || to10[1].Op != OpEdit {
		t.Errorf("SentTo(10) = %+v", to10)
	}
	if to10[0].Keyboard[0][0].Data != "confirm_send" {
		t.Errorf("keyboard not recorded: %+v", to10[0].Keyboard)
	}
	answers := m.Answers()
	if len(answers) != 1 || !answers[0].Alert || answers[0].Text != "notice" {
		t.Errorf("Answers = %+v", answers)
	}
	last, ok := m.LastSent()
	if !ok || last.Op != OpAnswer {
		t.Errorf("LastSent = %+v, %v", last, ok)
	}

	m.Reset()
	if m.SentCount() != 0 {
		t.Error("Reset should clear recorded calls")
	}
}

func TestMockAdapter_FailureInjection(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()
	m.Connect(ctx)

	boom := errors.New("blocked by user")
	m.FailChat(3, boom)
	if _, err := m.SendText(ctx, 3, "x", nil); !errors.Is(err, boom) {
		t.Errorf("SendText to failing chat = %v, want %v", err, boom)
	}
	if _, err := m.SendText(ctx, 4, "x", nil); err != nil {
		t.Errorf("SendText to healthy chat: %v", err)
	}

	m.FailPosts(boom)
	if err := m.PostToChannel(ctx, "@c", ChannelPost{}); !errors.Is(err, boom) {
		t.Errorf("PostToChannel = %v, want %v", err, boom)
	}
	m.FailPosts(nil)
	if err := m.PostToChannel(ctx, "@c", ChannelPost{Text: "ok"}); err != nil {
		t.Errorf("PostToChannel after restore: %v", err)
	}
	if len(m.Posts()) != 1 {
		t.Errorf("Posts = %d, want 1", len(m.Posts()))
	}

	m.FailEdits(boom)
	if err := m.EditText(ctx, MessageRef{ChatID: 4, MessageID: 1}, "x", nil); !errors.Is(err, boom) {
		t.Errorf("EditText = %v, want %v", err, boom)
	}
}

func TestMockAdapter_MembershipAndFiles(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()

	if ok, _ := m.IsMember(ctx, "@chan", 1); !ok {
		t.Error("users should be members by default")
	}
	m.SetMember(1, false)
	if ok, _ := m.IsMember(ctx, "@chan", 1); ok {
		t.Error("SetMember(false) not honored")
	}
	m.FailMembership(errors.New("chat not found"))
	if _, err := m.IsMember(ctx, "@chan", 2); err == nil {
		t.Error("expected membership error")
	}

	if _, err := m.FetchFile(ctx, "missing"); err == nil {
		t.Error("expected error for unknown file")
	}
	m.SetFile("f1", RemoteFile{Path: "photos/file_1.jpg", Data: []byte("jpeg")})
	f, err := m.FetchFile(ctx, "f1")
	if err != nil || string(f.Data) != "jpeg" {
		t.Errorf("FetchFile = %+v, %v", f, err)
	}
}

func TestUser_Handle(t *testing.T) {
	if got := (User{Username: "ann"}).Handle(); got != "@ann" {
		t.Errorf("Handle = %q, want @ann", got)
	}
	if got := (User{}).Handle(); got != "" {
		t.Errorf("Handle = %q, want empty", got)
	}
}

func TestKind_IsMedia(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindText, false},
		{KindPhoto, true},
		{KindVideo, true},
		{KindAudio, true},
		{KindOther, false},
	}
	for _, tt := range tests {
		if got := tt.kind.IsMedia(); got != tt.want {
			t.Errorf("%s.IsMedia() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
