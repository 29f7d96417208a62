package slack

import (
	"context"
	"errors"
	"testing"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/mailslot/internal/alert"
)

// Compile-time interface compliance check.
var _ alert.Sink = (*Sink)(nil)

type mockClient struct {
	channel string
	opts    int
	err     error
}

func (m *mockClient) PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.channel = channelID
	m.opts = len(options)
	return channelID, "1700000000.000100", m.err
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(SinkOpts{ChannelID: "C1"}); err == nil {
		t.Error("expected error without token or client")
	}
	if _, err := New(SinkOpts{BotToken: "xoxb-1"}); err == nil {
		t.Error("expected error without channel")
	}
	if _, err := New(SinkOpts{BotToken: "xoxb-1", ChannelID: "C1"}); err != nil {
		t.Errorf("New with token: %v", err)
	}
}

func TestSink_Notify(t *testing.T) {
	mc := &mockClient{}
	s, err := New(SinkOpts{ChannelID: "C42", Client: mc})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Notify(context.Background(), alert.Alert{Title: "credit failed", Severity: alert.SeverityError}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if mc.channel != "C42" {
		t.Errorf("channel = %q, want C42", mc.channel)
	}
	if mc.opts != 2 {
		t.Errorf("options = %d, want text and attachment", mc.opts)
	}

	mc.err = errors.New("channel_not_found")
	if err := s.Notify(context.Background(), alert.Alert{Title: "x"}); err == nil {
		t.Error("expected error from client")
	}
}
