package relay

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/zulandar/mailslot/internal/ledger"
	"github.com/zulandar/mailslot/internal/session"
	"github.com/zulandar/mailslot/internal/telegraph"
)

// HistoryWriter appends history entries.
type HistoryWriter interface {
	AppendHistory(e ledger.HistoryEntry) (ledger.HistoryEntry, error)
}

// Report is the result of one submission.
type Report struct {
	Token      string
	Deliveries []Delivery
	History    ledger.HistoryEntry
	HistoryErr error
}

// Pipeline turns confirmed submissions into administrator notifications.
type Pipeline struct {
	adapter  telegraph.Adapter
	history  HistoryWriter
	admins   []int64
	newToken func(submitterID int64) string
	out      io.Writer
}

// PipelineOpts holds parameters for creating a Pipeline.
type PipelineOpts struct {
	Adapter telegraph.Adapter
	History HistoryWriter
	Admins  []int64
	// NewToken builds the publish payload; defaults to NewClaimToken.
	NewToken func(submitterID int64) string
	Out      io.Writer // defaults to os.Stdout
}

// NewPipeline creates a Pipeline.
func NewPipeline(opts PipelineOpts) (*Pipeline, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("relay: pipeline: adapter is required")
	}
	if opts.History == nil {
		return nil, fmt.Errorf("relay: pipeline: history is required")
	}
	if len(opts.Admins) == 0 {
		return nil, fmt.Errorf("relay: pipeline: at least one admin is required")
	}
	newToken := opts.NewToken
	if newToken == nil {
		newToken = NewClaimToken
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Pipeline{adapter: opts.Adapter, history: opts.History, admins: opts.Admins, newToken: newToken, out: out}, nil
}

// Header is the first line of an admin notification: the mode, and the
// author's name and id when the submission is named.
func Header(mode session.Mode, user telegraph.User) string {
	if mode == session.Named {
		return fmt.Sprintf("👤 От %s (ID: %d)", user.FirstName, user.ID)
	}
	return "📨 Анонимное сообщение"
}

// HistoryContent is what a history entry records for a submission: the
// trimmed text, then a line referencing the saved media.
func HistoryContent(text, mediaPath string) string {
	var parts []string
	if t := strings.TrimSpace(text); t != "" {
		parts = append(parts, t)
	}
	if mediaPath != "" {
		parts = append(parts, "Медиа: "+mediaPath)
	}
	if len(parts) == 0 {
		return "[Медиа отправлено]"
	}
	return strings.Join(parts, "\n")
}

// PublishButton is the admin-facing keyboard carrying the claim token.
func PublishButton(token string) telegraph.Keyboard {
	return telegraph.Rows(telegraph.Row(telegraph.DataButton("📢 Запостить в канал", token)))
}

// Submit delivers p to every administrator, then appends exactly one history
// entry however many deliveries succeeded.
func (p *Pipeline) Submit(ctx context.Context, user telegraph.User, pending session.Pending) Report {
	caption := Header(pending.Mode, user)
	if c := pending.EffectiveCaption(); c != "" {
		caption += "\n\n💬 " + c
	}
	token := p.newToken(user.ID)
	kb := PublishButton(token)

	var send SendFunc
	if pending.Kind == telegraph.KindText {
		send = TextSender(p.adapter, caption+"\n\n"+pending.Text, kb)
	} else {
		send = func(ctx context.Context, admin int64) (telegraph.MessageRef, error) {
			return p.adapter.CopyMessage(ctx, admin, pending.Message, caption, kb)
		}
	}
	label := fmt.Sprintf("submission from %d", user.ID)
	rep := Report{Token: token, Deliveries: FanOut(ctx, p.out, label, p.admins, send)}

	text := pending.Text
	if pending.Kind != telegraph.KindText {
		text = pending.EffectiveCaption()
	}
	entry, err := p.history.AppendHistory(ledger.HistoryEntry{
		UserID:  user.ID,
		Handle:  user.Handle(),
		Mode:    pending.Mode.Label(),
		Content: HistoryContent(text, pending.MediaPath),
	})
	rep.History = entry
	if err != nil {
		log.Printf("relay: pipeline: history for %d: %v", user.ID, err)
		rep.HistoryErr = err
	}

	t := Count(rep.Deliveries)
	fmt.Fprintf(p.out, "relay: submission from %d: %d delivered, %d failed\n", user.ID, t.Sent, t.Failed)
	return rep
}
