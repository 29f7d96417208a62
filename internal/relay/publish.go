package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/zulandar/mailslot/internal/alert"
	"github.com/zulandar/mailslot/internal/telegraph"
)

// PublishCredit is credited to the author of every published submission.
const PublishCredit = 15.0

var (
	// ErrNotAdmin is returned when a non-administrator tries to publish.
	ErrNotAdmin = errors.New("relay: only an administrator may publish")
	// ErrAlreadyPublished is returned for a submission that was published before.
	ErrAlreadyPublished = errors.New("relay: submission already published")
	// ErrBadClaim is returned for a publish payload that cannot be decoded.
	ErrBadClaim = errors.New("relay: malformed publish payload")
)

// Status summarizes a publish attempt.
type Status int

// Publish statuses.
const (
	StatusRejected Status = iota // not attempted: unauthorized, duplicate or malformed
	StatusFailed                 // channel post failed, nothing credited
	StatusPosted                 // posted with media or fallback video
	StatusPostedTextOnly         // text posted without the fallback video
)

func (s Status) String() string {
	switch s {
	case StatusFailed:
		return "failed"
	case StatusPosted:
		return "posted"
	case StatusPostedTextOnly:
		return "posted_text_only"
	default:
		return "rejected"
	}
}

// Outcome is the result of one publish attempt.
type Outcome struct {
	Status      Status
	SubmitterID int64
	// Credited is true when the author's balance was increased; Balance is
	// then the new balance. CreditErr is set when the post went out but the
	// credit did not land.
	Credited  bool
	Balance   float64
	CreditErr error
	Err       error
}

// Crediter adds to a user's balance.
type Crediter interface {
	Credit(userID int64, amount float64) (float64, error)
}

// Coordinator republishes approved submissions to the channel and credits
// their authors exactly once.
type Coordinator struct {
	adapter  telegraph.Adapter
	claims   *Claims
	ledger   Crediter
	admins   []int64
	channel  string
	footer   string
	fallback string
	alerts   alert.Sink
	out      io.Writer
}

// CoordinatorOpts holds parameters for creating a Coordinator.
type CoordinatorOpts struct {
	Adapter       telegraph.Adapter
	Claims        *Claims
	Ledger        Crediter
	Admins        []int64
	Channel       string // numeric id or "@username"
	Footer        string // appended to every post after a blank line
	FallbackVideo string // attached to text posts when the file exists
	Alerts        alert.Sink
	Out           io.Writer // defaults to os.Stdout
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(opts CoordinatorOpts) (*Coordinator, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("relay: coordinator: adapter is required")
	}
	if opts.Claims == nil {
		return nil, fmt.Errorf("relay: coordinator: claims is required")
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("relay: coordinator: ledger is required")
	}
	if opts.Channel == "" {
		return nil, fmt.Errorf("relay: coordinator: channel is required")
	}
	sink := opts.Alerts
	if sink == nil {
		sink = alert.Nop{}
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Coordinator{
		adapter:  opts.Adapter,
		claims:   opts.Claims,
		ledger:   opts.Ledger,
		admins:   opts.Admins,
		channel:  opts.Channel,
		footer:   opts.Footer,
		fallback: opts.FallbackVideo,
		alerts:   sink,
		out:      out,
	}, nil
}

// IsAdmin reports whether userID may publish.
func (c *Coordinator) IsAdmin(userID int64) bool {
	for _, id := range c.admins {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Coordinator) withFooter(text string) string {
	if c.footer == "" {
		return text
	}
	return text + "\n\n" + c.footer
}

// Publish posts the admin-side copy cb.Message to the channel on behalf of
// adminID. A submission is claimed before posting, so a second press, by
// the same or another admin, is rejected with ErrAlreadyPublished. A failed
// post releases the claim. Publish and credit are not transactional: a
// credit failure is reported to the administrators and the post stays up.
func (c *Coordinator) Publish(ctx context.Context, adminID int64, cb telegraph.Callback) Outcome {
	if !c.IsAdmin(adminID) {
		return Outcome{Status: StatusRejected, Err: ErrNotAdmin}
	}
	claim, ok := ParseClaim(cb.Data)
	if !ok || cb.Message == nil {
		return Outcome{Status: StatusRejected, Err: ErrBadClaim}
	}
	out := Outcome{SubmitterID: claim.SubmitterID}
	msg := cb.Message

	key := claim.Key(msg.Ref)
	won, err := c.claims.Acquire(key, claim.SubmitterID, adminID)
	if err != nil {
		out.Status, out.Err = StatusRejected, err
		return out
	}
	if !won {
		out.Status, out.Err = StatusRejected, ErrAlreadyPublished
		return out
	}

	status, err := c.post(ctx, msg)
	if err != nil {
		if relErr := c.claims.Release(key); relErr != nil {
			log.Printf("relay: publish: %v", relErr)
		}
		c.editStatus(ctx, msg.Ref, fmt.Sprintf("Ошибка при отправке в канал: %v", err))
		out.Status, out.Err = StatusFailed, err
		return out
	}
	out.Status = status
	fmt.Fprintf(c.out, "relay: publish: %s from %d by admin %d (%s)\n", msg.Kind, claim.SubmitterID, adminID, status)

	c.credit(ctx, &out)
	return out
}

// post publishes msg and, for text, marks the admin-side copy with the
// fallback outcome.
func (c *Coordinator) post(ctx context.Context, msg *telegraph.InboundMessage) (Status, error) {
	if msg.Kind.IsMedia() {
		err := c.adapter.PostToChannel(ctx, c.channel, telegraph.ChannelPost{
			Kind:   msg.Kind,
			FileID: msg.FileID,
			Text:   c.withFooter(msg.Caption),
		})
		return StatusPosted, err
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	text = c.withFooter(text)
	if c.fallbackExists() {
		err := c.adapter.PostToChannel(ctx, c.channel, telegraph.ChannelPost{
			Kind:     telegraph.KindVideo,
			FilePath: c.fallback,
			Text:     text,
		})
		if err != nil {
			return StatusFailed, err
		}
		c.editStatus(ctx, msg.Ref, text+"\n✅ Запощено в канал с видео.")
		return StatusPosted, nil
	}

	if err := c.adapter.PostToChannel(ctx, c.channel, telegraph.ChannelPost{Kind: telegraph.KindText, Text: text}); err != nil {
		return StatusFailed, err
	}
	c.editStatus(ctx, msg.Ref, text+"\n⚠️ Видео-заглушка отсутствует.")
	c.NotifyAdmins(ctx, c.missingFallbackNotice())
	return StatusPostedTextOnly, nil
}

func (c *Coordinator) fallbackExists() bool {
	if c.fallback == "" {
		return false
	}
	info, err := os.Stat(c.fallback)
	return err == nil && !info.IsDir()
}

func (c *Coordinator) missingFallbackNotice() string {
	if c.fallback == "" {
		return "Видео-заглушка не настроена, отправлен только текстовый пост."
	}
	return fmt.Sprintf("Видео %s не найдено, отправлен только текстовый пост.", filepath.Base(c.fallback))
}

// editStatus replaces the admin-side copy, dropping its publish button.
func (c *Coordinator) editStatus(ctx context.Context, ref telegraph.MessageRef, text string) {
	if err := c.adapter.EditText(ctx, ref, text, nil); err != nil {
		log.Printf("relay: publish: edit admin copy %d/%d: %v", ref.ChatID, ref.MessageID, err)
	}
}

func (c *Coordinator) credit(ctx context.Context, out *Outcome) {
	balance, err := c.ledger.Credit(out.SubmitterID, PublishCredit)
	if err != nil {
		out.CreditErr = err
		log.Printf("relay: publish: credit %d: %v", out.SubmitterID, err)
		c.NotifyAdmins(ctx, fmt.Sprintf("⚠️ Не удалось начислить средства автору (ID %d).", out.SubmitterID))
		if aerr := c.alerts.Notify(ctx, alert.Alert{
			Title:    fmt.Sprintf("Credit failed for author %d after publish", out.SubmitterID),
			Body:     err.Error(),
			Severity: alert.SeverityError,
		}); aerr != nil {
			log.Printf("relay: publish: alert: %v", aerr)
		}
		return
	}
	out.Credited, out.Balance = true, balance

	notice := fmt.Sprintf("🎉 Вам начислено %.0f руб. Баланс: %.2f руб.", PublishCredit, balance)
	if _, err := c.adapter.SendText(ctx, out.SubmitterID, notice, nil); err != nil {
		log.Printf("relay: publish: notify author %d: %v", out.SubmitterID, err)
	}
	c.NotifyAdmins(ctx, fmt.Sprintf("✅ Автору (ID %d) начислено %.0f руб. Новый баланс: %.2f руб.", out.SubmitterID, PublishCredit, balance))
}

// NotifyAdmins sends text to every administrator.
func (c *Coordinator) NotifyAdmins(ctx context.Context, text string) []Delivery {
	return FanOut(ctx, c.out, "admin notice", c.admins, TextSender(c.adapter, text, nil))
}
