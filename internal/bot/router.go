// Package bot runs the mailslot daemon: it routes inbound updates through the
// conversation state machine and performs the resulting side effects.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/zulandar/mailslot/internal/ledger"
	"github.com/zulandar/mailslot/internal/relay"
	"github.com/zulandar/mailslot/internal/session"
	"github.com/zulandar/mailslot/internal/telegraph"
)

// Accounts is the part of the ledger the router uses.
type Accounts interface {
	RegisterUser(userID int64) (bool, error)
	Balance(userID int64) (float64, error)
	Credit(userID int64, amount float64) (float64, error)
	Drain(userID int64) (float64, error)
	CountHistory(userID int64) (int, error)
	Reconcile() (ledger.Counts, error)
}

// MediaSaver stores inbound media and returns the saved path.
type MediaSaver interface {
	Save(ctx context.Context, kind telegraph.Kind, userID int64, fileID string) (string, error)
}

// Router handles one inbound update at a time. Updates for the same user
// must reach Handle in arrival order; updates for different users may be
// handled concurrently.
type Router struct {
	adapter     telegraph.Adapter
	sessions    *session.Store
	accounts    Accounts
	media       MediaSaver
	pipeline    *relay.Pipeline
	coordinator *relay.Coordinator
	broadcaster *relay.Broadcaster
	primary     int64
	subChat     string
	subURL      string
	chatLink    string
	channelLink string
	out         io.Writer
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	Adapter     telegraph.Adapter
	Sessions    *session.Store
	Accounts    Accounts
	Media       MediaSaver // optional; media is not saved when nil
	Pipeline    *relay.Pipeline
	Coordinator *relay.Coordinator
	Broadcaster *relay.Broadcaster
	// PrimaryAdmin gets the admin panel.
	PrimaryAdmin int64
	// SubscriptionChat gates /start; SubscriptionURL is offered to join it.
	SubscriptionChat string
	SubscriptionURL  string
	ChatLink         string
	ChannelLink      string
	Out              io.Writer // defaults to os.Stdout
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: router: adapter is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("bot: router: sessions is required")
	}
	if opts.Accounts == nil {
		return nil, fmt.Errorf("bot: router: accounts is required")
	}
	if opts.Pipeline == nil {
		return nil, fmt.Errorf("bot: router: pipeline is required")
	}
	if opts.Coordinator == nil {
		return nil, fmt.Errorf("bot: router: coordinator is required")
	}
	if opts.Broadcaster == nil {
		return nil, fmt.Errorf("bot: router: broadcaster is required")
	}
	if opts.PrimaryAdmin == 0 {
		return nil, fmt.Errorf("bot: router: primary admin is required")
	}
	if opts.SubscriptionChat == "" {
		return nil, fmt.Errorf("bot: router: subscription chat is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Router{
		adapter:     opts.Adapter,
		sessions:    opts.Sessions,
		accounts:    opts.Accounts,
		media:       opts.Media,
		pipeline:    opts.Pipeline,
		coordinator: opts.Coordinator,
		broadcaster: opts.Broadcaster,
		primary:     opts.PrimaryAdmin,
		subChat:     opts.SubscriptionChat,
		subURL:      opts.SubscriptionURL,
		chatLink:    opts.ChatLink,
		channelLink: opts.ChannelLink,
		out:         out,
	}, nil
}

// Handle routes a single update. Routing paths:
//  1. Button press carrying a claim token → publish
//  2. Other button press → menu screen or state machine event
//  3. /start in a private chat → subscription check and registration
//  4. Other private message → state machine
//  5. Everything else → ignore
func (r *Router) Handle(ctx context.Context, u telegraph.Update) {
	switch {
	case u.Callback != nil:
		cb := u.Callback
		fmt.Fprintf(r.out, "bot: router: recv callback [user=%d] %q\n", cb.From.ID, cb.Data)
		if relay.IsClaimToken(cb.Data) {
			r.handlePublish(ctx, cb)
			return
		}
		r.handleCallback(ctx, cb)

	case u.Message != nil && u.Message.Private:
		msg := u.Message
		fmt.Fprintf(r.out, "bot: router: recv %s [user=%d]\n", msg.Kind, msg.From.ID)
		if msg.Command == "start" {
			r.handleStart(ctx, msg)
			return
		}
		tr := r.sessions.Apply(msg.From.ID, session.Message{Msg: *msg})
		r.finish(ctx, msg.From, "", tr)
	}
}

func (r *Router) handleStart(ctx context.Context, msg *telegraph.InboundMessage) {
	user := msg.From
	subscribed, err := r.adapter.IsMember(ctx, r.subChat, user.ID)
	if err != nil {
		log.Printf("bot: start: membership of %d in %s: %v", user.ID, r.subChat, err)
		subscribed = false
	}
	if subscribed {
		r.register(user.ID)
	}
	tr := r.sessions.Apply(user.ID, session.Start{Subscribed: subscribed, JoinChat: r.subChat, JoinURL: r.subURL})
	r.finish(ctx, user, "", tr)
}

// register records a first-time user and grants the welcome credit.
func (r *Router) register(userID int64) {
	isNew, err := r.accounts.RegisterUser(userID)
	if err != nil {
		log.Printf("bot: start: register %d: %v", userID, err)
		return
	}
	if !isNew {
		return
	}
	balance, err := r.accounts.Credit(userID, WelcomeCredit)
	if err != nil {
		log.Printf("bot: start: welcome credit for %d: %v", userID, err)
		return
	}
	fmt.Fprintf(r.out, "bot: registered user %d, balance %.2f\n", userID, balance)
}

func (r *Router) handleCallback(ctx context.Context, cb *telegraph.Callback) {
	user := cb.From
	switch cb.Data {
	case session.PayloadProfile:
		r.answer(ctx, cb.ID, "", false)
		r.showProfile(ctx, user)
		return

	case session.PayloadLinks:
		r.answer(ctx, cb.ID, "", false)
		r.show(ctx, user.ID, TextLinks, session.LinksMenu(r.chatLink, r.channelLink), true)
		return

	case session.PayloadAdminPanel:
		if user.ID != r.primary {
			r.answer(ctx, cb.ID, session.TextForbidden, true)
			return
		}
		r.answer(ctx, cb.ID, "", false)
		r.show(ctx, user.ID, TextAdminPanel, session.AdminPanel(), true)
		return

	case session.PayloadSync:
		if user.ID != r.primary {
			r.answer(ctx, cb.ID, session.TextForbidden, true)
			return
		}
		r.answer(ctx, cb.ID, "", false)
		r.sync(ctx, user.ID)
		return

	case session.PayloadWithdraw:
		balance, err := r.accounts.Balance(user.ID)
		if err != nil {
			log.Printf("bot: withdraw: balance of %d: %v", user.ID, err)
			r.answer(ctx, cb.ID, TextBalanceFailed, true)
			return
		}
		fmt.Fprintf(r.out, "bot: withdraw requested by %d, balance %.2f\n", user.ID, balance)
		r.finish(ctx, user, cb.ID, r.sessions.Apply(user.ID, session.Withdraw{Balance: balance}))
		return
	}

	ev, ok := r.eventFor(user.ID, cb.Data)
	if !ok {
		log.Printf("bot: router: unknown callback payload %q from %d", cb.Data, user.ID)
		r.answer(ctx, cb.ID, "", false)
		return
	}
	r.finish(ctx, user, cb.ID, r.sessions.Apply(user.ID, ev))
}

// eventFor maps a button payload to a state machine event.
func (r *Router) eventFor(userID int64, data string) (session.Event, bool) {
	switch data {
	case session.PayloadAnon:
		return session.ChooseMode{Mode: session.Anonymous}, true
	case session.PayloadNamed:
		return session.ChooseMode{Mode: session.Named}, true
	case session.PayloadText, session.PayloadPhoto, session.PayloadVideo, session.PayloadAudio:
		return session.ChooseType{Kind: telegraph.Kind(data)}, true
	case session.PayloadConfirm:
		return session.Confirm{}, true
	case session.PayloadCancel:
		return session.Cancel{}, true
	case session.PayloadAddCaption:
		return session.AddCaption{}, true
	case session.PayloadWithdrawOK:
		return session.WithdrawConfirm{}, true
	case session.PayloadWithdrawCancel:
		return session.WithdrawCancel{}, true
	case session.PayloadDeletePost:
		return session.DeletePost{}, true
	case session.PayloadDeleteOK:
		return session.DeleteConfirm{}, true
	case session.PayloadDeleteCancel:
		return session.DeleteCancel{}, true
	case session.PayloadBroadcastStart:
		return session.BroadcastStart{Authorized: userID == r.primary}, true
	case session.PayloadBackToMenu:
		return session.BackToMenu{}, true
	}
	return nil, false
}

// finish answers the button press that caused tr, if any, performs the
// transition's action and shows its prompts. An action may replace the
// prompts with its own report.
func (r *Router) finish(ctx context.Context, user telegraph.User, callbackID string, tr session.Transition) {
	prompts := make([]session.Prompt, 0, len(tr.Prompts))
	var notice *session.Prompt
	for i, p := range tr.Prompts {
		if p.Alert && callbackID != "" && notice == nil {
			notice = &tr.Prompts[i]
			continue
		}
		prompts = append(prompts, p)
	}
	if callbackID != "" {
		if notice != nil {
			r.answer(ctx, callbackID, notice.Text, true)
		} else {
			r.answer(ctx, callbackID, "", false)
		}
	}

	if tr.Action != nil {
		if report := r.perform(ctx, user, tr.Action); report != nil {
			prompts = report
		}
	}
	for _, p := range prompts {
		kb := p.Keyboard
		if p.Menu {
			kb = session.MainMenu(user.ID == r.primary)
		}
		r.show(ctx, user.ID, p.Text, kb, p.Edit)
	}
}

// perform runs a transition's side effect.
func (r *Router) perform(ctx context.Context, user telegraph.User, action session.Action) []session.Prompt {
	switch a := action.(type) {
	case session.SaveMediaAction:
		r.saveMedia(ctx, user.ID, a)

	case session.SubmitAction:
		rep := r.pipeline.Submit(ctx, user, a.Pending)
		if rep.HistoryErr != nil {
			r.coordinator.NotifyAdmins(ctx, fmt.Sprintf("⚠️ Не удалось записать историю для пользователя (ID %d).", user.ID))
		}

	case session.WithdrawAction:
		amount, err := r.accounts.Drain(user.ID)
		if err != nil {
			log.Printf("bot: withdraw: drain %d: %v", user.ID, err)
			return []session.Prompt{{Text: TextWithdrawFailed, Menu: true}}
		}
		fmt.Fprintf(r.out, "bot: withdraw confirmed: user %d, amount %.2f\n", user.ID, amount)
		r.coordinator.NotifyAdmins(ctx, WithdrawNotice(user, amount, a.Details))

	case session.DeleteRequestAction:
		fmt.Fprintf(r.out, "bot: delete request from %d: %s\n", user.ID, a.Link)
		r.coordinator.NotifyAdmins(ctx, DeleteNotice(user, a.Link, a.Reason))

	case session.BroadcastAction:
		tally, err := r.broadcaster.Broadcast(ctx, a.Text)
		if err != nil {
			log.Printf("bot: broadcast: %v", err)
			return []session.Prompt{{Text: TextBroadcastFailed, Menu: true}}
		}
		return []session.Prompt{{Text: BroadcastReport(tally), Menu: true}}
	}
	return nil
}

func (r *Router) saveMedia(ctx context.Context, userID int64, a session.SaveMediaAction) {
	if r.media == nil {
		return
	}
	path, err := r.media.Save(ctx, a.Kind, userID, a.FileID)
	if err != nil {
		log.Printf("bot: media: save %s from %d: %v", a.Kind, userID, err)
		return
	}
	if !r.sessions.AttachMedia(userID, path) {
		log.Printf("bot: media: %s saved after the submission from %d moved on", path, userID)
	}
}

func (r *Router) handlePublish(ctx context.Context, cb *telegraph.Callback) {
	out := r.coordinator.Publish(ctx, cb.From.ID, *cb)
	switch {
	case errors.Is(out.Err, relay.ErrNotAdmin):
		r.answer(ctx, cb.ID, TextAdminOnly, true)
	case errors.Is(out.Err, relay.ErrAlreadyPublished):
		r.answer(ctx, cb.ID, TextAlreadyPublished, true)
	case errors.Is(out.Err, relay.ErrBadClaim):
		r.answer(ctx, cb.ID, TextBadClaim, true)
	case out.Err != nil:
		log.Printf("bot: publish: %v", out.Err)
		r.answer(ctx, cb.ID, TextPublishFailed, true)
	default:
		r.answer(ctx, cb.ID, TextPublished, false)
	}
}

func (r *Router) showProfile(ctx context.Context, user telegraph.User) {
	balance, err := r.accounts.Balance(user.ID)
	if err != nil {
		log.Printf("bot: profile: balance of %d: %v", user.ID, err)
	}
	posts, err := r.accounts.CountHistory(user.ID)
	if err != nil {
		log.Printf("bot: profile: history of %d: %v", user.ID, err)
	}
	r.show(ctx, user.ID, ProfileText(user, balance, posts), session.MainMenu(user.ID == r.primary), true)
}

func (r *Router) sync(ctx context.Context, userID int64) {
	counts, err := r.accounts.Reconcile()
	if err != nil {
		log.Printf("bot: sync: %v", err)
		r.show(ctx, userID, SyncFailed(err), session.AdminPanel(), true)
		return
	}
	fmt.Fprintf(r.out, "bot: sync: users=%d balances=%d history=%d\n", counts.Users, counts.Balances, counts.History)
	r.show(ctx, userID, SyncReport(counts), session.AdminPanel(), true)
}

// show displays text to the user. With edit set it replaces the last prompt
// in place, falling back to a new message when that fails.
func (r *Router) show(ctx context.Context, userID int64, text string, kb telegraph.Keyboard, edit bool) {
	if edit {
		if sess, ok := r.sessions.Peek(userID); ok && sess.LastPrompt.MessageID != 0 {
			err := r.adapter.EditText(ctx, sess.LastPrompt, text, kb)
			if err == nil {
				return
			}
			log.Printf("bot: edit prompt for %d: %v", userID, err)
		}
	}
	ref, err := r.adapter.SendText(ctx, userID, text, kb)
	if err != nil {
		log.Printf("bot: send prompt to %d: %v", userID, err)
		return
	}
	r.sessions.SetLastPrompt(userID, ref)
}

func (r *Router) answer(ctx context.Context, callbackID, text string, alert bool) {
	if err := r.adapter.AnswerCallback(ctx, callbackID, text, alert); err != nil {
		log.Printf("bot: answer callback: %v", err)
	}
}
