// Package session holds the per-user conversation state machine. Each state
// is its own type carrying only the fields that state needs; Apply advances
// a state by one event and reports what to show the user and which side
// effect, if any, the caller must perform.
package session

import (
	"github.com/zulandar/mailslot/internal/telegraph"
)

// Mode is whether a submission discloses its author.
type Mode string

// Submission modes. The values double as button payloads.
const (
	Anonymous Mode = "anon"
	Named     Mode = "non_anon"
)

// Label is the mode's display label, as recorded in history.
func (m Mode) Label() string {
	if m == Named {
		return "Не анонимное"
	}
	return "Анонимное"
}

// Pending is a captured submission awaiting confirm or cancel.
type Pending struct {
	Mode      Mode
	Kind      telegraph.Kind
	Message   telegraph.MessageRef // the user's original message, copied to admins
	Text      string               // message text, for text submissions
	Caption   string               // caption attached to the original media message
	Extra     string               // caption added through the add-caption step
	FileID    string
	MediaPath string // local copy, set once the media has been saved
}

// EffectiveCaption is the caption shown to admins: the added caption when
// present, otherwise the original one.
func (p Pending) EffectiveCaption() string {
	if p.Extra != "" {
		return p.Extra
	}
	return p.Caption
}

// State is one of the conversation states below.
type State interface {
	// Name identifies the state in logs.
	Name() string
}

// Idle is the resting state: main menu, no flow in progress.
type Idle struct{}

// ModeChosen has a mode and waits for a content type.
type ModeChosen struct {
	Mode Mode
}

// AwaitingContent waits for a message of the chosen kind.
type AwaitingContent struct {
	Mode Mode
	Kind telegraph.Kind
}

// AwaitingCaption waits for the text to attach to pending media.
type AwaitingCaption struct {
	Pending Pending
}

// AwaitingDecision holds a pending submission until confirm or cancel.
type AwaitingDecision struct {
	Pending Pending
}

// AwaitingWithdrawDetails waits for card or payment details.
type AwaitingWithdrawDetails struct {
	Balance float64
}

// AwaitingWithdrawConfirm waits for the withdrawal to be confirmed.
type AwaitingWithdrawConfirm struct {
	Balance float64
	Details string
}

// AwaitingDeleteLink waits for the link of the post to remove.
type AwaitingDeleteLink struct{}

// AwaitingDeleteReason waits for the reason the post should be removed.
type AwaitingDeleteReason struct {
	Link string
}

// AwaitingDeleteConfirm waits for the delete request to be confirmed.
type AwaitingDeleteConfirm struct {
	Link   string
	Reason string
}

// AwaitingBroadcastText waits for the text to send to every user.
type AwaitingBroadcastText struct{}

func (Idle) Name() string                    { return "idle" }
func (ModeChosen) Name() string              { return "mode_chosen" }
func (AwaitingContent) Name() string         { return "awaiting_content" }
func (AwaitingCaption) Name() string         { return "awaiting_caption" }
func (AwaitingDecision) Name() string        { return "awaiting_decision" }
func (AwaitingWithdrawDetails) Name() string { return "awaiting_withdraw_details" }
func (AwaitingWithdrawConfirm) Name() string { return "awaiting_withdraw_confirm" }
func (AwaitingDeleteLink) Name() string      { return "awaiting_delete_link" }
func (AwaitingDeleteReason) Name() string    { return "awaiting_delete_reason" }
func (AwaitingDeleteConfirm) Name() string   { return "awaiting_delete_confirm" }
func (AwaitingBroadcastText) Name() string   { return "awaiting_broadcast_text" }

// modeOf returns the mode carried by a submission state.
func modeOf(s State) (Mode, bool) {
	switch st := s.(type) {
	case ModeChosen:
		return st.Mode, true
	case AwaitingContent:
		return st.Mode, true
	case AwaitingCaption:
		return st.Pending.Mode, true
	case AwaitingDecision:
		return st.Pending.Mode, true
	}
	return "", false
}

// Session is one user's conversation.
type Session struct {
	UserID int64
	State  State
	// LastPrompt is the last message the bot showed the user, the target for
	// in-place edits. Zero when unknown.
	LastPrompt telegraph.MessageRef
}
