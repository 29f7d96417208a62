package session

import (
	"strings"

	"github.com/zulandar/mailslot/internal/telegraph"
)

// Event is an input to the state machine.
type Event interface {
	event()
}

// Start is the /start command after the subscription check.
type Start struct {
	Subscribed bool
	JoinChat   string // chat to subscribe to, e.g. "@name"
	JoinURL    string
}

// ChooseMode selects anonymous or named submission.
type ChooseMode struct{ Mode Mode }

// ChooseType selects the kind of content to submit.
type ChooseType struct{ Kind telegraph.Kind }

// Message is any non-command message from the user.
type Message struct{ Msg telegraph.InboundMessage }

// AddCaption asks to attach text to pending media.
type AddCaption struct{}

// Confirm sends the pending submission to the administrators.
type Confirm struct{}

// Cancel discards the pending submission.
type Cancel struct{}

// BackToMenu abandons any flow and shows the main menu.
type BackToMenu struct{}

// Withdraw starts a withdrawal. Balance is the user's current balance.
type Withdraw struct{ Balance float64 }

// WithdrawConfirm confirms the withdrawal under review.
type WithdrawConfirm struct{}

// WithdrawCancel abandons the withdrawal.
type WithdrawCancel struct{}

// DeletePost starts a post removal request.
type DeletePost struct{}

// DeleteConfirm confirms the removal request under review.
type DeleteConfirm struct{}

// DeleteCancel abandons the removal request.
type DeleteCancel struct{}

// BroadcastStart asks for the text of a broadcast. Authorized is true only
// for the primary administrator.
type BroadcastStart struct{ Authorized bool }

func (Start) event()           {}
func (ChooseMode) event()      {}
func (ChooseType) event()      {}
func (Message) event()         {}
func (AddCaption) event()      {}
func (Confirm) event()         {}
func (Cancel) event()          {}
func (BackToMenu) event()      {}
func (Withdraw) event()        {}
func (WithdrawConfirm) event() {}
func (WithdrawCancel) event()  {}
func (DeletePost) event()      {}
func (DeleteConfirm) event()   {}
func (DeleteCancel) event()    {}
func (BroadcastStart) event()  {}

// Action is a side effect the caller performs after a transition.
type Action interface {
	action()
}

// SubmitAction hands a confirmed submission to the submission pipeline.
type SubmitAction struct{ Pending Pending }

// SaveMediaAction stores the just-received media file; the caller records
// the resulting path with Store.AttachMedia.
type SaveMediaAction struct {
	Kind   telegraph.Kind
	FileID string
}

// WithdrawAction drains the balance and notifies the administrators.
type WithdrawAction struct{ Details string }

// DeleteRequestAction notifies the administrators of a removal request.
type DeleteRequestAction struct {
	Link   string
	Reason string
}

// BroadcastAction sends Text to every registered user.
type BroadcastAction struct{ Text string }

func (SubmitAction) action()        {}
func (SaveMediaAction) action()     {}
func (WithdrawAction) action()      {}
func (DeleteRequestAction) action() {}
func (BroadcastAction) action()     {}

// Prompt is one thing to show the user.
type Prompt struct {
	Text     string
	Keyboard telegraph.Keyboard
	// Menu attaches the main menu keyboard.
	Menu bool
	// Edit allows replacing the last prompt in place instead of sending.
	Edit bool
	// Alert shows Text as a callback alert rather than a message.
	Alert bool
}

// Transition is the result of applying one event.
type Transition struct {
	Next    State
	Prompts []Prompt
	Action  Action // nil when there is nothing to do
}

func stay(s State, prompts ...Prompt) Transition {
	return Transition{Next: s, Prompts: prompts}
}

func move(next State, prompts ...Prompt) Transition {
	return Transition{Next: next, Prompts: prompts}
}

func alert(s State, text string) Transition {
	return stay(s, Prompt{Text: text, Alert: true})
}

// Apply advances s by ev. It never fails: an event that does not fit the
// current state leaves the state unchanged with a corrective prompt.
func Apply(s State, ev Event) Transition {
	if s == nil {
		s = Idle{}
	}
	switch e := ev.(type) {
	case Start:
		if !e.Subscribed {
			kb := telegraph.Rows(telegraph.Row(telegraph.URLButton("📢 Подписаться на канал", e.JoinURL)))
			return move(Idle{}, Prompt{Text: JoinText(e.JoinChat), Keyboard: kb})
		}
		return move(Idle{}, Prompt{Text: TextGreeting, Menu: true})

	case BackToMenu:
		return move(Idle{}, Prompt{Text: TextMainMenu, Menu: true, Edit: true})

	case ChooseMode:
		return move(ModeChosen{Mode: e.Mode}, Prompt{Text: TextChooseType, Keyboard: typeMenu(), Edit: true})

	case ChooseType:
		mode, ok := modeOf(s)
		if !ok || TypePrompt(e.Kind) == "" {
			return stay(s, Prompt{Text: TextPressStart, Menu: true, Edit: true})
		}
		return move(AwaitingContent{Mode: mode, Kind: e.Kind}, Prompt{Text: TypePrompt(e.Kind), Edit: true})

	case Message:
		return applyMessage(s, e.Msg)

	case AddCaption:
		switch st := s.(type) {
		case AwaitingDecision:
			if st.Pending.Kind.IsMedia() {
				return move(AwaitingCaption{Pending: st.Pending}, Prompt{Text: TextAskCaption, Edit: true})
			}
		case AwaitingCaption:
			return stay(s, Prompt{Text: TextAskCaption, Edit: true})
		}
		return alert(s, TextNothingToTag)

	case Confirm:
		switch st := s.(type) {
		case AwaitingDecision:
			return submit(st.Pending)
		case AwaitingCaption:
			return submit(st.Pending)
		}
		return alert(s, TextNothingPending)

	case Cancel:
		switch s.(type) {
		case AwaitingDecision, AwaitingCaption:
			return move(Idle{}, Prompt{Text: TextSubmitCanceled, Menu: true, Edit: true})
		}
		return alert(s, TextNothingPending)

	case Withdraw:
		if e.Balance < WithdrawMinimum {
			return stay(s, Prompt{Text: TextWithdrawTooLow, Menu: true, Edit: true})
		}
		return move(AwaitingWithdrawDetails{Balance: e.Balance}, Prompt{Text: withdrawAsk(e.Balance), Edit: true})

	case WithdrawConfirm:
		st, ok := s.(AwaitingWithdrawConfirm)
		if !ok {
			return alert(s, TextNoWithdrawal)
		}
		return Transition{
			Next:    Idle{},
			Prompts: []Prompt{{Text: TextWithdrawDone, Menu: true}},
			Action:  WithdrawAction{Details: st.Details},
		}

	case WithdrawCancel:
		return move(Idle{}, Prompt{Text: TextWithdrawCanceled, Menu: true})

	case DeletePost:
		return move(AwaitingDeleteLink{}, Prompt{Text: TextAskDeleteLink, Edit: true})

	case DeleteConfirm:
		st, ok := s.(AwaitingDeleteConfirm)
		if !ok {
			return alert(s, TextNoDeletion)
		}
		return Transition{
			Next:    Idle{},
			Prompts: []Prompt{{Text: TextDeleteDone, Menu: true}},
			Action:  DeleteRequestAction{Link: st.Link, Reason: st.Reason},
		}

	case DeleteCancel:
		return move(Idle{}, Prompt{Text: TextDeleteCanceled, Menu: true})

	case BroadcastStart:
		if !e.Authorized {
			return alert(s, TextForbidden)
		}
		return move(AwaitingBroadcastText{}, Prompt{Text: TextAskBroadcast, Edit: true})
	}
	return stay(s)
}

func submit(p Pending) Transition {
	return Transition{
		Next:    Idle{},
		Prompts: []Prompt{{Text: TextSubmitted, Menu: true, Edit: true}},
		Action:  SubmitAction{Pending: p},
	}
}

// textOf returns the trimmed text of a plain text message, or "".
func textOf(m telegraph.InboundMessage) string {
	if m.Kind != telegraph.KindText {
		return ""
	}
	return strings.TrimSpace(m.Text)
}

func applyMessage(s State, m telegraph.InboundMessage) Transition {
	text := textOf(m)
	switch st := s.(type) {
	case ModeChosen:
		return stay(s, Prompt{Text: TextChooseType, Keyboard: typeMenu()})

	case AwaitingContent:
		return acceptContent(s, st.Mode, st.Kind, m)

	case AwaitingDecision:
		return acceptContent(s, st.Pending.Mode, st.Pending.Kind, m)

	case AwaitingCaption:
		if text == "" {
			return stay(s, Prompt{Text: TextAskCaption})
		}
		p := st.Pending
		p.Extra = text
		return move(AwaitingDecision{Pending: p}, Prompt{Text: TextCaptionSaved, Keyboard: decisionMenu(false)})

	case AwaitingWithdrawDetails:
		if text == "" {
			return stay(s, Prompt{Text: withdrawAsk(st.Balance)})
		}
		return move(AwaitingWithdrawConfirm{Balance: st.Balance, Details: text},
			Prompt{Text: withdrawReview(text, st.Balance), Keyboard: withdrawMenu()})

	case AwaitingWithdrawConfirm:
		return stay(s, Prompt{Text: withdrawReview(st.Details, st.Balance), Keyboard: withdrawMenu()})

	case AwaitingDeleteLink:
		if text == "" {
			return stay(s, Prompt{Text: TextAskDeleteLink})
		}
		return move(AwaitingDeleteReason{Link: text}, Prompt{Text: TextAskDeleteReason})

	case AwaitingDeleteReason:
		if text == "" {
			return stay(s, Prompt{Text: TextAskDeleteReason})
		}
		return move(AwaitingDeleteConfirm{Link: st.Link, Reason: text},
			Prompt{Text: deleteReview(st.Link, text), Keyboard: deleteMenu()})

	case AwaitingDeleteConfirm:
		return stay(s, Prompt{Text: deleteReview(st.Link, st.Reason), Keyboard: deleteMenu()})

	case AwaitingBroadcastText:
		if text == "" {
			return stay(s, Prompt{Text: TextAskBroadcast})
		}
		return Transition{Next: Idle{}, Action: BroadcastAction{Text: m.Text}}
	}
	return stay(s, Prompt{Text: TextPressStart, Menu: true})
}

// acceptContent captures m as the pending submission when it has the
// expected kind. Anything else leaves s unchanged and repeats the request
// for that kind.
func acceptContent(s State, mode Mode, kind telegraph.Kind, m telegraph.InboundMessage) Transition {
	if m.Kind != kind || (kind == telegraph.KindText && textOf(m) == "") {
		return stay(s, Prompt{Text: TextWrongContent}, Prompt{Text: TypePrompt(kind)})
	}
	p := Pending{Mode: mode, Kind: kind, Message: m.Ref}
	if kind == telegraph.KindText {
		p.Text = m.Text
		return move(AwaitingDecision{Pending: p}, Prompt{Text: textPreview(m.Text), Keyboard: decisionMenu(false)})
	}
	p.Caption = m.Caption
	p.FileID = m.FileID
	return Transition{
		Next:    AwaitingDecision{Pending: p},
		Prompts: []Prompt{{Text: TextMediaReceived, Keyboard: decisionMenu(true)}},
		Action:  SaveMediaAction{Kind: kind, FileID: m.FileID},
	}
}
