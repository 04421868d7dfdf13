// Package convo implements the conversation state machine and the worker
// that drives buyer conversations from queued events.
package convo

import (
	"fmt"

	"github.com/sheetcart-ai/ops-platform/internal/model"
)

// State is the derived position of a conversation in the confirmation
// dialogue. It is not stored; it is implied by the message history, the
// stored conversation status, and the linked order's status.
type State string

const (
	StateInit          State = "init"
	StateAwaitChoice   State = "await_choice"
	StateClarify       State = "clarify"
	StateAddressChange State = "address_change"
	StateConfirmed     State = "confirmed"
	StateCancelled     State = "cancelled"
	StateClosed        State = "closed"
)

// Terminal reports whether no further automated transitions may occur.
func (s State) Terminal() bool {
	switch s {
	case StateConfirmed, StateCancelled, StateClosed:
		return true
	}
	return false
}

// Action is a plan action emitted by the language model.
type Action string

const (
	ActionConfirm         Action = "CONFIRM"
	ActionCancel          Action = "CANCEL"
	ActionAskMoreInfo     Action = "ASK_MORE_INFO"
	ActionRequestLocation Action = "REQUEST_LOCATION"
	ActionAckLocation     Action = "ACK_LOCATION"
	ActionClose           Action = "CLOSE"
)

func validAction(a Action) bool {
	switch a {
	case ActionConfirm, ActionCancel, ActionAskMoreInfo, ActionRequestLocation, ActionAckLocation, ActionClose:
		return true
	}
	return false
}

// Transition returns the state that follows applying an action in the
// current state. Terminal states admit no action at all.
func Transition(cur State, a Action) (State, error) {
	if cur.Terminal() {
		return cur, fmt.Errorf("conversation is %s: no further transitions", cur)
	}
	if a == ActionClose {
		return StateClosed, nil
	}
	switch a {
	case ActionConfirm:
		return StateConfirmed, nil
	case ActionCancel:
		return StateCancelled, nil
	case ActionAskMoreInfo:
		return StateClarify, nil
	case ActionRequestLocation:
		return StateAddressChange, nil
	case ActionAckLocation:
		return StateAwaitChoice, nil
	}
	return cur, fmt.Errorf("action %q not valid in state %s", a, cur)
}

// DeriveState reconstructs the dialogue state from what is persisted:
// conversation status, linked order status, and the last assistant turn's
// recorded action.
func DeriveState(conv *model.Conversation, order *model.Order, history []model.Message) State {
	if conv.Status == model.ConversationStatusClosed {
		return StateClosed
	}
	if order != nil {
		switch order.Status {
		case model.OrderStatusConfirmed:
			return StateConfirmed
		case model.OrderStatusCancelled:
			return StateCancelled
		}
	}

	var lastAction *Action
	hasAssistant := false
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != model.RoleAssistant {
			continue
		}
		hasAssistant = true
		if history[i].Action != nil {
			a := Action(*history[i].Action)
			lastAction = &a
		}
		break
	}

	if !hasAssistant {
		return StateInit
	}
	if lastAction != nil {
		switch *lastAction {
		case ActionAskMoreInfo:
			return StateClarify
		case ActionRequestLocation:
			return StateAddressChange
		case ActionConfirm:
			return StateConfirmed
		case ActionCancel:
			return StateCancelled
		case ActionClose:
			return StateClosed
		}
	}
	return StateAwaitChoice
}
