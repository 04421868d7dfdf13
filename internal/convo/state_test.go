package convo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetcart-ai/ops-platform/internal/model"
)

func TestTransitions(t *testing.T) {
	tests := []struct {
		from   State
		action Action
		want   State
	}{
		{StateInit, ActionConfirm, StateConfirmed},
		{StateAwaitChoice, ActionConfirm, StateConfirmed},
		{StateAwaitChoice, ActionCancel, StateCancelled},
		{StateAwaitChoice, ActionAskMoreInfo, StateClarify},
		{StateClarify, ActionConfirm, StateConfirmed},
		{StateAwaitChoice, ActionRequestLocation, StateAddressChange},
		{StateAddressChange, ActionAckLocation, StateAwaitChoice},
		{StateInit, ActionClose, StateClosed},
		{StateClarify, ActionClose, StateClosed},
	}
	for _, tt := range tests {
		got, err := Transition(tt.from, tt.action)
		require.NoError(t, err, "%s + %s", tt.from, tt.action)
		assert.Equal(t, tt.want, got, "%s + %s", tt.from, tt.action)
	}
}

func TestTerminalStatesAdmitNoAction(t *testing.T) {
	for _, s := range []State{StateConfirmed, StateCancelled, StateClosed} {
		for _, a := range []Action{ActionConfirm, ActionCancel, ActionAskMoreInfo, ActionClose} {
			_, err := Transition(s, a)
			assert.Error(t, err, "%s must reject %s", s, a)
		}
	}
}

func TestDeriveState(t *testing.T) {
	open := &model.Conversation{Status: model.ConversationStatusActive}
	action := func(a Action) *string { s := string(a); return &s }

	t.Run("closed conversation wins", func(t *testing.T) {
		conv := &model.Conversation{Status: model.ConversationStatusClosed}
		assert.Equal(t, StateClosed, DeriveState(conv, nil, nil))
	})

	t.Run("order status wins over history", func(t *testing.T) {
		ord := &model.Order{Status: model.OrderStatusConfirmed}
		history := []model.Message{{Role: model.RoleAssistant, Action: action(ActionAskMoreInfo)}}
		assert.Equal(t, StateConfirmed, DeriveState(open, ord, history))

		ord.Status = model.OrderStatusCancelled
		assert.Equal(t, StateCancelled, DeriveState(open, ord, history))
	})

	t.Run("no assistant turn means init", func(t *testing.T) {
		history := []model.Message{{Role: model.RoleUser, Content: "hello"}}
		assert.Equal(t, StateInit, DeriveState(open, nil, history))
	})

	t.Run("greeting without action means awaiting choice", func(t *testing.T) {
		history := []model.Message{{Role: model.RoleAssistant, Content: "hi"}}
		assert.Equal(t, StateAwaitChoice, DeriveState(open, nil, history))
	})

	t.Run("last assistant action drives the state", func(t *testing.T) {
		history := []model.Message{
			{Role: model.RoleAssistant, Action: action(ActionAskMoreInfo)},
			{Role: model.RoleUser, Content: "which size?"},
		}
		assert.Equal(t, StateClarify, DeriveState(open, nil, history))

		history[0].Action = action(ActionRequestLocation)
		assert.Equal(t, StateAddressChange, DeriveState(open, nil, history))
	})
}
