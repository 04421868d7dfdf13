package convo

import (
	"context"
	"fmt"
	"strings"

	"github.com/sheetcart-ai/ops-platform/internal/llm"
	"github.com/sheetcart-ai/ops-platform/internal/model"
	"github.com/sheetcart-ai/ops-platform/pkg/logger"
	"github.com/sheetcart-ai/ops-platform/pkg/metrics"
)

// StepResult is the outcome of one successfully planned turn.
type StepResult struct {
	Plan      *Plan
	NextState State
	ModelName string
	LatencyMs int64
}

// TurnContext carries the tenant framing for one turn.
type TurnContext struct {
	StoreName string
	Locale    string
	Order     *model.Order
	Context   string
}

// Engine owns the lifecycle of one conversational turn: it derives the
// current state, asks the model for a plan, and computes the transition.
// It never mutates anything; the worker applies the result.
type Engine struct {
	client    llm.Client
	modelName string
	log       *logger.Logger
}

// NewEngine creates a conversation engine.
func NewEngine(client llm.Client, modelName string, log *logger.Logger) *Engine {
	return &Engine{client: client, modelName: modelName, log: log.Component("convo-engine")}
}

// Step plans the next turn for a conversation. The caller must have
// already persisted the latest user turn into history. An unparseable
// plan or an invalid transition aborts the turn: ErrPlanUnparseable is
// returned and nothing may be sent or transitioned.
func (e *Engine) Step(ctx context.Context, conv *model.Conversation, history []model.Message, tc TurnContext) (*StepResult, error) {
	cur := DeriveState(conv, tc.Order, history)
	if cur.Terminal() {
		return nil, fmt.Errorf("conversation %s is %s: no further automated turns", conv.ID, cur)
	}

	messages := []llm.ChatMessage{{Role: "system", Content: systemPrompt(tc)}}
	for _, m := range history {
		switch m.Role {
		case model.RoleUser:
			messages = append(messages, llm.ChatMessage{Role: "user", Content: m.Content})
		case model.RoleAssistant, model.RoleAgent:
			messages = append(messages, llm.ChatMessage{Role: "assistant", Content: m.Content})
		}
		// System turns are internal audit notes; the model never sees them.
	}

	resp, err := e.client.Complete(ctx, &llm.CompletionRequest{
		Model:       e.modelName,
		Messages:    messages,
		Temperature: 0.2,
	})
	if err != nil {
		metrics.RecordLLMCall(e.client.Name(), "plan", "error", 0, e.modelName, 0, 0)
		return nil, fmt.Errorf("plan call failed: %w", err)
	}
	metrics.RecordLLMCall(e.client.Name(), "plan", "success",
		float64(resp.LatencyMs)/1000.0, resp.Model, resp.TokensIn, resp.TokensOut)

	plan, err := ParsePlan(resp.Content)
	if err != nil {
		return nil, err
	}

	next, err := Transition(cur, plan.Action)
	if err != nil {
		// A parseable plan whose action is impossible here is just as
		// unsafe to act on as garbage output.
		return nil, ErrPlanUnparseable
	}

	return &StepResult{
		Plan:      plan,
		NextState: next,
		ModelName: resp.Model,
		LatencyMs: resp.LatencyMs,
	}, nil
}

func systemPrompt(tc TurnContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the order-confirmation assistant for the store %q. Reply in locale %q.\n", tc.StoreName, tc.Locale)
	b.WriteString("Keep every reply to 1-2 sentences. Always drive toward confirming the order, cancelling it, or asking exactly one clarifying question.\n")
	b.WriteString("Respond with a single JSON object only: ")
	b.WriteString(`{"action": "CONFIRM|CANCEL|ASK_MORE_INFO|REQUEST_LOCATION|ACK_LOCATION|CLOSE", "message": string, "status": "processing|completed|cancelled" (optional), "need": string (optional), "address_text": string (optional)}` + "\n")
	b.WriteString("Set status=completed when the buyer confirms, status=cancelled when they cancel.\n")

	if tc.Order != nil {
		fmt.Fprintf(&b, "\nOrder %s (status %s):\n", tc.Order.ExternalKey, tc.Order.Status)
		for _, it := range tc.Order.Items {
			title := ""
			if it.Title != nil {
				title = *it.Title
			}
			if it.Price != nil {
				fmt.Fprintf(&b, "- %dx %s @ %.2f\n", it.Qty, title, *it.Price)
			} else {
				fmt.Fprintf(&b, "- %dx %s\n", it.Qty, title)
			}
		}
		if tc.Order.Total != nil {
			fmt.Fprintf(&b, "Total: %.2f %s\n", *tc.Order.Total, tc.Order.Currency)
		}
	}
	if tc.Context != "" {
		fmt.Fprintf(&b, "\nAdditional context: %s\n", tc.Context)
	}
	return b.String()
}
