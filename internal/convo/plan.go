package convo

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/sheetcart-ai/ops-platform/internal/model"
)

// ErrPlanUnparseable marks a turn whose model output did not parse as a
// valid plan. The turn is aborted with no side effects: nothing is sent,
// no state or order status changes. Guessing would risk sending a garbled
// reply to the buyer.
var ErrPlanUnparseable = errors.New("conversation plan unparseable")

// Plan is the structured decision the model returns for one turn.
type Plan struct {
	Action      Action `json:"action"`
	Message     string `json:"message"`
	Status      string `json:"status,omitempty"`
	Need        string `json:"need,omitempty"`
	AddressText string `json:"address_text,omitempty"`
}

// ParsePlan extracts and validates a plan from raw model output. Output
// may be fenced or wrapped in prose; anything that does not yield a valid
// action is ErrPlanUnparseable.
func ParsePlan(content string) (*Plan, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, ErrPlanUnparseable
	}

	var p Plan
	if err := json.Unmarshal([]byte(content[start:end+1]), &p); err != nil {
		return nil, ErrPlanUnparseable
	}

	p.Action = Action(strings.ToUpper(strings.TrimSpace(string(p.Action))))
	if !validAction(p.Action) {
		return nil, ErrPlanUnparseable
	}
	if p.Message == "" && p.Action != ActionClose {
		return nil, ErrPlanUnparseable
	}
	switch p.Status {
	case "", "processing", "completed", "cancelled":
	default:
		return nil, ErrPlanUnparseable
	}
	return &p, nil
}

// OrderStatus maps the plan's status field onto the order lifecycle.
// "completed" lands as confirmed, the terminal happy-path order status.
func (p *Plan) OrderStatus() (model.OrderStatus, bool) {
	switch p.Status {
	case "processing":
		return model.OrderStatusProcessing, true
	case "completed":
		return model.OrderStatusConfirmed, true
	case "cancelled":
		return model.OrderStatusCancelled, true
	}
	return "", false
}
