package convo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sheetcart-ai/ops-platform/internal/channel"
	"github.com/sheetcart-ai/ops-platform/internal/model"
	"github.com/sheetcart-ai/ops-platform/pkg/logger"
	"github.com/sheetcart-ai/ops-platform/pkg/metrics"
)

// ConversationStore persists conversations and their turns.
type ConversationStore interface {
	FindOrCreateConversation(ctx context.Context, storeID, contact, origin string, customerID, orderID *string, locale string) (*model.Conversation, error)
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	SetConversationStatus(ctx context.Context, id string, status model.ConversationStatus) error
	LinkConversationOrder(ctx context.Context, id, orderID string) error
	AppendMessage(ctx context.Context, msg *model.Message) error
	History(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
}

// OrderStore reads and transitions orders linked to conversations.
type OrderStore interface {
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	SetOrderStatus(ctx context.Context, id string, status model.OrderStatus) error
	GetCustomer(ctx context.Context, id string) (*model.Customer, error)
}

// ChannelRegistry resolves the tenant's sender.
type ChannelRegistry interface {
	Resolve(ctx context.Context, storeID string) (channel.Sender, *model.ChannelConfig, error)
}

// ChannelToucher updates channel last-used bookkeeping, best effort.
type ChannelToucher interface {
	TouchChannelConfig(ctx context.Context, storeID string) error
}

// WorkerConfig tunes the conversation worker.
type WorkerConfig struct {
	DefaultLocale string
	AutoStart     bool
	SendTimeout   time.Duration
}

// Worker consumes conversation events, runs the state machine, persists
// turns, and dispatches replies. Jobs for the same conversation id are
// serialized; different conversations run concurrently.
type Worker struct {
	convs    ConversationStore
	orders   OrderStore
	channels ChannelRegistry
	toucher  ChannelToucher
	engine   *Engine
	cfg      WorkerConfig
	log      *logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewWorker creates a conversation worker.
func NewWorker(
	convs ConversationStore,
	orders OrderStore,
	channels ChannelRegistry,
	toucher ChannelToucher,
	engine *Engine,
	cfg WorkerConfig,
	log *logger.Logger,
) *Worker {
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = "en"
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	return &Worker{
		convs:    convs,
		orders:   orders,
		channels: channels,
		toucher:  toucher,
		engine:   engine,
		cfg:      cfg,
		log:      log.Component("convo-worker"),
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing one conversation id. The map only
// grows; conversation cardinality per process lifetime is small.
func (w *Worker) lockFor(conversationID string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.locks[conversationID]
	if !ok {
		m = &sync.Mutex{}
		w.locks[conversationID] = m
	}
	return m
}

// HandleOrderUpserted optionally opens outreach for a freshly upserted
// order. Orders without a reachable customer are skipped quietly.
func (w *Worker) HandleOrderUpserted(ctx context.Context, evt model.OrderUpserted) error {
	if !w.cfg.AutoStart {
		return nil
	}

	order, err := w.orders.GetOrder(ctx, evt.OrderID)
	if err != nil {
		return fmt.Errorf("failed to load order %s: %w", evt.OrderID, err)
	}
	if order.CustomerID == nil {
		return nil
	}
	cust, err := w.orders.GetCustomer(ctx, *order.CustomerID)
	if err != nil {
		return fmt.Errorf("failed to load customer for order %s: %w", evt.OrderID, err)
	}
	if cust.Phone == nil || *cust.Phone == "" {
		return nil
	}

	return w.HandleStart(ctx, model.ConversationStart{
		StoreID:    evt.StoreID,
		To:         *cust.Phone,
		CustomerID: cust.ID,
		OrderID:    order.ID,
	})
}

// HandleStart resolves or creates the conversation and sends the opening
// message. Supplied buyer text is persisted and drives a planned turn;
// without it the opener is a locale-appropriate greeting.
func (w *Worker) HandleStart(ctx context.Context, evt model.ConversationStart) error {
	sender, chCfg, err := w.channels.Resolve(ctx, evt.StoreID)
	if err != nil {
		return err
	}

	locale := evt.Locale
	if locale == "" {
		locale = w.cfg.DefaultLocale
	}
	var customerID, orderID *string
	if evt.CustomerID != "" {
		customerID = &evt.CustomerID
	}
	if evt.OrderID != "" {
		orderID = &evt.OrderID
	}

	conv, err := w.convs.FindOrCreateConversation(ctx, evt.StoreID, evt.To, sender.Name(), customerID, orderID, locale)
	if err != nil {
		return err
	}
	if conv.OrderID == nil && orderID != nil {
		if err := w.convs.LinkConversationOrder(ctx, conv.ID, *orderID); err != nil {
			w.log.Warn("failed to link order", zap.String("conversation_id", conv.ID), zap.Error(err))
		} else {
			conv.OrderID = orderID
		}
	}

	lock := w.lockFor(conv.ID)
	lock.Lock()
	defer lock.Unlock()

	if evt.BuyerText != "" {
		if err := w.convs.SetConversationStatus(ctx, conv.ID, model.ConversationStatusActive); err != nil {
			w.log.Warn("failed to activate conversation", zap.String("conversation_id", conv.ID), zap.Error(err))
		}
		return w.turn(ctx, conv, sender, chCfg, locale, evt.BuyerText, evt.Context)
	}

	body := greeting(locale, chCfg.DisplayName)
	if err := w.persistTurn(ctx, conv, model.RoleAssistant, body, nil, nil); err != nil {
		return err
	}
	if err := w.convs.SetConversationStatus(ctx, conv.ID, model.ConversationStatusActive); err != nil {
		w.log.Warn("failed to activate conversation", zap.String("conversation_id", conv.ID), zap.Error(err))
	}

	w.dispatch(ctx, conv, sender, body)
	return nil
}

// HandleUserMessage runs one planned turn for an inbound buyer message.
func (w *Worker) HandleUserMessage(ctx context.Context, evt model.ConversationUserMessage) error {
	sender, chCfg, err := w.channels.Resolve(ctx, evt.StoreID)
	if err != nil {
		return err
	}

	locale := evt.Locale
	if locale == "" {
		locale = w.cfg.DefaultLocale
	}

	var conv *model.Conversation
	if evt.ConversationID != "" {
		conv, err = w.convs.GetConversation(ctx, evt.ConversationID)
	} else {
		conv, err = w.convs.FindOrCreateConversation(ctx, evt.StoreID, evt.To, sender.Name(), nil, nil, locale)
	}
	if err != nil {
		return err
	}
	if conv.Locale != "" {
		locale = conv.Locale
	}

	lock := w.lockFor(conv.ID)
	lock.Lock()
	defer lock.Unlock()

	return w.turn(ctx, conv, sender, chCfg, locale, evt.Text, evt.Context)
}

// turn runs one planned exchange for inbound buyer text: persist the user
// turn, step the state machine, apply the plan, persist the reply, and
// dispatch it. The caller holds the conversation lock.
func (w *Worker) turn(ctx context.Context, conv *model.Conversation, sender channel.Sender, chCfg *model.ChannelConfig, locale, text, extra string) error {
	var order *model.Order
	var err error
	if conv.OrderID != nil {
		order, err = w.orders.GetOrder(ctx, *conv.OrderID)
		if err != nil {
			return fmt.Errorf("failed to load linked order: %w", err)
		}
	}

	history, err := w.convs.History(ctx, conv.ID, 50)
	if err != nil {
		return err
	}

	if cur := DeriveState(conv, order, history); cur.Terminal() {
		w.log.Info("terminal conversation, ignoring inbound message",
			zap.String("conversation_id", conv.ID),
			zap.String("state", string(cur)))
		return nil
	}

	// A redelivered event finds its own user turn as the newest history
	// entry; re-persisting it would duplicate the transcript.
	if n := len(history); n > 0 && history[n-1].Role == model.RoleUser && history[n-1].Content == text {
		w.log.Debug("user turn already recorded, continuing redelivered turn",
			zap.String("conversation_id", conv.ID))
	} else {
		if err := w.persistTurn(ctx, conv, model.RoleUser, text, nil, nil); err != nil {
			return err
		}
		history = append(history, model.Message{Role: model.RoleUser, Content: text})
	}

	result, err := w.engine.Step(ctx, conv, history, TurnContext{
		StoreName: chCfg.DisplayName,
		Locale:    locale,
		Order:     order,
		Context:   extra,
	})
	if errors.Is(err, ErrPlanUnparseable) {
		// Silence, not garbage: the buyer gets nothing for this turn and
		// no state or order status moves.
		metrics.PlanFailures.WithLabelValues(conv.StoreID).Inc()
		w.log.Warn("plan unparseable, turn aborted", zap.String("conversation_id", conv.ID))
		return nil
	}
	if err != nil {
		return err
	}

	if status, ok := result.Plan.OrderStatus(); ok && conv.OrderID != nil {
		if err := w.orders.SetOrderStatus(ctx, *conv.OrderID, status); err != nil {
			return fmt.Errorf("failed to apply order status: %w", err)
		}
	}

	action := string(result.Plan.Action)
	if err := w.persistTurn(ctx, conv, model.RoleAssistant, result.Plan.Message, &action, result); err != nil {
		return err
	}

	convStatus := model.ConversationStatusActive
	if result.NextState.Terminal() {
		convStatus = model.ConversationStatusClosed
	}
	if err := w.convs.SetConversationStatus(ctx, conv.ID, convStatus); err != nil {
		w.log.Warn("failed to update conversation status", zap.String("conversation_id", conv.ID), zap.Error(err))
	}

	if result.Plan.Message != "" {
		w.dispatch(ctx, conv, sender, result.Plan.Message)
	}
	return nil
}

// dispatch sends the reply. Send failure is recorded as a system turn;
// the already-persisted turns stay, the conversation record remains the
// source of truth.
func (w *Worker) dispatch(ctx context.Context, conv *model.Conversation, sender channel.Sender, body string) {
	sendCtx, cancel := context.WithTimeout(ctx, w.cfg.SendTimeout)
	defer cancel()

	if _, err := sender.Send(sendCtx, conv.Contact, body); err != nil {
		metrics.DispatchTotal.WithLabelValues(sender.Name(), "error").Inc()
		w.log.Error("channel send failed",
			zap.String("conversation_id", conv.ID),
			zap.String("provider", sender.Name()),
			zap.Error(err))
		note := fmt.Sprintf("dispatch failed via %s: %v", sender.Name(), err)
		if perr := w.persistTurn(ctx, conv, model.RoleSystem, note, nil, nil); perr != nil {
			w.log.Error("failed to record dispatch failure", zap.Error(perr))
		}
		return
	}
	metrics.DispatchTotal.WithLabelValues(sender.Name(), "success").Inc()

	// Last-used bookkeeping is fire-and-forget after the send; its
	// failure never reaches the caller.
	go func() {
		touchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.toucher.TouchChannelConfig(touchCtx, conv.StoreID); err != nil {
			w.log.Debug("failed to touch channel config", zap.String("store_id", conv.StoreID), zap.Error(err))
		}
	}()
}

func (w *Worker) persistTurn(ctx context.Context, conv *model.Conversation, role model.Role, content string, action *string, result *StepResult) error {
	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		StoreID:        conv.StoreID,
		Role:           role,
		Content:        content,
		Action:         action,
		CreatedAt:      time.Now(),
	}
	if result != nil {
		msg.Model = &result.ModelName
		msg.LatencyMs = &result.LatencyMs
	}
	if err := w.convs.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to persist %s turn: %w", role, err)
	}
	metrics.ConversationTurns.WithLabelValues(conv.StoreID, string(role)).Inc()
	return nil
}

// greeting returns the locale-appropriate opener.
func greeting(locale, storeName string) string {
	if storeName == "" {
		storeName = "our store"
	}
	switch locale {
	case "fr":
		return fmt.Sprintf("Bonjour ! Ici %s. Nous avons bien reçu votre commande. Répondez OUI pour confirmer ou NON pour annuler.", storeName)
	case "ar":
		return fmt.Sprintf("مرحباً! معك %s. استلمنا طلبك. رد بنعم للتأكيد أو لا للإلغاء.", storeName)
	default:
		return fmt.Sprintf("Hello! This is %s. We received your order. Reply YES to confirm or NO to cancel.", storeName)
	}
}
