package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/escalation-engine/internal/config"
	"github.com/spec-kit/escalation-engine/internal/domain"
	"github.com/spec-kit/escalation-engine/internal/events"
	"github.com/spec-kit/escalation-engine/internal/observability"
)

// Notifier delivers one notification over one channel. Implementations
// must be safe for concurrent use.
type Notifier interface {
	Send(ctx context.Context, channel string, event events.Event) error
	SendToUser(ctx context.Context, channel, userID string, event events.Event) error
}

// LogNotifier writes notifications to the structured log. It stands in
// for real channel integrations (email, chat, pager) behind the same
// port.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates the notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send logs a broadcast notification.
func (n *LogNotifier) Send(ctx context.Context, channel string, event events.Event) error {
	n.logger.Info("notification",
		zap.String("channel", channel),
		zap.String("event_type", string(event.Type)),
		zap.String("escalation_id", event.EscalationID),
		zap.String("tenant_id", event.TenantID))
	return nil
}

// SendToUser logs a directed notification.
func (n *LogNotifier) SendToUser(ctx context.Context, channel, userID string, event events.Event) error {
	n.logger.Info("notification",
		zap.String("channel", channel),
		zap.String("user_id", userID),
		zap.String("event_type", string(event.Type)),
		zap.String("escalation_id", event.EscalationID),
		zap.String("tenant_id", event.TenantID))
	return nil
}

// NotificationService fans domain events out to delivery channels.
// Delivery is best-effort: a failed send is logged and counted but never
// propagated back to the state transition that caused the event.
type NotificationService struct {
	dispatcher events.Dispatcher
	notifier   Notifier
	logger     *zap.Logger
	metrics    *observability.Metrics
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, notifier Notifier, logger *zap.Logger, metrics *observability.Metrics, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		notifier:   notifier,
		logger:     logger,
		metrics:    metrics,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventEscalationCreated, n.handleEscalationCreated)
	n.dispatcher.Subscribe(events.EventEscalationAssigned, n.handleEscalationAssigned)
	n.dispatcher.Subscribe(events.EventEscalationReleased, n.handleBroadcast)
	n.dispatcher.Subscribe(events.EventPriorityEscalated, n.handlePriorityEscalated)
	n.dispatcher.Subscribe(events.EventEscalationResolved, n.handleBroadcast)
	n.dispatcher.Subscribe(events.EventResolutionAmended, n.handleBroadcast)
	n.dispatcher.Subscribe(events.EventSLABreach, n.handleSLABreach)
}

func (n *NotificationService) handleEscalationCreated(ctx context.Context, event events.Event) error {
	priority := domain.PriorityLow
	if payload, ok := event.Payload.(events.EscalationCreatedPayload); ok {
		priority = payload.Priority
	}
	n.deliver(ctx, event, n.channelsFor(priority))
	return nil
}

func (n *NotificationService) handleEscalationAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.EscalationAssignedPayload)
	if !ok {
		n.deliver(ctx, event, n.cfg.DefaultChannels)
		return nil
	}
	for _, channel := range n.channelsFor(payload.Priority) {
		if err := n.notifier.SendToUser(ctx, channel, payload.OperatorID, event); err != nil {
			n.recordFailure(channel, event, err)
		}
	}
	return nil
}

func (n *NotificationService) handlePriorityEscalated(ctx context.Context, event events.Event) error {
	priority := domain.PriorityLow
	if payload, ok := event.Payload.(events.PriorityEscalatedPayload); ok {
		priority = payload.NewPriority
	}
	n.deliver(ctx, event, n.channelsFor(priority))
	return nil
}

func (n *NotificationService) handleSLABreach(ctx context.Context, event events.Event) error {
	priority := domain.PriorityLow
	if payload, ok := event.Payload.(events.SLABreachPayload); ok {
		priority = payload.Priority
	}
	n.deliver(ctx, event, n.channelsFor(priority))
	return nil
}

func (n *NotificationService) handleBroadcast(ctx context.Context, event events.Event) error {
	n.deliver(ctx, event, n.cfg.DefaultChannels)
	return nil
}

// channelsFor layers the interruptive channel on top of the defaults
// for urgent work.
func (n *NotificationService) channelsFor(priority domain.Priority) []string {
	channels := append([]string{}, n.cfg.DefaultChannels...)
	if priority == domain.PriorityUrgent && n.cfg.InterruptiveChannel != "" {
		channels = append(channels, n.cfg.InterruptiveChannel)
	}
	return channels
}

func (n *NotificationService) deliver(ctx context.Context, event events.Event, channels []string) {
	for _, channel := range channels {
		if err := n.notifier.Send(ctx, channel, event); err != nil {
			n.recordFailure(channel, event, err)
		}
	}
}

func (n *NotificationService) recordFailure(channel string, event events.Event, err error) {
	n.metrics.RecordNotificationFailure(channel)
	n.logger.Warn("notification delivery failed",
		zap.String("channel", channel),
		zap.String("event_type", string(event.Type)),
		zap.String("escalation_id", event.EscalationID),
		zap.Error(err))
}
