package presenter

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"callsync-core/internal/domain"
	"callsync-core/pkg/logger"
)

// Notifier delivers a best-effort local notification
type Notifier interface {
	Deliver(ctx context.Context, title, body string, data map[string]string) error
}

// NotificationPresenter is the last fallback in the chain: a plain
// notification instead of a call surface. It cannot be dismissed remotely,
// so Dismiss is a no-op.
type NotificationPresenter struct {
	notifier Notifier
}

// NewNotificationPresenter creates a NotificationPresenter
func NewNotificationPresenter(notifier Notifier) *NotificationPresenter {
	return &NotificationPresenter{notifier: notifier}
}

// Name implements Presenter
func (p *NotificationPresenter) Name() string {
	return "notification"
}

// Present implements Presenter
func (p *NotificationPresenter) Present(ctx context.Context, session *domain.CallSession) error {
	title := "Incoming Call"
	body := fmt.Sprintf("%s is calling you", session.CallerDisplayName)
	data := map[string]string{
		"type":      "call",
		"call_id":   session.CallID.String(),
		"caller_id": session.CallerID,
		"call_kind": string(session.CallKind),
	}

	if err := p.notifier.Deliver(ctx, title, body, data); err != nil {
		return fmt.Errorf("failed to deliver call notification: %w", err)
	}
	return nil
}

// Dismiss implements Presenter
func (p *NotificationPresenter) Dismiss(ctx context.Context, callID uuid.UUID) error {
	logger.Debug("Notification presenter has nothing to dismiss",
		zap.String("call_id", callID.String()))
	return nil
}

// LogNotifier is a Notifier that only logs, used in development and tests
type LogNotifier struct{}

// Deliver implements Notifier
func (n *LogNotifier) Deliver(ctx context.Context, title, body string, data map[string]string) error {
	logger.Info("Notification delivered",
		zap.String("title", title),
		zap.String("body", body),
		zap.Any("data", data))
	return nil
}
