package webhooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oficinapro/backend/pkg/email"
	"github.com/oficinapro/backend/pkg/logger"
)

// Notifier is told when the circuit breaker disables an endpoint.
type Notifier interface {
	EndpointDisabled(ctx context.Context, ep Endpoint) error
}

// LogNotifier writes a warning.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) EndpointDisabled(ctx context.Context, ep Endpoint) error {
	n.log.WarnContext(ctx, "webhook endpoint disabled after consecutive failures",
		logger.TenantID(ep.TenantID),
		logger.EndpointID(ep.ID),
		slog.String("url", ep.URL),
		slog.Int("consecutive_failures", ep.ConsecutiveFailures))
	return nil
}

// EmailNotifier mails an operations address.
type EmailNotifier struct {
	sender email.Sender
	to     string
}

func NewEmailNotifier(sender email.Sender, to string) *EmailNotifier {
	return &EmailNotifier{sender: sender, to: to}
}

func (n *EmailNotifier) EndpointDisabled(ctx context.Context, ep Endpoint) error {
	name := ep.Name
	if name == "" {
		name = ep.URL
	}
	return n.sender.Send(ctx, email.Message{
		To:      n.to,
		Subject: fmt.Sprintf("Webhook desativado: %s", name),
		TextBody: fmt.Sprintf(
			"O endpoint %s (%s) do tenant %s foi desativado após %d falhas consecutivas.\n"+
				"Corrija o destino e reative o endpoint para voltar a receber eventos.",
			ep.ID, ep.URL, ep.TenantID, ep.ConsecutiveFailures),
		Tag: "webhook-endpoint-disabled",
	})
}

// Notifiers fans a notification out to several notifiers.
type Notifiers []Notifier

func (ns Notifiers) EndpointDisabled(ctx context.Context, ep Endpoint) error {
	var errs []error
	for _, n := range ns {
		if err := n.EndpointDisabled(ctx, ep); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
