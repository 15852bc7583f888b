// Package statuslog maintains one live status message per ticket in the
// workspace log channel. The message is created when a ticket opens and
// edited in place on every later transition, so the log channel shows current
// state rather than an append-only feed.
package statuslog

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-orchestrator/internal/domain"
	"github.com/spec-kit/ticket-orchestrator/internal/events"
	"github.com/spec-kit/ticket-orchestrator/internal/gateway"
	"github.com/spec-kit/ticket-orchestrator/internal/repository"
)

// ConfigSource supplies workspace configuration.
type ConfigSource interface {
	Get(ctx context.Context, workspaceID string) (*domain.WorkspaceConfig, error)
}

// Updater owns the log-channel status messages. All failures are logged and
// swallowed: the status display must never block a lifecycle transition.
type Updater struct {
	tickets repository.TicketRepository
	configs ConfigSource
	gw      gateway.Client
	logger  *zap.Logger
}

// NewUpdater constructs the updater.
func NewUpdater(tickets repository.TicketRepository, configs ConfigSource, gw gateway.Client, logger *zap.Logger) *Updater {
	return &Updater{tickets: tickets, configs: configs, gw: gw, logger: logger}
}

// Register subscribes the updater to lifecycle events.
func (u *Updater) Register(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventTicketOpened, u.onOpened)
	dispatcher.Subscribe(events.EventTicketClaimed, u.onUpdated)
	dispatcher.Subscribe(events.EventTicketForwarded, u.onUpdated)
	dispatcher.Subscribe(events.EventTicketClosed, u.onUpdated)
}

func (u *Updater) onOpened(ctx context.Context, event events.Event) error {
	cfg, err := u.configs.Get(ctx, event.WorkspaceID)
	if err != nil || cfg == nil || cfg.LogChannelID == "" {
		return nil
	}
	ticket, err := u.tickets.GetByName(ctx, event.WorkspaceID, event.TicketName)
	if err != nil {
		u.logger.Warn("status message skipped, ticket not found",
			zap.String("ticket", event.TicketName), zap.Error(err))
		return nil
	}

	msg, err := u.gw.SendMessage(ctx, cfg.LogChannelID, render(ticket))
	if err != nil {
		u.logger.Warn("status message creation failed",
			zap.String("ticket", event.TicketName), zap.Error(err))
		return nil
	}
	if err := u.tickets.SaveStatusMessage(ctx, event.WorkspaceID, event.TicketName, cfg.LogChannelID, msg.ID); err != nil {
		u.logger.Warn("status message reference not persisted",
			zap.String("ticket", event.TicketName), zap.Error(err))
	}
	return nil
}

func (u *Updater) onUpdated(ctx context.Context, event events.Event) error {
	ticket, err := u.tickets.GetByName(ctx, event.WorkspaceID, event.TicketName)
	if err != nil {
		u.logger.Warn("status update skipped, ticket not found",
			zap.String("ticket", event.TicketName), zap.Error(err))
		return nil
	}
	if ticket.LogChannelID == nil || ticket.LogMessageID == nil {
		// opened before a log channel was configured
		return nil
	}
	if err := u.gw.EditMessage(ctx, *ticket.LogChannelID, *ticket.LogMessageID, render(ticket)); err != nil {
		u.logger.Warn("status message edit failed",
			zap.String("ticket", event.TicketName), zap.Error(err))
	}
	return nil
}

// render builds the status text shown in the log channel.
func render(t *domain.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎫 **%s** (%s)\n", t.Name, t.Type)
	fmt.Fprintf(&b, "Owner: <@%s>\n", t.OwnerID)

	switch {
	case t.IsClosed():
		closer := "unknown"
		if t.ClaimerTag != nil && *t.ClaimerTag != "" {
			closer = *t.ClaimerTag
		}
		fmt.Fprintf(&b, "Status: 🔒 Closed by %s", closer)
	case t.IsClaimed():
		fmt.Fprintf(&b, "Status: ✅ Claimed by <@%s>", *t.ClaimerID)
	default:
		b.WriteString("Status: 🟡 Awaiting claim")
	}
	return b.String()
}
