package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-orchestrator/internal/domain"
	"github.com/spec-kit/ticket-orchestrator/internal/events"
	"github.com/spec-kit/ticket-orchestrator/internal/gateway"
)

// inactivityWarningText is the one-shot notice posted into a quiet ticket.
const inactivityWarningText = "⚠️ This ticket has been inactive for a while. It may be closed automatically if there is no further activity."

// AutoCloser closes a ticket on behalf of the automation. Implemented by the
// lifecycle service; declared here so the scheduler does not depend on it.
type AutoCloser interface {
	CloseAutomated(ctx context.Context, workspaceID, channelID string) error
}

// ConfigSource supplies workspace configuration. Implemented by the
// read-through config cache.
type ConfigSource interface {
	Get(ctx context.Context, workspaceID string) (*domain.WorkspaceConfig, error)
	List(ctx context.Context) ([]domain.WorkspaceConfig, error)
}

// TicketSource supplies the ticket views the controller needs.
type TicketSource interface {
	GetByName(ctx context.Context, workspaceID, name string) (*domain.Ticket, error)
	ListOpen(ctx context.Context, workspaceID string) ([]domain.Ticket, error)
	ListUnclaimed(ctx context.Context, workspaceID string) ([]domain.Ticket, error)
}

// Controller wires the timer set to the gateway message stream and workspace
// configuration, and runs the periodic unclaimed-ticket sweep.
type Controller struct {
	timers     *TimerSet
	configs    ConfigSource
	tickets    TicketSource
	gw         gateway.Client
	closer     AutoCloser
	dispatcher events.Dispatcher
	logger     *zap.Logger

	sweepInterval time.Duration
	callTimeout   time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	done    sync.WaitGroup
	started bool
}

// ControllerDependencies bundles collaborators for the controller.
type ControllerDependencies struct {
	Timers     *TimerSet
	Configs    ConfigSource
	Tickets    TicketSource
	Gateway    gateway.Client
	Closer     AutoCloser
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewController creates the automation controller.
func NewController(deps ControllerDependencies, sweepInterval time.Duration) *Controller {
	return &Controller{
		timers:        deps.Timers,
		configs:       deps.Configs,
		tickets:       deps.Tickets,
		gw:            deps.Gateway,
		closer:        deps.Closer,
		dispatcher:    deps.Dispatcher,
		logger:        deps.Logger,
		sweepInterval: sweepInterval,
		callTimeout:   30 * time.Second,
	}
}

// Start performs the restart re-arm pass over all open tickets and begins the
// unclaimed sweep. It is not safe to call Start twice without Stop between.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("controller already started")
	}
	c.started = true
	c.stopCh = make(chan struct{})
	c.mu.Unlock()

	c.rearmOpenTickets(ctx)

	c.done.Add(1)
	go c.sweepLoop()

	c.logger.Info("ticket automation started", zap.Duration("sweep_interval", c.sweepInterval))
	return nil
}

// Stop cancels all pending timers and the sweep. No timer state survives;
// the next Start re-arms from persisted ticket state.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	close(c.stopCh)
	c.mu.Unlock()

	c.done.Wait()
	c.timers.CancelAll()
	c.logger.Info("ticket automation stopped")
}

// HandleMessage processes an inbound channel message: any non-automated
// message in an open ticket's channel resets that channel's inactivity
// timers.
// Claiming and other component interactions deliberately do not pass through
// here; only messages reset inactivity.
func (c *Controller) HandleMessage(ctx context.Context, workspaceID string, msg gateway.Message) {
	if msg.Bot {
		return
	}
	channel, err := c.gw.GetChannel(ctx, msg.ChannelID)
	if err != nil {
		c.logger.Warn("channel lookup failed for inactivity reset", zap.String("channel_id", msg.ChannelID), zap.Error(err))
		return
	}
	if !domain.IsTicketChannelName(channel.Name) {
		return
	}
	ticket, err := c.tickets.GetByName(ctx, workspaceID, channel.Name)
	if err != nil {
		c.logger.Warn("ticket lookup failed for inactivity reset", zap.String("channel_id", msg.ChannelID), zap.Error(err))
		return
	}
	// a message during the close grace window must not re-arm
	if ticket.IsClosed() {
		return
	}
	c.ResetTimers(ctx, workspaceID, msg.ChannelID)
}

// ResetTimers cancels and re-arms the warning and auto-close timers for a
// ticket channel from the workspace's current thresholds. Disabled policies
// arm no timer.
func (c *Controller) ResetTimers(ctx context.Context, workspaceID, channelID string) {
	cfg, err := c.configs.Get(ctx, workspaceID)
	if err != nil {
		c.logger.Warn("workspace config unavailable; timers not armed",
			zap.String("workspace_id", workspaceID), zap.Error(err))
		return
	}

	c.timers.Reset(channelID,
		cfg.WarningDelay(),
		cfg.AutoCloseDelay(),
		func() { c.fireWarning(workspaceID, channelID) },
		func() { c.fireAutoClose(workspaceID, channelID) },
	)
}

// CancelTimers drops pending timers for a channel, used when a ticket closes.
func (c *Controller) CancelTimers(channelID string) {
	c.timers.Cancel(channelID)
}

func (c *Controller) fireWarning(workspaceID, channelID string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.callTimeout)
	defer cancel()

	if _, err := c.gw.SendMessage(ctx, channelID, inactivityWarningText); err != nil {
		c.logger.Error("failed to send inactivity warning", zap.String("channel_id", channelID), zap.Error(err))
		return
	}
	c.publish(ctx, events.Event{
		Type:        events.EventInactivityWarned,
		WorkspaceID: workspaceID,
	})
}

func (c *Controller) fireAutoClose(workspaceID, channelID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// automated close failures are logged and discarded; the ticket stays
	// open until a manual close or a later reset
	if err := c.closer.CloseAutomated(ctx, workspaceID, channelID); err != nil {
		c.logger.Error("auto-close failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

func (c *Controller) rearmOpenTickets(ctx context.Context) {
	configs, err := c.configs.List(ctx)
	if err != nil {
		c.logger.Error("re-arm pass: listing workspaces failed", zap.Error(err))
		return
	}
	armed := 0
	for _, cfg := range configs {
		if !cfg.AutomationEnabled {
			continue
		}
		open, err := c.tickets.ListOpen(ctx, cfg.WorkspaceID)
		if err != nil {
			c.logger.Error("re-arm pass: listing open tickets failed",
				zap.String("workspace_id", cfg.WorkspaceID), zap.Error(err))
			continue
		}
		for _, ticket := range open {
			if ticket.ChannelID == "" || ticket.IsClosed() {
				continue
			}
			c.ResetTimers(ctx, cfg.WorkspaceID, ticket.ChannelID)
			armed++
		}
	}
	c.logger.Info("re-armed inactivity timers", zap.Int("tickets", armed))
}

func (c *Controller) sweepLoop() {
	defer c.done.Done()
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.callTimeout)
			c.SweepUnclaimed(ctx)
			cancel()
		}
	}
}

// SweepUnclaimed runs one pass of the unclaimed-ticket reminder: for every
// workspace with the policy enabled, post one aggregated reminder when the
// unclaimed set is non-empty. An empty set produces no message.
func (c *Controller) SweepUnclaimed(ctx context.Context) {
	configs, err := c.configs.List(ctx)
	if err != nil {
		c.logger.Error("unclaimed sweep: listing workspaces failed", zap.Error(err))
		return
	}

	for _, cfg := range configs {
		if !cfg.AutomationEnabled || cfg.UnclaimedReminderMinutes <= 0 || cfg.LogChannelID == "" {
			continue
		}
		unclaimed, err := c.tickets.ListUnclaimed(ctx, cfg.WorkspaceID)
		if err != nil {
			c.logger.Error("unclaimed sweep: query failed", zap.String("workspace_id", cfg.WorkspaceID), zap.Error(err))
			continue
		}
		if len(unclaimed) == 0 {
			continue
		}

		names := make([]string, 0, len(unclaimed))
		lines := make([]string, 0, len(unclaimed))
		for _, ticket := range unclaimed {
			names = append(names, ticket.Name)
			lines = append(lines, fmt.Sprintf("• %s (%s)", ticket.Name, ticket.Type))
		}
		content := fmt.Sprintf("⚠️ **Unclaimed Tickets Reminder**\n\n%s\n\nPlease assign support members to these tickets.",
			strings.Join(lines, "\n"))

		if _, err := c.gw.SendMessage(ctx, cfg.LogChannelID, content); err != nil {
			c.logger.Error("unclaimed sweep: reminder send failed",
				zap.String("workspace_id", cfg.WorkspaceID), zap.Error(err))
			continue
		}
		c.publish(ctx, events.Event{
			Type:        events.EventUnclaimedReminded,
			WorkspaceID: cfg.WorkspaceID,
			Payload:     events.UnclaimedRemindedPayload{TicketNames: names},
		})
		c.logger.Info("sent unclaimed ticket reminder",
			zap.String("workspace_id", cfg.WorkspaceID), zap.Int("tickets", len(unclaimed)))
	}
}

func (c *Controller) publish(ctx context.Context, event events.Event) {
	if c.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = time.Now()
	_ = c.dispatcher.Publish(ctx, event)
}
