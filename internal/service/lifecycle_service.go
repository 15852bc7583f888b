package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-orchestrator/internal/domain"
	"github.com/spec-kit/ticket-orchestrator/internal/events"
	"github.com/spec-kit/ticket-orchestrator/internal/gateway"
	"github.com/spec-kit/ticket-orchestrator/internal/observability"
	"github.com/spec-kit/ticket-orchestrator/internal/repository"
	apperrors "github.com/spec-kit/ticket-orchestrator/pkg/util/errorutil"
)

// Actor identifies the party invoking a lifecycle operation.
type Actor struct {
	ID  string
	Tag string
}

// SystemActor is the acting party on timer-driven transitions.
var SystemActor = Actor{ID: domain.SystemActorID, Tag: domain.SystemActorTag}

// ConfigSource supplies workspace configuration, normally the read-through
// cache.
type ConfigSource interface {
	Get(ctx context.Context, workspaceID string) (*domain.WorkspaceConfig, error)
}

// TranscriptPipeline is the capture/store/deliver contract the lifecycle
// depends on at close time.
type TranscriptPipeline interface {
	Capture(ctx context.Context, channelID string) ([]gateway.Message, error)
	Save(channelName, ownerLabel, closerLabel string, messages []gateway.Message) (string, error)
	Deliver(ctx context.Context, cfg *domain.WorkspaceConfig, ownerID, channelName, artifactPath string) (int, error)
}

// TicketTimers is the slice of the scheduler the lifecycle touches: arming
// timers on open and cancelling them on close. Claiming deliberately does
// neither.
type TicketTimers interface {
	ResetTimers(ctx context.Context, workspaceID, channelID string)
	CancelTimers(channelID string)
}

// LifecycleService owns transition validity for open/claim/forward/close and
// the concurrency-safe mutation of per-ticket claim state. Ordering per
// transition: validate, persist, then dispatch side effects; a persistence
// failure aborts before any side effect.
type LifecycleService struct {
	tickets     repository.TicketRepository
	configs     ConfigSource
	gw          gateway.Client
	transcripts TranscriptPipeline
	timers      TicketTimers
	sessions    *ForwardSessions
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger

	deleteDelay time.Duration
	locks       *keyedMutex

	mu             sync.Mutex
	pendingDeletes []*time.Timer
}

// LifecycleDependencies bundles collaborators for the service.
type LifecycleDependencies struct {
	Tickets     repository.TicketRepository
	Configs     ConfigSource
	Gateway     gateway.Client
	Transcripts TranscriptPipeline
	Timers      TicketTimers
	Sessions    *ForwardSessions
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies, channelDeleteDelay time.Duration) *LifecycleService {
	return &LifecycleService{
		tickets:     deps.Tickets,
		configs:     deps.Configs,
		gw:          deps.Gateway,
		transcripts: deps.Transcripts,
		timers:      deps.Timers,
		sessions:    deps.Sessions,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		deleteDelay: channelDeleteDelay,
		locks:       newKeyedMutex(),
	}
}

// Open creates a ticket for the owner: one open ticket per owner per
// workspace, a dedicated channel under the configured category, and a live
// status message in the log channel.
func (s *LifecycleService) Open(ctx context.Context, workspaceID string, owner Actor, ticketType string) (*domain.Ticket, error) {
	cfg, err := s.workspaceConfig(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if !cfg.Configured() {
		return nil, apperrors.NewNotConfigured(workspaceID)
	}

	existing, err := s.tickets.GetOpenByOwner(ctx, workspaceID, owner.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewPersistenceError(err)
	}
	if existing != nil {
		return nil, apperrors.NewTicketAlreadyOpen(existing.Name)
	}

	ticket := &domain.Ticket{
		WorkspaceID: workspaceID,
		Type:        ticketType,
		OwnerID:     owner.ID,
		OwnerTag:    owner.Tag,
	}

	// Channel first: a gateway failure here leaves nothing persisted and the
	// open stays retryable. The numbered name is only assigned by Insert, so
	// the channel starts under a provisional name and is renamed after.
	channel, err := s.gw.CreateChannel(ctx, workspaceID, gateway.CreateChannelRequest{
		Name:         domain.TicketChannelPrefix + owner.ID,
		ParentID:     cfg.TicketCategoryID,
		Topic:        domain.EncodeTopic(owner.ID, ""),
		AllowUserIDs: []string{owner.ID},
		AllowRoleIDs: []string{cfg.SupportRoleID},
	})
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("create ticket channel: %w", err))
	}
	ticket.ChannelID = channel.ID

	if err := s.tickets.Insert(ctx, ticket); err != nil {
		s.discardChannel(ctx, channel.ID)
		return nil, apperrors.NewPersistenceError(err)
	}
	if err := s.gw.RenameChannel(ctx, channel.ID, ticket.Name); err != nil {
		// Close resolves tickets by channel name; a mismatched name would
		// strand the row, so void it and give the channel back.
		s.voidTicket(ctx, workspaceID, ticket.Name)
		s.discardChannel(ctx, channel.ID)
		return nil, apperrors.NewInternalError(fmt.Errorf("rename ticket channel: %w", err))
	}

	welcome := fmt.Sprintf("🎫 <@%s> your %s ticket has been created. A member of <@&%s> will be with you shortly.",
		owner.ID, ticketType, cfg.SupportRoleID)
	if _, err := s.gw.SendMessage(ctx, channel.ID, welcome); err != nil {
		s.logger.Warn("welcome message failed", zap.String("ticket", ticket.Name), zap.Error(err))
	}

	s.publish(ctx, events.Event{
		Type:        events.EventTicketOpened,
		WorkspaceID: workspaceID,
		TicketName:  ticket.Name,
		ActorID:     owner.ID,
		Payload: events.TicketOpenedPayload{
			Type:      ticketType,
			OwnerID:   owner.ID,
			OwnerTag:  owner.Tag,
			ChannelID: channel.ID,
		},
	})

	s.timers.ResetTimers(ctx, workspaceID, channel.ID)
	s.metrics.RecordOp("open")
	s.logger.Info("ticket opened",
		zap.String("ticket", ticket.Name), zap.String("workspace_id", workspaceID), zap.String("owner_id", owner.ID))
	return ticket, nil
}

// Claim assigns the actor as the active responder on an unclaimed ticket.
// Claiming does not reset inactivity timers.
func (s *LifecycleService) Claim(ctx context.Context, workspaceID, channelID string, actor Actor) error {
	release := s.locks.acquire(channelID)
	defer release()

	channel, err := s.ticketChannel(ctx, channelID)
	if err != nil {
		return s.fail("claim", err)
	}
	cfg, err := s.workspaceConfig(ctx, workspaceID)
	if err != nil {
		return s.fail("claim", err)
	}
	if cfg.SupportRoleID == "" {
		return s.fail("claim", apperrors.NewNotConfigured(workspaceID))
	}

	ownerID, claimerID := domain.ParseTopic(channel.Topic)
	if actor.ID == ownerID {
		return s.fail("claim", apperrors.NewSelfClaimForbidden())
	}
	if err := s.requireSupportRole(ctx, workspaceID, actor.ID, cfg.SupportRoleID); err != nil {
		return s.fail("claim", err)
	}
	if claimerID != "" {
		return s.fail("claim", apperrors.NewAlreadyClaimed(claimerID))
	}

	if err := s.tickets.AssignSupport(ctx, workspaceID, channel.Name, actor.ID, actor.Tag); err != nil {
		return s.fail("claim", apperrors.NewPersistenceError(err))
	}

	s.applyClaimSideEffects(ctx, workspaceID, channel, ownerID, actor,
		fmt.Sprintf("✅ Ticket claimed by <@%s>.", actor.ID),
		events.Event{
			Type:        events.EventTicketClaimed,
			WorkspaceID: workspaceID,
			TicketName:  channel.Name,
			ActorID:     actor.ID,
			Payload:     events.TicketClaimedPayload{ClaimerID: actor.ID, ClaimerTag: actor.Tag},
		})
	s.metrics.RecordOp("claim")
	s.logger.Info("ticket claimed", zap.String("ticket", channel.Name), zap.String("claimer_id", actor.ID))
	return nil
}

// BeginForward validates that the actor may forward the ticket and opens a
// single-use selection session listing the eligible targets.
func (s *LifecycleService) BeginForward(ctx context.Context, workspaceID, channelID string, actor Actor) (*ForwardSession, error) {
	release := s.locks.acquire(channelID)
	defer release()

	channel, err := s.ticketChannel(ctx, channelID)
	if err != nil {
		return nil, s.fail("forward", err)
	}
	cfg, err := s.workspaceConfig(ctx, workspaceID)
	if err != nil {
		return nil, s.fail("forward", err)
	}
	if cfg.SupportRoleID == "" {
		return nil, s.fail("forward", apperrors.NewNotConfigured(workspaceID))
	}
	if err := s.requireSupportRole(ctx, workspaceID, actor.ID, cfg.SupportRoleID); err != nil {
		return nil, s.fail("forward", err)
	}

	_, claimerID := domain.ParseTopic(channel.Topic)
	if claimerID == "" {
		return nil, s.fail("forward", apperrors.NewMustBeClaimedFirst())
	}
	if actor.ID != claimerID {
		return nil, s.fail("forward", apperrors.NewUnauthorized("only the current claimer can forward this ticket"))
	}

	members, err := s.gw.ListRoleMembers(ctx, workspaceID, cfg.SupportRoleID)
	if err != nil {
		return nil, s.fail("forward", apperrors.NewInternalError(fmt.Errorf("list support members: %w", err)))
	}
	candidates := make([]gateway.Member, 0, len(members))
	for _, m := range members {
		if m.ID != actor.ID {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return nil, s.fail("forward", apperrors.NewNoOtherSupportMembers())
	}

	return s.sessions.Create(actor.ID, channelID, candidates), nil
}

// CompleteForward consumes a selection session and reassigns the ticket to
// the chosen support member.
func (s *LifecycleService) CompleteForward(ctx context.Context, workspaceID, channelID string, actor Actor, token, targetID string) error {
	release := s.locks.acquire(channelID)
	defer release()

	session, ok := s.sessions.Consume(token, actor.ID, channelID)
	if !ok {
		return s.fail("forward", apperrors.NewUnauthorized("forward session is invalid or has expired"))
	}
	if !session.Eligible(targetID) {
		return s.fail("forward", apperrors.NewUnauthorized("selected member is not an eligible forward target"))
	}

	channel, err := s.ticketChannel(ctx, channelID)
	if err != nil {
		return s.fail("forward", err)
	}
	ownerID, previousClaimer := domain.ParseTopic(channel.Topic)
	if previousClaimer == "" {
		return s.fail("forward", apperrors.NewMustBeClaimedFirst())
	}
	if targetID == ownerID {
		// a ticket's owner can never be its claimer
		return s.fail("forward", apperrors.NewSelfClaimForbidden())
	}

	var targetTag string
	for _, m := range session.Candidates {
		if m.ID == targetID {
			targetTag = m.Tag
		}
	}

	if err := s.tickets.AssignSupport(ctx, workspaceID, channel.Name, targetID, targetTag); err != nil {
		return s.fail("forward", apperrors.NewPersistenceError(err))
	}

	s.applyClaimSideEffects(ctx, workspaceID, channel, ownerID, Actor{ID: targetID, Tag: targetTag},
		fmt.Sprintf("🔁 Ticket forwarded to <@%s> by <@%s>.", targetID, actor.ID),
		events.Event{
			Type:        events.EventTicketForwarded,
			WorkspaceID: workspaceID,
			TicketName:  channel.Name,
			ActorID:     actor.ID,
			Payload: events.TicketClaimedPayload{
				ClaimerID:         targetID,
				ClaimerTag:        targetTag,
				PreviousClaimerID: previousClaimer,
			},
		})
	s.metrics.RecordOp("forward")
	s.logger.Info("ticket forwarded",
		zap.String("ticket", channel.Name), zap.String("from", actor.ID), zap.String("to", targetID))
	return nil
}

// Close terminates a ticket: captures and stores the transcript, persists
// closure, cancels its timers, dispatches notifications and delivery, and
// schedules channel deletion after the grace delay. Closing an already
// closed ticket is a success no-op.
func (s *LifecycleService) Close(ctx context.Context, workspaceID, channelID string, actor Actor, reason domain.CloseReason) error {
	release := s.locks.acquire(channelID)
	defer release()

	channel, err := s.ticketChannel(ctx, channelID)
	if err != nil {
		return s.fail("close", err)
	}

	ticket, err := s.tickets.GetByName(ctx, workspaceID, channel.Name)
	if errors.Is(err, repository.ErrNotFound) {
		return s.fail("close", apperrors.NewNotATicketChannel(channel.Name))
	}
	if err != nil {
		return s.fail("close", apperrors.NewPersistenceError(err))
	}
	if ticket.IsClosed() {
		// idempotent: racing triggers must not produce duplicate transcripts
		return nil
	}

	cfg, err := s.configs.Get(ctx, workspaceID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return s.fail("close", apperrors.NewPersistenceError(err))
	}
	if reason == domain.CloseReasonManual {
		if cfg == nil || cfg.SupportRoleID == "" {
			return s.fail("close", apperrors.NewNotConfigured(workspaceID))
		}
		if err := s.requireSupportRole(ctx, workspaceID, actor.ID, cfg.SupportRoleID); err != nil {
			return s.fail("close", err)
		}
	}

	messages, err := s.transcripts.Capture(ctx, channelID)
	if err != nil {
		return s.fail("close", err)
	}
	ownerLabel := "Unknown"
	if ticket.OwnerID != "" {
		ownerLabel = fmt.Sprintf("<@%s>", ticket.OwnerID)
	}
	closerLabel := actor.Tag
	if reason == domain.CloseReasonAutomated {
		closerLabel = "Automated System"
	}
	transcriptRef, err := s.transcripts.Save(channel.Name, ownerLabel, closerLabel, messages)
	if err != nil {
		return s.fail("close", apperrors.NewCaptureFailed(err))
	}

	closedAt := time.Now().UTC()
	if err := s.tickets.UpdateClosure(ctx, workspaceID, channel.Name, actor.ID, actor.Tag, closedAt, transcriptRef); err != nil {
		return s.fail("close", apperrors.NewPersistenceError(err))
	}

	// closure is committed; everything below is best-effort. Timers are only
	// cancelled now: an aborted close must leave the ticket watched.
	s.timers.CancelTimers(channelID)

	if _, err := s.gw.SendMessage(ctx, channelID, "🔒 This ticket has been closed. The channel will be removed shortly."); err != nil {
		s.logger.Warn("close notice failed", zap.String("ticket", channel.Name), zap.Error(err))
	}
	s.publish(ctx, events.Event{
		Type:        events.EventTicketClosed,
		WorkspaceID: workspaceID,
		TicketName:  channel.Name,
		ActorID:     actor.ID,
		Payload: events.TicketClosedPayload{
			Reason:        reason,
			SupportID:     actor.ID,
			SupportTag:    actor.Tag,
			TranscriptRef: transcriptRef,
		},
	})

	tier, err := s.transcripts.Deliver(ctx, cfg, ticket.OwnerID, channel.Name, transcriptRef)
	if err != nil {
		s.logger.Warn("transcript delivery degraded",
			zap.String("ticket", channel.Name), zap.Int("tier", tier), zap.Error(err))
	}
	s.publish(ctx, events.Event{
		Type:        events.EventTranscriptDelivered,
		WorkspaceID: workspaceID,
		TicketName:  channel.Name,
		Payload:     events.TranscriptDeliveredPayload{Tier: tier, TranscriptRef: transcriptRef},
	})

	s.scheduleChannelDelete(channelID, channel.Name)
	s.metrics.RecordOp("close")
	s.logger.Info("ticket closed",
		zap.String("ticket", channel.Name), zap.String("reason", string(reason)), zap.String("closer_id", actor.ID))
	return nil
}

// CloseAutomated closes a ticket on behalf of the inactivity automation.
// Authorization is bypassed; failures are the caller's to log and discard.
func (s *LifecycleService) CloseAutomated(ctx context.Context, workspaceID, channelID string) error {
	return s.Close(ctx, workspaceID, channelID, SystemActor, domain.CloseReasonAutomated)
}

// Shutdown cancels pending channel deletions.
func (s *LifecycleService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, timer := range s.pendingDeletes {
		timer.Stop()
	}
	s.pendingDeletes = nil
}

// applyClaimSideEffects runs the shared claim/forward side effects: topic
// metadata, channel notification, and the lifecycle event. Gateway failures
// are logged, not propagated; the transition is already persisted.
func (s *LifecycleService) applyClaimSideEffects(ctx context.Context, workspaceID string, channel *gateway.Channel, ownerID string, claimer Actor, notice string, event events.Event) {
	if err := s.gw.SetChannelTopic(ctx, channel.ID, domain.EncodeTopic(ownerID, claimer.ID)); err != nil {
		s.logger.Warn("topic update failed", zap.String("ticket", channel.Name), zap.Error(err))
	}
	if _, err := s.gw.SendMessage(ctx, channel.ID, notice); err != nil {
		s.logger.Warn("claim notice failed", zap.String("ticket", channel.Name), zap.Error(err))
	}
	s.publish(ctx, event)
}

// scheduleChannelDelete removes the channel after the grace delay so
// in-flight UI updates can complete first.
func (s *LifecycleService) scheduleChannelDelete(channelID, name string) {
	timer := time.AfterFunc(s.deleteDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.gw.DeleteChannel(ctx, channelID); err != nil {
			s.logger.Warn("channel deletion failed", zap.String("ticket", name), zap.Error(err))
		}
	})
	s.mu.Lock()
	s.pendingDeletes = append(s.pendingDeletes, timer)
	s.mu.Unlock()
}

func (s *LifecycleService) ticketChannel(ctx context.Context, channelID string) (*gateway.Channel, error) {
	channel, err := s.gw.GetChannel(ctx, channelID)
	if err != nil {
		return nil, apperrors.NewNotATicketChannel(channelID)
	}
	if !domain.IsTicketChannelName(channel.Name) {
		return nil, apperrors.NewNotATicketChannel(channel.Name)
	}
	return channel, nil
}

func (s *LifecycleService) workspaceConfig(ctx context.Context, workspaceID string) (*domain.WorkspaceConfig, error) {
	cfg, err := s.configs.Get(ctx, workspaceID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotConfigured(workspaceID)
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}
	return cfg, nil
}

func (s *LifecycleService) requireSupportRole(ctx context.Context, workspaceID, userID, roleID string) error {
	member, err := s.gw.GetMember(ctx, workspaceID, userID)
	if err != nil {
		return apperrors.NewUnauthorized("unable to verify support membership")
	}
	if !member.HasRole(roleID) {
		return apperrors.NewUnauthorized("you are not part of support")
	}
	return nil
}

// discardChannel removes a channel that never became (or no longer backs) a
// usable ticket. Best effort.
func (s *LifecycleService) discardChannel(ctx context.Context, channelID string) {
	if err := s.gw.DeleteChannel(ctx, channelID); err != nil {
		s.logger.Warn("orphan channel cleanup failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

// voidTicket closes a row whose channel setup failed so the owner is not
// blocked from opening again.
func (s *LifecycleService) voidTicket(ctx context.Context, workspaceID, name string) {
	if err := s.tickets.UpdateClosure(ctx, workspaceID, name, domain.SystemActorID, domain.SystemActorTag, time.Now().UTC(), ""); err != nil {
		s.logger.Warn("voiding stranded ticket failed", zap.String("ticket", name), zap.Error(err))
	}
}

func (s *LifecycleService) fail(op string, err error) error {
	s.metrics.RecordError(op, apperrors.ToDomainError(err).Code)
	return err
}

func (s *LifecycleService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
