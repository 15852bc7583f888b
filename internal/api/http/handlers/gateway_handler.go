package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-orchestrator/internal/api/dto"
	"github.com/spec-kit/ticket-orchestrator/internal/domain"
	"github.com/spec-kit/ticket-orchestrator/internal/gateway"
	"github.com/spec-kit/ticket-orchestrator/internal/service"
	apperrors "github.com/spec-kit/ticket-orchestrator/pkg/util/errorutil"
)

// MessageSink consumes channel messages for inactivity tracking.
type MessageSink interface {
	HandleMessage(ctx context.Context, workspaceID string, msg gateway.Message)
}

// GatewayHandler receives event pushes from the chat gateway and routes them
// into the lifecycle.
type GatewayHandler struct {
	lifecycle *service.LifecycleService
	messages  MessageSink
}

// NewGatewayHandler constructs handler.
func NewGatewayHandler(lifecycle *service.LifecycleService, messages MessageSink) *GatewayHandler {
	return &GatewayHandler{lifecycle: lifecycle, messages: messages}
}

// Receive POST /webhook/gateway.
func (h *GatewayHandler) Receive(c *fiber.Ctx) error {
	var event dto.GatewayEvent
	if err := c.BodyParser(&event); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if event.WorkspaceID == "" {
		return apperrors.NewValidationError("workspace_id required", nil)
	}

	switch event.Type {
	case dto.EventMessageCreated:
		return h.onMessage(c, event)
	case dto.EventButtonPressed:
		return h.onButton(c, event)
	case dto.EventCommandInvoked:
		return h.onCommand(c, event)
	default:
		return apperrors.NewValidationError("unknown event type", map[string]any{"type": event.Type})
	}
}

func (h *GatewayHandler) onMessage(c *fiber.Ctx, event dto.GatewayEvent) error {
	if event.ChannelID == "" || event.Message == nil {
		return apperrors.NewValidationError("channel_id and message required", nil)
	}
	h.messages.HandleMessage(c.UserContext(), event.WorkspaceID, gateway.Message{
		ID:        event.Message.ID,
		ChannelID: event.ChannelID,
		AuthorID:  event.Actor.ID,
		AuthorTag: event.Actor.Tag,
		Content:   event.Message.Content,
		Bot:       event.Actor.Bot,
	})
	return c.SendStatus(http.StatusAccepted)
}

func (h *GatewayHandler) onButton(c *fiber.Ctx, event dto.GatewayEvent) error {
	if event.ChannelID == "" || event.Button == nil {
		return apperrors.NewValidationError("channel_id and button required", nil)
	}
	actor := service.Actor{ID: event.Actor.ID, Tag: event.Actor.Tag}

	action, token := dto.NormalizeButtonAction(event.Button.CustomID)
	switch action {
	case dto.ActionClaim:
		if err := h.lifecycle.Claim(c.UserContext(), event.WorkspaceID, event.ChannelID, actor); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": fiber.Map{"status": "claimed"}})

	case dto.ActionClose:
		if err := h.lifecycle.Close(c.UserContext(), event.WorkspaceID, event.ChannelID, actor, domain.CloseReasonManual); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": fiber.Map{"status": "closed"}})

	case dto.ActionForward:
		session, err := h.lifecycle.BeginForward(c.UserContext(), event.WorkspaceID, event.ChannelID, actor)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": forwardSession(session)})

	case dto.ActionForwardSelect:
		if token == "" || event.Button.Value == "" {
			return apperrors.NewValidationError("forward selection requires token and value", nil)
		}
		if err := h.lifecycle.CompleteForward(c.UserContext(), event.WorkspaceID, event.ChannelID, actor, token, event.Button.Value); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": fiber.Map{"status": "forwarded"}})

	default:
		return apperrors.NewValidationError("unknown button action", map[string]any{"custom_id": event.Button.CustomID})
	}
}

func (h *GatewayHandler) onCommand(c *fiber.Ctx, event dto.GatewayEvent) error {
	if event.Command == nil {
		return apperrors.NewValidationError("command required", nil)
	}
	actor := service.Actor{ID: event.Actor.ID, Tag: event.Actor.Tag}

	switch event.Command.Name {
	case "open":
		ticketType := event.Command.Options["type"]
		if ticketType == "" {
			ticketType = "support"
		}
		ticket, err := h.lifecycle.Open(c.UserContext(), event.WorkspaceID, actor, ticketType)
		if err != nil {
			return err
		}
		return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})

	case "claim":
		if err := h.lifecycle.Claim(c.UserContext(), event.WorkspaceID, event.ChannelID, actor); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": fiber.Map{"status": "claimed"}})

	case "close":
		if err := h.lifecycle.Close(c.UserContext(), event.WorkspaceID, event.ChannelID, actor, domain.CloseReasonManual); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": fiber.Map{"status": "closed"}})

	case "forward":
		session, err := h.lifecycle.BeginForward(c.UserContext(), event.WorkspaceID, event.ChannelID, actor)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": forwardSession(session)})

	default:
		return apperrors.NewValidationError("unknown command", map[string]any{"name": event.Command.Name})
	}
}

func forwardSession(s *service.ForwardSession) dto.ForwardSessionResponse {
	candidates := make([]dto.ForwardCandidate, 0, len(s.Candidates))
	for _, m := range s.Candidates {
		candidates = append(candidates, dto.ForwardCandidate{ID: m.ID, Tag: m.Tag})
	}
	return dto.ForwardSessionResponse{
		Token:      s.Token,
		ExpiresAt:  s.ExpiresAt.UTC().Format(time.RFC3339),
		Candidates: candidates,
	}
}

func ticketSummary(t *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		Name:          t.Name,
		Number:        t.Number,
		Type:          t.Type,
		OwnerID:       t.OwnerID,
		ClaimerID:     t.ClaimerID,
		ChannelID:     t.ChannelID,
		Status:        string(t.Status),
		TranscriptRef: t.TranscriptRef,
	}
}
