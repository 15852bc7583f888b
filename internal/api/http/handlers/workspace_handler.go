package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-orchestrator/internal/api/dto"
	"github.com/spec-kit/ticket-orchestrator/internal/cache"
	"github.com/spec-kit/ticket-orchestrator/internal/domain"
	"github.com/spec-kit/ticket-orchestrator/internal/repository"
	apperrors "github.com/spec-kit/ticket-orchestrator/pkg/util/errorutil"
)

// WorkspaceHandler manages workspace configuration endpoints.
type WorkspaceHandler struct {
	configs *cache.WorkspaceConfigCache
	tickets repository.TicketRepository
}

// NewWorkspaceHandler constructs handler.
func NewWorkspaceHandler(configs *cache.WorkspaceConfigCache, tickets repository.TicketRepository) *WorkspaceHandler {
	return &WorkspaceHandler{configs: configs, tickets: tickets}
}

// GetConfig GET /workspaces/:workspace_id/config.
func (h *WorkspaceHandler) GetConfig(c *fiber.Ctx) error {
	cfg, err := h.configs.Get(c.UserContext(), c.Params("workspace_id"))
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotConfigured(c.Params("workspace_id"))
	}
	if err != nil {
		return apperrors.NewPersistenceError(err)
	}
	return c.JSON(fiber.Map{"data": configResponse(cfg)})
}

// UpsertConfig POST /workspaces/:workspace_id/config.
func (h *WorkspaceHandler) UpsertConfig(c *fiber.Ctx) error {
	var req dto.WorkspaceConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.SupportRoleID == "" || req.TicketCategoryID == "" {
		return apperrors.NewValidationError("support_role_id and ticket_category_id required", nil)
	}

	cfg := &domain.WorkspaceConfig{
		WorkspaceID:                 c.Params("workspace_id"),
		SupportRoleID:               req.SupportRoleID,
		TicketCategoryID:            req.TicketCategoryID,
		LogChannelID:                req.LogChannelID,
		FallbackChannelID:           req.FallbackChannelID,
		AutomationEnabled:           req.AutomationEnabled,
		InactivityWarningMinutes:    req.InactivityWarningMinutes,
		AutoCloseMinutes:            req.AutoCloseMinutes,
		UnclaimedReminderMinutes:    req.UnclaimedReminderMinutes,
		TranscriptAutoDeleteMinutes: req.TranscriptAutoDeleteMinutes,
	}
	if err := h.configs.Upsert(c.UserContext(), cfg); err != nil {
		return apperrors.NewPersistenceError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"data": configResponse(cfg)})
}

// ListOpenTickets GET /workspaces/:workspace_id/tickets.
func (h *WorkspaceHandler) ListOpenTickets(c *fiber.Ctx) error {
	tickets, err := h.tickets.ListOpen(c.UserContext(), c.Params("workspace_id"))
	if err != nil {
		return apperrors.NewPersistenceError(err)
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func configResponse(cfg *domain.WorkspaceConfig) dto.WorkspaceConfigResponse {
	return dto.WorkspaceConfigResponse{
		WorkspaceID:                 cfg.WorkspaceID,
		SupportRoleID:               cfg.SupportRoleID,
		TicketCategoryID:            cfg.TicketCategoryID,
		LogChannelID:                cfg.LogChannelID,
		FallbackChannelID:           cfg.FallbackChannelID,
		AutomationEnabled:           cfg.AutomationEnabled,
		InactivityWarningMinutes:    cfg.InactivityWarningMinutes,
		AutoCloseMinutes:            cfg.AutoCloseMinutes,
		UnclaimedReminderMinutes:    cfg.UnclaimedReminderMinutes,
		TranscriptAutoDeleteMinutes: cfg.TranscriptAutoDeleteMinutes,
	}
}
