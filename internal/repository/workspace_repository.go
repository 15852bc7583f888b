package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-orchestrator/internal/domain"
)

// WorkspaceConfigRepository encapsulates workspace settings persistence.
type WorkspaceConfigRepository interface {
	Get(ctx context.Context, workspaceID string) (*domain.WorkspaceConfig, error)
	Upsert(ctx context.Context, cfg *domain.WorkspaceConfig) error
	List(ctx context.Context) ([]domain.WorkspaceConfig, error)
}

type workspaceConfigRepository struct {
	pool *pgxpool.Pool
}

// NewWorkspaceConfigRepository instantiates the repository.
func NewWorkspaceConfigRepository(pool *pgxpool.Pool) WorkspaceConfigRepository {
	return &workspaceConfigRepository{pool: pool}
}

const workspaceColumns = `
        workspace_id, support_role_id, ticket_category_id, log_channel_id,
        fallback_channel_id, automation_enabled, inactivity_warning_minutes,
        auto_close_minutes, unclaimed_reminder_minutes,
        transcript_auto_delete_minutes, updated_at`

func (r *workspaceConfigRepository) Get(ctx context.Context, workspaceID string) (*domain.WorkspaceConfig, error) {
	const query = `SELECT` + workspaceColumns + `
        FROM workspace_configs WHERE workspace_id=$1`
	var cfg domain.WorkspaceConfig
	err := r.pool.QueryRow(ctx, query, workspaceID).Scan(
		&cfg.WorkspaceID,
		&cfg.SupportRoleID,
		&cfg.TicketCategoryID,
		&cfg.LogChannelID,
		&cfg.FallbackChannelID,
		&cfg.AutomationEnabled,
		&cfg.InactivityWarningMinutes,
		&cfg.AutoCloseMinutes,
		&cfg.UnclaimedReminderMinutes,
		&cfg.TranscriptAutoDeleteMinutes,
		&cfg.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *workspaceConfigRepository) Upsert(ctx context.Context, cfg *domain.WorkspaceConfig) error {
	const query = `
        INSERT INTO workspace_configs (workspace_id, support_role_id, ticket_category_id,
            log_channel_id, fallback_channel_id, automation_enabled,
            inactivity_warning_minutes, auto_close_minutes, unclaimed_reminder_minutes,
            transcript_auto_delete_minutes, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
        ON CONFLICT (workspace_id) DO UPDATE SET
            support_role_id=EXCLUDED.support_role_id,
            ticket_category_id=EXCLUDED.ticket_category_id,
            log_channel_id=EXCLUDED.log_channel_id,
            fallback_channel_id=EXCLUDED.fallback_channel_id,
            automation_enabled=EXCLUDED.automation_enabled,
            inactivity_warning_minutes=EXCLUDED.inactivity_warning_minutes,
            auto_close_minutes=EXCLUDED.auto_close_minutes,
            unclaimed_reminder_minutes=EXCLUDED.unclaimed_reminder_minutes,
            transcript_auto_delete_minutes=EXCLUDED.transcript_auto_delete_minutes,
            updated_at=NOW()`
	_, err := r.pool.Exec(ctx, query,
		cfg.WorkspaceID,
		cfg.SupportRoleID,
		cfg.TicketCategoryID,
		cfg.LogChannelID,
		cfg.FallbackChannelID,
		cfg.AutomationEnabled,
		cfg.InactivityWarningMinutes,
		cfg.AutoCloseMinutes,
		cfg.UnclaimedReminderMinutes,
		cfg.TranscriptAutoDeleteMinutes,
	)
	return err
}

func (r *workspaceConfigRepository) List(ctx context.Context) ([]domain.WorkspaceConfig, error) {
	const query = `SELECT` + workspaceColumns + `
        FROM workspace_configs ORDER BY workspace_id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []domain.WorkspaceConfig
	for rows.Next() {
		var cfg domain.WorkspaceConfig
		if err := rows.Scan(
			&cfg.WorkspaceID,
			&cfg.SupportRoleID,
			&cfg.TicketCategoryID,
			&cfg.LogChannelID,
			&cfg.FallbackChannelID,
			&cfg.AutomationEnabled,
			&cfg.InactivityWarningMinutes,
			&cfg.AutoCloseMinutes,
			&cfg.UnclaimedReminderMinutes,
			&cfg.TranscriptAutoDeleteMinutes,
			&cfg.UpdatedAt,
		); err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return configs, nil
}
