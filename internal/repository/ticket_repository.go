package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-orchestrator/internal/domain"
)

// ErrNotFound is returned when a requested record is absent.
var ErrNotFound = pgx.ErrNoRows

// TicketRepository encapsulates ticket persistence. All calls are remote and
// may fail; callers treat failures other than ErrNotFound as persistence
// errors.
type TicketRepository interface {
	// Insert assigns the next per-workspace ticket number, derives the
	// canonical name, and stores the ticket. Number, Name, ID, and CreatedAt
	// are populated on return.
	Insert(ctx context.Context, ticket *domain.Ticket) error
	GetByName(ctx context.Context, workspaceID, name string) (*domain.Ticket, error)
	AssignSupport(ctx context.Context, workspaceID, name, supportID, supportTag string) error
	UpdateClosure(ctx context.Context, workspaceID, name, supportID, supportTag string, closedAt time.Time, transcriptRef string) error
	SaveStatusMessage(ctx context.Context, workspaceID, name, logChannelID, logMessageID string) error
	GetOpenByOwner(ctx context.Context, workspaceID, ownerID string) (*domain.Ticket, error)
	ListOpen(ctx context.Context, workspaceID string) ([]domain.Ticket, error)
	ListUnclaimed(ctx context.Context, workspaceID string) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `
        id, workspace_id, ticket_name, ticket_number, type, owner_id, owner_tag,
        claimer_id, claimer_tag, channel_id, status, created_at, closed_at,
        transcript_ref, log_channel_id, log_message_id`

func (r *ticketRepository) Insert(ctx context.Context, ticket *domain.Ticket) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const numberQuery = `
        UPDATE workspace_configs
        SET next_ticket_number = next_ticket_number + 1
        WHERE workspace_id = $1
        RETURNING next_ticket_number - 1`
	if err := tx.QueryRow(ctx, numberQuery, ticket.WorkspaceID).Scan(&ticket.Number); err != nil {
		return err
	}
	ticket.Name = domain.TicketName(ticket.Number)
	ticket.Status = domain.TicketStatusOpen

	const insertQuery = `
        INSERT INTO tickets (workspace_id, ticket_name, ticket_number, type, owner_id, owner_tag, channel_id, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	if err := tx.QueryRow(ctx, insertQuery,
		ticket.WorkspaceID,
		ticket.Name,
		ticket.Number,
		ticket.Type,
		ticket.OwnerID,
		ticket.OwnerTag,
		ticket.ChannelID,
		ticket.Status,
	).Scan(&ticket.ID, &ticket.CreatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *ticketRepository) GetByName(ctx context.Context, workspaceID, name string) (*domain.Ticket, error) {
	const query = `SELECT` + ticketColumns + `
        FROM tickets WHERE workspace_id=$1 AND ticket_name=$2`
	return r.fetchSingle(ctx, query, workspaceID, name)
}

func (r *ticketRepository) AssignSupport(ctx context.Context, workspaceID, name, supportID, supportTag string) error {
	const query = `
        UPDATE tickets SET claimer_id=$1, claimer_tag=$2, status=$3
        WHERE workspace_id=$4 AND ticket_name=$5 AND status <> $6`
	cmd, err := r.pool.Exec(ctx, query, supportID, supportTag, domain.TicketStatusClaimed, workspaceID, name, domain.TicketStatusClosed)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) UpdateClosure(ctx context.Context, workspaceID, name, supportID, supportTag string, closedAt time.Time, transcriptRef string) error {
	const query = `
        UPDATE tickets SET claimer_id=COALESCE(NULLIF($1,''), claimer_id),
            claimer_tag=COALESCE(NULLIF($2,''), claimer_tag),
            status=$3, closed_at=$4, transcript_ref=$5
        WHERE workspace_id=$6 AND ticket_name=$7`
	return r.exec(ctx, query, supportID, supportTag, domain.TicketStatusClosed, closedAt, transcriptRef, workspaceID, name)
}

func (r *ticketRepository) SaveStatusMessage(ctx context.Context, workspaceID, name, logChannelID, logMessageID string) error {
	const query = `
        UPDATE tickets SET log_channel_id=$1, log_message_id=$2
        WHERE workspace_id=$3 AND ticket_name=$4`
	return r.exec(ctx, query, logChannelID, logMessageID, workspaceID, name)
}

func (r *ticketRepository) GetOpenByOwner(ctx context.Context, workspaceID, ownerID string) (*domain.Ticket, error) {
	const query = `SELECT` + ticketColumns + `
        FROM tickets WHERE workspace_id=$1 AND owner_id=$2 AND status <> 'CLOSED'
        ORDER BY created_at DESC LIMIT 1`
	return r.fetchSingle(ctx, query, workspaceID, ownerID)
}

func (r *ticketRepository) ListOpen(ctx context.Context, workspaceID string) ([]domain.Ticket, error) {
	const query = `SELECT` + ticketColumns + `
        FROM tickets WHERE workspace_id=$1 AND status <> 'CLOSED'
        ORDER BY created_at ASC`
	return r.fetchMany(ctx, query, workspaceID)
}

func (r *ticketRepository) ListUnclaimed(ctx context.Context, workspaceID string) ([]domain.Ticket, error) {
	const query = `SELECT` + ticketColumns + `
        FROM tickets WHERE workspace_id=$1 AND status='OPEN' AND claimer_id IS NULL
        ORDER BY created_at ASC`
	return r.fetchMany(ctx, query, workspaceID)
}

func (r *ticketRepository) exec(ctx context.Context, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := scanTicket(r.pool.QueryRow(ctx, query, args...), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) fetchMany(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner, ticket *domain.Ticket) error {
	err := row.Scan(
		&ticket.ID,
		&ticket.WorkspaceID,
		&ticket.Name,
		&ticket.Number,
		&ticket.Type,
		&ticket.OwnerID,
		&ticket.OwnerTag,
		&ticket.ClaimerID,
		&ticket.ClaimerTag,
		&ticket.ChannelID,
		&ticket.Status,
		&ticket.CreatedAt,
		&ticket.ClosedAt,
		&ticket.TranscriptRef,
		&ticket.LogChannelID,
		&ticket.LogMessageID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
