package domain

import (
	"fmt"
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen    TicketStatus = "OPEN"
	TicketStatusClaimed TicketStatus = "CLAIMED"
	TicketStatusClosed  TicketStatus = "CLOSED"
)

// CloseReason distinguishes manual closure from timer-driven closure.
type CloseReason string

const (
	CloseReasonManual    CloseReason = "manual"
	CloseReasonAutomated CloseReason = "automated"
)

// TicketChannelPrefix is the naming convention that marks a channel as a ticket.
const TicketChannelPrefix = "ticket-"

// SystemActorID identifies the automation as the acting party on timer-driven
// transitions.
const SystemActorID = "system"

// SystemActorTag is the display tag recorded for automated closures.
const SystemActorTag = "Automated"

// Ticket is the aggregate for a single support case, materialized as one
// dedicated channel. Identity is Name, unique per workspace.
type Ticket struct {
	ID            int64
	WorkspaceID   string
	Name          string
	Number        int
	Type          string
	OwnerID       string
	OwnerTag      string
	ClaimerID     *string
	ClaimerTag    *string
	ChannelID     string
	Status        TicketStatus
	CreatedAt     time.Time
	ClosedAt      *time.Time
	TranscriptRef *string
	LogChannelID  *string
	LogMessageID  *string
}

// IsClosed reports whether the ticket reached its terminal state.
func (t *Ticket) IsClosed() bool {
	return t.Status == TicketStatusClosed || t.ClosedAt != nil
}

// IsClaimed reports whether a support member currently holds the ticket.
func (t *Ticket) IsClaimed() bool {
	return t.ClaimerID != nil && *t.ClaimerID != ""
}

// TicketName builds the canonical channel name for a ticket number.
func TicketName(number int) string {
	return fmt.Sprintf("%s%d", TicketChannelPrefix, number)
}

// IsTicketChannelName reports whether a channel name follows the ticket
// naming convention.
func IsTicketChannelName(name string) bool {
	return strings.HasPrefix(name, TicketChannelPrefix)
}
