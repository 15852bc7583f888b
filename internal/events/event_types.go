package events

import (
	"time"

	"github.com/spec-kit/ticket-orchestrator/internal/domain"
)

// EventType identifies a lifecycle event.
type EventType string

const (
	EventTicketOpened        EventType = "ticket.opened"
	EventTicketClaimed       EventType = "ticket.claimed"
	EventTicketForwarded     EventType = "ticket.forwarded"
	EventTicketClosed        EventType = "ticket.closed"
	EventInactivityWarned    EventType = "ticket.inactivity_warned"
	EventUnclaimedReminded   EventType = "workspace.unclaimed_reminded"
	EventTranscriptDelivered EventType = "ticket.transcript_delivered"
)

// Event is the envelope published on the dispatcher.
type Event struct {
	ID          string
	Type        EventType
	WorkspaceID string
	TicketName  string
	ActorID     string
	Timestamp   time.Time
	Payload     any
}

// TicketOpenedPayload accompanies EventTicketOpened.
type TicketOpenedPayload struct {
	Type      string
	OwnerID   string
	OwnerTag  string
	ChannelID string
}

// TicketClaimedPayload accompanies claim and forward events.
type TicketClaimedPayload struct {
	ClaimerID  string
	ClaimerTag string
	// PreviousClaimerID is set on forward.
	PreviousClaimerID string
}

// TicketClosedPayload accompanies EventTicketClosed.
type TicketClosedPayload struct {
	Reason        domain.CloseReason
	SupportID     string
	SupportTag    string
	TranscriptRef string
}

// UnclaimedRemindedPayload accompanies EventUnclaimedReminded.
type UnclaimedRemindedPayload struct {
	TicketNames []string
}

// TranscriptDeliveredPayload accompanies EventTranscriptDelivered.
type TranscriptDeliveredPayload struct {
	// Tier is 1 for direct delivery, 2 for fallback, 3 for storage-only.
	Tier          int
	TranscriptRef string
}
