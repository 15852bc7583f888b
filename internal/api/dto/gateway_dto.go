package dto

import "strings"

// Gateway event types accepted on the webhook ingress.
const (
	EventMessageCreated = "message_created"
	EventButtonPressed  = "button_pressed"
	EventCommandInvoked = "command_invoked"
)

// Canonical button actions after normalization.
const (
	ActionClaim         = "claim"
	ActionClose         = "close"
	ActionForward       = "forward"
	ActionForwardSelect = "forward_select"
)

// ActorRef identifies the platform user behind an event.
type ActorRef struct {
	ID  string `json:"id"`
	Tag string `json:"tag"`
	Bot bool   `json:"bot"`
}

// MessageRef carries the message fields relevant to inactivity tracking.
type MessageRef struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// ButtonRef carries a component interaction.
type ButtonRef struct {
	CustomID string `json:"custom_id"`
	// Value is the selected option for select-menu interactions.
	Value string `json:"value"`
}

// CommandRef carries a slash-command invocation.
type CommandRef struct {
	Name    string            `json:"name"`
	Options map[string]string `json:"options"`
}

// GatewayEvent is the envelope the chat gateway pushes to the webhook.
type GatewayEvent struct {
	Type        string      `json:"type"`
	WorkspaceID string      `json:"workspace_id"`
	ChannelID   string      `json:"channel_id"`
	Actor       ActorRef    `json:"actor"`
	Message     *MessageRef `json:"message,omitempty"`
	Button      *ButtonRef  `json:"button,omitempty"`
	Command     *CommandRef `json:"command,omitempty"`
}

// NormalizeButtonAction maps the custom ID variants gateways emit onto one
// canonical action, plus the embedded session token when present. Historical
// shapes like "claim-ticket", "claimTicket", and "CLAIM" all land on "claim";
// unrecognized IDs return an empty action.
func NormalizeButtonAction(customID string) (action, token string) {
	id := strings.ToLower(strings.TrimSpace(customID))
	if i := strings.IndexByte(id, ':'); i >= 0 {
		id, token = id[:i], id[i+1:]
	}
	id = strings.NewReplacer("-", "_", " ", "_").Replace(id)
	id = strings.TrimSuffix(id, "_ticket")

	switch id {
	case "claim", "claimticket":
		return ActionClaim, token
	case "close", "closeticket":
		return ActionClose, token
	case "forward", "forwardticket":
		return ActionForward, token
	case "forward_select", "forwardselect":
		return ActionForwardSelect, token
	default:
		return "", token
	}
}

// WorkspaceConfigRequest is the payload for workspace configuration upserts.
type WorkspaceConfigRequest struct {
	SupportRoleID               string `json:"support_role_id"`
	TicketCategoryID            string `json:"ticket_category_id"`
	LogChannelID                string `json:"log_channel_id"`
	FallbackChannelID           string `json:"fallback_channel_id"`
	AutomationEnabled           bool   `json:"automation_enabled"`
	InactivityWarningMinutes    int    `json:"inactivity_warning_minutes"`
	AutoCloseMinutes            int    `json:"auto_close_minutes"`
	UnclaimedReminderMinutes    int    `json:"unclaimed_reminder_minutes"`
	TranscriptAutoDeleteMinutes int    `json:"transcript_auto_delete_minutes"`
}

// WorkspaceConfigResponse mirrors the stored configuration.
type WorkspaceConfigResponse struct {
	WorkspaceID                 string `json:"workspace_id"`
	SupportRoleID               string `json:"support_role_id"`
	TicketCategoryID            string `json:"ticket_category_id"`
	LogChannelID                string `json:"log_channel_id"`
	FallbackChannelID           string `json:"fallback_channel_id"`
	AutomationEnabled           bool   `json:"automation_enabled"`
	InactivityWarningMinutes    int    `json:"inactivity_warning_minutes"`
	AutoCloseMinutes            int    `json:"auto_close_minutes"`
	UnclaimedReminderMinutes    int    `json:"unclaimed_reminder_minutes"`
	TranscriptAutoDeleteMinutes int    `json:"transcript_auto_delete_minutes"`
}

// TicketSummary is the ticket projection returned by the API.
type TicketSummary struct {
	Name          string  `json:"name"`
	Number        int     `json:"number"`
	Type          string  `json:"type"`
	OwnerID       string  `json:"owner_id"`
	ClaimerID     *string `json:"claimer_id,omitempty"`
	ChannelID     string  `json:"channel_id"`
	Status        string  `json:"status"`
	TranscriptRef *string `json:"transcript_ref,omitempty"`
}

// ForwardCandidate is a selectable forward target.
type ForwardCandidate struct {
	ID  string `json:"id"`
	Tag string `json:"tag"`
}

// ForwardSessionResponse is returned when a forward selection opens.
type ForwardSessionResponse struct {
	Token      string             `json:"token"`
	ExpiresAt  string             `json:"expires_at"`
	Candidates []ForwardCandidate `json:"candidates"`
}
