package domain

import "time"

// WorkspaceConfig holds per-workspace ticket settings. Minute thresholds of
// zero disable the corresponding automation policy.
type WorkspaceConfig struct {
	WorkspaceID                 string
	SupportRoleID               string
	TicketCategoryID            string
	LogChannelID                string
	FallbackChannelID           string
	AutomationEnabled           bool
	InactivityWarningMinutes    int
	AutoCloseMinutes            int
	UnclaimedReminderMinutes    int
	TranscriptAutoDeleteMinutes int
	UpdatedAt                   time.Time
}

// Configured reports whether the workspace has the minimum setup required to
// operate tickets.
func (c *WorkspaceConfig) Configured() bool {
	return c != nil && c.SupportRoleID != "" && c.TicketCategoryID != ""
}

// WarningDelay returns the inactivity warning delay, zero when disabled.
func (c *WorkspaceConfig) WarningDelay() time.Duration {
	if c == nil || !c.AutomationEnabled || c.InactivityWarningMinutes <= 0 {
		return 0
	}
	return time.Duration(c.InactivityWarningMinutes) * time.Minute
}

// AutoCloseDelay returns the auto-close delay, zero when disabled.
func (c *WorkspaceConfig) AutoCloseDelay() time.Duration {
	if c == nil || !c.AutomationEnabled || c.AutoCloseMinutes <= 0 {
		return 0
	}
	return time.Duration(c.AutoCloseMinutes) * time.Minute
}

// TranscriptAutoDelete returns how long a fallback transcript post stays
// visible before deletion. The floor is one minute so a sensitive transcript
// is never deleted out from under the owner instantly.
func (c *WorkspaceConfig) TranscriptAutoDelete() time.Duration {
	minutes := 5
	if c != nil && c.TranscriptAutoDeleteMinutes > 0 {
		minutes = c.TranscriptAutoDeleteMinutes
	}
	if minutes < 1 {
		minutes = 1
	}
	return time.Duration(minutes) * time.Minute
}
