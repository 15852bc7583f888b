// Package gateway defines the contract consumed from the chat platform:
// channel and message mutation, member lookup, and direct messages. Every
// call is a remote operation that may fail transiently or permanently.
package gateway

import (
	"context"
	"time"
)

// Channel is a text channel as seen by the orchestrator.
type Channel struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	Topic       string `json:"topic"`
	ParentID    string `json:"parent_id,omitempty"`
}

// Attachment is a file reference attached to a message.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Message is a channel message.
type Message struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channel_id"`
	AuthorID    string       `json:"author_id"`
	AuthorTag   string       `json:"author_tag"`
	Content     string       `json:"content"`
	Bot         bool         `json:"bot"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Member is a workspace member with role membership.
type Member struct {
	ID      string   `json:"id"`
	Tag     string   `json:"tag"`
	RoleIDs []string `json:"role_ids"`
}

// HasRole reports whether the member holds the given role.
func (m *Member) HasRole(roleID string) bool {
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// FileUpload is an outbound file attachment.
type FileUpload struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

// CreateChannelRequest describes a channel to create. Visibility is limited
// to the listed users and roles.
type CreateChannelRequest struct {
	Name         string   `json:"name"`
	ParentID     string   `json:"parent_id,omitempty"`
	Topic        string   `json:"topic,omitempty"`
	AllowUserIDs []string `json:"allow_user_ids,omitempty"`
	AllowRoleIDs []string `json:"allow_role_ids,omitempty"`
}

// Client is the chat-platform surface the orchestrator depends on.
type Client interface {
	CreateChannel(ctx context.Context, workspaceID string, req CreateChannelRequest) (*Channel, error)
	GetChannel(ctx context.Context, channelID string) (*Channel, error)
	RenameChannel(ctx context.Context, channelID, name string) error
	SetChannelTopic(ctx context.Context, channelID, topic string) error
	DeleteChannel(ctx context.Context, channelID string) error

	SendMessage(ctx context.Context, channelID, content string) (*Message, error)
	SendFile(ctx context.Context, channelID, content string, file FileUpload) (*Message, error)
	EditMessage(ctx context.Context, channelID, messageID, content string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	// FetchMessages returns up to limit messages newest first, strictly older
	// than beforeID when it is non-empty.
	FetchMessages(ctx context.Context, channelID string, limit int, beforeID string) ([]Message, error)

	GetMember(ctx context.Context, workspaceID, userID string) (*Member, error)
	ListRoleMembers(ctx context.Context, workspaceID, roleID string) ([]Member, error)

	SendDirectMessage(ctx context.Context, userID, content string, file *FileUpload) error
}
