package gateway

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// Fake is an in-memory Client used by tests. Channels, messages, and members
// are created directly on the struct; per-method error hooks let tests inject
// failures.
type Fake struct {
	mu sync.Mutex

	Channels map[string]*Channel
	Messages map[string][]Message
	Members  map[string]*Member
	DMs      map[string][]string

	nextMessageID int

	// Error hooks. When non-nil the corresponding call fails with the value.
	CreateChannelErr error
	RenameChannelErr error
	SendMessageErr   error
	SendDMErr        error
	SetTopicErr      error
	FetchMessagesErr error
	SendFileErr      error

	DeletedChannels []string
	DeletedMessages []string
}

// NewFake builds an empty fake gateway.
func NewFake() *Fake {
	return &Fake{
		Channels: make(map[string]*Channel),
		Messages: make(map[string][]Message),
		Members:  make(map[string]*Member),
		DMs:      make(map[string][]string),
	}
}

var _ Client = (*Fake)(nil)

// AddChannel registers a channel and returns it.
func (f *Fake) AddChannel(id, workspaceID, name, topic string) *Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := &Channel{ID: id, WorkspaceID: workspaceID, Name: name, Topic: topic}
	f.Channels[id] = ch
	return ch
}

// AddMember registers a workspace member.
func (f *Fake) AddMember(id, tag string, roleIDs ...string) *Member {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &Member{ID: id, Tag: tag, RoleIDs: roleIDs}
	f.Members[id] = m
	return m
}

// SeedMessages loads channel history, oldest first.
func (f *Fake) SeedMessages(channelID string, msgs []Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Messages[channelID] = append([]Message(nil), msgs...)
}

// SentMessages returns the text of every message sent to a channel.
func (f *Fake) SentMessages(channelID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.Messages[channelID] {
		out = append(out, m.Content)
	}
	return out
}

func (f *Fake) CreateChannel(_ context.Context, workspaceID string, req CreateChannelRequest) (*Channel, error) {
	if f.CreateChannelErr != nil {
		return nil, f.CreateChannelErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("chan-%d", len(f.Channels)+1)
	ch := &Channel{ID: id, WorkspaceID: workspaceID, Name: req.Name, Topic: req.Topic, ParentID: req.ParentID}
	f.Channels[id] = ch
	return ch, nil
}

func (f *Fake) GetChannel(_ context.Context, channelID string) (*Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.Channels[channelID]
	if !ok {
		return nil, fmt.Errorf("channel %s not found", channelID)
	}
	copied := *ch
	return &copied, nil
}

func (f *Fake) RenameChannel(_ context.Context, channelID, name string) error {
	if f.RenameChannelErr != nil {
		return f.RenameChannelErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.Channels[channelID]
	if !ok {
		return fmt.Errorf("channel %s not found", channelID)
	}
	ch.Name = name
	return nil
}

func (f *Fake) SetChannelTopic(_ context.Context, channelID, topic string) error {
	if f.SetTopicErr != nil {
		return f.SetTopicErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.Channels[channelID]
	if !ok {
		return fmt.Errorf("channel %s not found", channelID)
	}
	ch.Topic = topic
	return nil
}

func (f *Fake) DeleteChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Channels, channelID)
	f.DeletedChannels = append(f.DeletedChannels, channelID)
	return nil
}

func (f *Fake) SendMessage(_ context.Context, channelID, content string) (*Message, error) {
	if f.SendMessageErr != nil {
		return nil, f.SendMessageErr
	}
	return f.appendMessage(channelID, content), nil
}

func (f *Fake) SendFile(_ context.Context, channelID, content string, file FileUpload) (*Message, error) {
	if f.SendFileErr != nil {
		return nil, f.SendFileErr
	}
	return f.appendMessage(channelID, content+" [file:"+file.Name+"]"), nil
}

func (f *Fake) appendMessage(channelID, content string) *Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMessageID++
	msg := Message{
		ID:        strconv.Itoa(f.nextMessageID),
		ChannelID: channelID,
		Content:   content,
		Bot:       true,
	}
	f.Messages[channelID] = append(f.Messages[channelID], msg)
	return &msg
}

func (f *Fake) EditMessage(_ context.Context, channelID, messageID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.Messages[channelID]
	for i := range msgs {
		if msgs[i].ID == messageID {
			msgs[i].Content = content
			return nil
		}
	}
	return fmt.Errorf("message %s not found in %s", messageID, channelID)
}

func (f *Fake) DeleteMessage(_ context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.Messages[channelID]
	for i := range msgs {
		if msgs[i].ID == messageID {
			f.Messages[channelID] = append(msgs[:i:i], msgs[i+1:]...)
			f.DeletedMessages = append(f.DeletedMessages, channelID+"/"+messageID)
			return nil
		}
	}
	return fmt.Errorf("message %s not found in %s", messageID, channelID)
}

func (f *Fake) FetchMessages(_ context.Context, channelID string, limit int, beforeID string) ([]Message, error) {
	if f.FetchMessagesErr != nil {
		return nil, f.FetchMessagesErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	history := f.Messages[channelID]

	end := len(history)
	if beforeID != "" {
		end = 0
		for i := range history {
			if history[i].ID == beforeID {
				end = i
				break
			}
		}
	}

	start := end - limit
	if start < 0 {
		start = 0
	}

	// newest first, matching the wire contract
	out := make([]Message, 0, end-start)
	for i := end - 1; i >= start; i-- {
		out = append(out, history[i])
	}
	return out, nil
}

func (f *Fake) GetMember(_ context.Context, _, userID string) (*Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.Members[userID]
	if !ok {
		return nil, fmt.Errorf("member %s not found", userID)
	}
	copied := *m
	return &copied, nil
}

func (f *Fake) ListRoleMembers(_ context.Context, _, roleID string) ([]Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Member
	for _, m := range f.Members {
		if m.HasRole(roleID) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *Fake) SendDirectMessage(_ context.Context, userID, content string, _ *FileUpload) error {
	if f.SendDMErr != nil {
		return f.SendDMErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DMs[userID] = append(f.DMs[userID], content)
	return nil
}
