package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spec-kit/ticket-orchestrator/internal/config"
)

// RESTClient talks to the chat-platform HTTP API.
type RESTClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewRESTClient builds a gateway client from configuration.
func NewRESTClient(cfg config.GatewayConfig) *RESTClient {
	return &RESTClient{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

var _ Client = (*RESTClient)(nil)

func (c *RESTClient) CreateChannel(ctx context.Context, workspaceID string, req CreateChannelRequest) (*Channel, error) {
	var channel Channel
	path := fmt.Sprintf("/workspaces/%s/channels", url.PathEscape(workspaceID))
	if err := c.do(ctx, http.MethodPost, path, req, &channel); err != nil {
		return nil, err
	}
	return &channel, nil
}

func (c *RESTClient) GetChannel(ctx context.Context, channelID string) (*Channel, error) {
	var channel Channel
	path := fmt.Sprintf("/channels/%s", url.PathEscape(channelID))
	if err := c.do(ctx, http.MethodGet, path, nil, &channel); err != nil {
		return nil, err
	}
	return &channel, nil
}

func (c *RESTClient) RenameChannel(ctx context.Context, channelID, name string) error {
	path := fmt.Sprintf("/channels/%s", url.PathEscape(channelID))
	return c.do(ctx, http.MethodPatch, path, map[string]string{"name": name}, nil)
}

func (c *RESTClient) SetChannelTopic(ctx context.Context, channelID, topic string) error {
	path := fmt.Sprintf("/channels/%s", url.PathEscape(channelID))
	return c.do(ctx, http.MethodPatch, path, map[string]string{"topic": topic}, nil)
}

func (c *RESTClient) DeleteChannel(ctx context.Context, channelID string) error {
	path := fmt.Sprintf("/channels/%s", url.PathEscape(channelID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *RESTClient) SendMessage(ctx context.Context, channelID, content string) (*Message, error) {
	var msg Message
	path := fmt.Sprintf("/channels/%s/messages", url.PathEscape(channelID))
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"content": content}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *RESTClient) SendFile(ctx context.Context, channelID, content string, file FileUpload) (*Message, error) {
	var msg Message
	path := fmt.Sprintf("/channels/%s/messages", url.PathEscape(channelID))
	body := map[string]any{
		"content": content,
		"file": map[string]string{
			"name":    file.Name,
			"content": base64.StdEncoding.EncodeToString(file.Content),
		},
	}
	if err := c.do(ctx, http.MethodPost, path, body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *RESTClient) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	path := fmt.Sprintf("/channels/%s/messages/%s", url.PathEscape(channelID), url.PathEscape(messageID))
	return c.do(ctx, http.MethodPatch, path, map[string]string{"content": content}, nil)
}

func (c *RESTClient) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	path := fmt.Sprintf("/channels/%s/messages/%s", url.PathEscape(channelID), url.PathEscape(messageID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *RESTClient) FetchMessages(ctx context.Context, channelID string, limit int, beforeID string) ([]Message, error) {
	values := url.Values{}
	values.Set("limit", strconv.Itoa(limit))
	if beforeID != "" {
		values.Set("before", beforeID)
	}
	path := fmt.Sprintf("/channels/%s/messages?%s", url.PathEscape(channelID), values.Encode())
	var messages []Message
	if err := c.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *RESTClient) GetMember(ctx context.Context, workspaceID, userID string) (*Member, error) {
	var member Member
	path := fmt.Sprintf("/workspaces/%s/members/%s", url.PathEscape(workspaceID), url.PathEscape(userID))
	if err := c.do(ctx, http.MethodGet, path, nil, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (c *RESTClient) ListRoleMembers(ctx context.Context, workspaceID, roleID string) ([]Member, error) {
	var members []Member
	path := fmt.Sprintf("/workspaces/%s/roles/%s/members", url.PathEscape(workspaceID), url.PathEscape(roleID))
	if err := c.do(ctx, http.MethodGet, path, nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (c *RESTClient) SendDirectMessage(ctx context.Context, userID, content string, file *FileUpload) error {
	body := map[string]any{"content": content}
	if file != nil {
		body["file"] = map[string]string{
			"name":    file.Name,
			"content": base64.StdEncoding.EncodeToString(file.Content),
		}
	}
	path := fmt.Sprintf("/users/%s/messages", url.PathEscape(userID))
	return c.do(ctx, http.MethodPost, path, body, nil)
}

func (c *RESTClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway request %s %s: status %d: %s", method, path, resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
