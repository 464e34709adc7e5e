// ABOUTME: Mattermost REST + WebSocket implementation of the Client interface
// ABOUTME: Token auth, v4 API endpoints, and the authentication-challenge event stream

package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// apiTimeout bounds single REST calls.
const apiTimeout = 30 * time.Second

// MattermostDialer creates REST+WebSocket clients for Mattermost servers.
type MattermostDialer struct{}

// NewMattermostDialer returns a Dialer for real Mattermost servers.
func NewMattermostDialer() *MattermostDialer {
	return &MattermostDialer{}
}

// Dial builds a client for the parsed server address. No I/O happens until
// Login is called.
func (d *MattermostDialer) Dial(info ServerInfo, botToken string) (Client, error) {
	if info.Host == "" {
		return nil, fmt.Errorf("%w: empty host", ErrInvalidServerURL)
	}

	wsScheme := "ws"
	if info.Scheme == "https" {
		wsScheme = "wss"
	}

	return &mattermostClient{
		baseURL: fmt.Sprintf("%s://%s:%d/api/v4", info.Scheme, info.Host, info.Port),
		wsURL:   fmt.Sprintf("%s://%s:%d/api/v4/websocket", wsScheme, info.Host, info.Port),
		token:   botToken,
		httpc:   &http.Client{Timeout: apiTimeout},
	}, nil
}

type mattermostClient struct {
	baseURL string
	wsURL   string
	token   string
	httpc   *http.Client

	mu sync.Mutex
	ws *websocket.Conn
}

// Login validates the bot token by fetching the bot's own user record.
func (c *mattermostClient) Login(ctx context.Context) error {
	_, err := c.Me(ctx)
	return err
}

// Me returns the bot's own identity.
func (c *mattermostClient) Me(ctx context.Context) (User, error) {
	var user User
	if err := c.doJSON(ctx, http.MethodGet, "/users/me", nil, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// CreatePost posts a message, threaded under rootID when non-empty.
func (c *mattermostClient) CreatePost(ctx context.Context, channelID, message, rootID string) (Post, error) {
	body := map[string]string{
		"channel_id": channelID,
		"message":    message,
	}
	if rootID != "" {
		body["root_id"] = rootID
	}

	var post Post
	if err := c.doJSON(ctx, http.MethodPost, "/posts", body, &post); err != nil {
		return Post{}, err
	}
	return post, nil
}

// AddReaction adds an emoji reaction to a post.
func (c *mattermostClient) AddReaction(ctx context.Context, postID, emojiName, userID string) error {
	body := map[string]string{
		"user_id":    userID,
		"post_id":    postID,
		"emoji_name": emojiName,
	}
	return c.doJSON(ctx, http.MethodPost, "/reactions", body, nil)
}

// RemoveReaction removes an emoji reaction from a post.
func (c *mattermostClient) RemoveReaction(ctx context.Context, postID, emojiName, userID string) error {
	path := fmt.Sprintf("/users/%s/posts/%s/reactions/%s", userID, postID, emojiName)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// GetThread fetches all posts in a thread.
func (c *mattermostClient) GetThread(ctx context.Context, postID string) (Thread, error) {
	var thread Thread
	if err := c.doJSON(ctx, http.MethodGet, "/posts/"+postID+"/thread", nil, &thread); err != nil {
		return Thread{}, err
	}
	return thread, nil
}

// GetUser fetches a user record by id.
func (c *mattermostClient) GetUser(ctx context.Context, userID string) (User, error) {
	var user User
	if err := c.doJSON(ctx, http.MethodGet, "/users/"+userID, nil, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// GetChannelsForTeam lists the channels a user belongs to in a team.
func (c *mattermostClient) GetChannelsForTeam(ctx context.Context, userID, teamID string) ([]Channel, error) {
	var channels []Channel
	path := fmt.Sprintf("/users/%s/teams/%s/channels", userID, teamID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

// Listen connects the event-stream WebSocket, authenticates, and invokes
// handler for each raw frame. Blocks until the connection ends: a clean
// server close or ctx cancellation returns nil, anything else the error.
func (c *mattermostClient) Listen(ctx context.Context, handler func(event []byte)) error {
	dialer := websocket.Dialer{HandshakeTimeout: apiTimeout}
	header := http.Header{"Authorization": {"Bearer " + c.token}}

	ws, _, err := dialer.DialContext(ctx, c.wsURL, header)
	if err != nil {
		return fmt.Errorf("dialing websocket: %w", err)
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		ws.Close()
	}()

	// Authentication challenge: required before the server emits events.
	challenge := map[string]any{
		"seq":    1,
		"action": "authentication_challenge",
		"data":   map[string]string{"token": c.token},
	}
	if err := ws.WriteJSON(challenge); err != nil {
		return fmt.Errorf("sending auth challenge: %w", err)
	}

	// Unblock ReadMessage when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-done:
		}
	}()

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("reading event stream: %w", err)
		}
		handler(frame)
	}
}

// Disconnect closes the event-stream connection if one is open.
func (c *mattermostClient) Disconnect() error {
	c.mu.Lock()
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	if ws != nil {
		return ws.Close()
	}
	return nil
}

// doJSON performs one REST call, encoding body and decoding into out when
// non-nil. Non-2xx responses become errors carrying a bounded body excerpt.
func (c *mattermostClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
