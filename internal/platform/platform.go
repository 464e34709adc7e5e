// ABOUTME: Chat platform collaborator interfaces and connection parameters
// ABOUTME: The Mattermost wire client lives behind Client/Dialer; tests inject fakes

package platform

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidServerURL is returned when a configured server URL cannot be
// parsed into scheme/host/port.
var ErrInvalidServerURL = errors.New("invalid server URL")

// User is a chat platform account.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Post is a single message on the platform.
type Post struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
	RootID    string `json:"root_id"`
}

// Thread is an ordered set of posts sharing a root.
type Thread struct {
	Order []string        `json:"order"`
	Posts map[string]Post `json:"posts"`
}

// Client is one tenant's connection to a Mattermost server. All methods may
// block on network I/O and honor ctx cancellation. Listen blocks for the
// lifetime of the event-stream connection, invoking handler once per raw
// event; a nil return means the server closed the stream cleanly.
type Client interface {
	Login(ctx context.Context) error
	Me(ctx context.Context) (User, error)
	CreatePost(ctx context.Context, channelID, message, rootID string) (Post, error)
	AddReaction(ctx context.Context, postID, emojiName, userID string) error
	RemoveReaction(ctx context.Context, postID, emojiName, userID string) error
	GetThread(ctx context.Context, postID string) (Thread, error)
	GetUser(ctx context.Context, userID string) (User, error)
	GetChannelsForTeam(ctx context.Context, userID, teamID string) ([]Channel, error)
	Listen(ctx context.Context, handler func(event []byte)) error
	Disconnect() error
}

// Channel is a channel as reported by the platform.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"display_name"`
	Type string `json:"type"`
}

// Dialer creates a Client for a parsed server address.
type Dialer interface {
	Dial(info ServerInfo, botToken string) (Client, error)
}

// ServerInfo is a parsed server URL.
type ServerInfo struct {
	Scheme string
	Host   string
	Port   int
}

// ParseServerURL splits a configured server URL into scheme, host and port.
// An explicit port after a colon wins; otherwise 443 for https, 80 for http.
func ParseServerURL(serverURL string) (ServerInfo, error) {
	scheme := "http"
	rest := serverURL
	switch {
	case strings.HasPrefix(serverURL, "https://"):
		scheme = "https"
		rest = strings.TrimPrefix(serverURL, "https://")
	case strings.HasPrefix(serverURL, "http://"):
		rest = strings.TrimPrefix(serverURL, "http://")
	default:
		return ServerInfo{}, fmt.Errorf("%w: missing http(s) scheme: %q", ErrInvalidServerURL, serverURL)
	}

	if rest == "" {
		return ServerInfo{}, fmt.Errorf("%w: empty host: %q", ErrInvalidServerURL, serverURL)
	}

	if host, portStr, found := strings.Cut(rest, ":"); found {
		port, err := strconv.Atoi(strings.TrimRight(portStr, "/"))
		if err != nil {
			return ServerInfo{}, fmt.Errorf("%w: bad port in %q", ErrInvalidServerURL, serverURL)
		}
		if host == "" {
			return ServerInfo{}, fmt.Errorf("%w: empty host: %q", ErrInvalidServerURL, serverURL)
		}
		return ServerInfo{Scheme: scheme, Host: host, Port: port}, nil
	}

	port := 80
	if scheme == "https" {
		port = 443
	}
	return ServerInfo{Scheme: scheme, Host: strings.TrimRight(rest, "/"), Port: port}, nil
}
