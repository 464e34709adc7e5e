// ABOUTME: Decoding of Mattermost event-stream envelopes into Message values
// ABOUTME: The posted envelope nests the post object and mentions as JSON strings

package platform

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventTypePosted is the only envelope type the bot consumes.
const EventTypePosted = "posted"

// Message is a parsed "posted" event. Immutable once decoded.
type Message struct {
	PostID    string
	ChannelID string
	TeamID    string
	UserID    string
	Username  string
	Text      string
	RootID    string // empty when the post is not in a thread
	Mentions  []string
}

// IsThread reports whether the message is part of an existing thread.
func (m *Message) IsThread() bool {
	return m.RootID != ""
}

// Mentioned reports whether the given user id appears in the mentions list.
func (m *Message) Mentioned(userID string) bool {
	for _, id := range m.Mentions {
		if id == userID {
			return true
		}
	}
	return false
}

// envelope is the raw event-stream frame. The post and mentions fields
// arrive as JSON-encoded strings nested inside the JSON envelope.
type envelope struct {
	Event string `json:"event"`
	Data  struct {
		Post       string `json:"post"`
		Mentions   string `json:"mentions"`
		SenderName string `json:"sender_name"`
		TeamID     string `json:"team_id"`
	} `json:"data"`
}

// DecodeEvent parses a raw event frame. It returns (nil, nil) for event
// types other than "posted", and an error for malformed payloads.
func DecodeEvent(raw []byte) (*Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding event envelope: %w", err)
	}

	if env.Event != EventTypePosted {
		return nil, nil
	}

	var post Post
	postJSON := env.Data.Post
	if postJSON == "" {
		postJSON = "{}"
	}
	if err := json.Unmarshal([]byte(postJSON), &post); err != nil {
		return nil, fmt.Errorf("decoding nested post: %w", err)
	}

	var mentions []string
	if env.Data.Mentions != "" {
		if err := json.Unmarshal([]byte(env.Data.Mentions), &mentions); err != nil {
			return nil, fmt.Errorf("decoding mentions: %w", err)
		}
	}

	return &Message{
		PostID:    post.ID,
		ChannelID: post.ChannelID,
		TeamID:    env.Data.TeamID,
		UserID:    post.UserID,
		Username:  strings.TrimPrefix(env.Data.SenderName, "@"),
		Text:      post.Message,
		RootID:    post.RootID,
		Mentions:  mentions,
	}, nil
}
