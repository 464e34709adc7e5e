// ABOUTME: Per-message respond decision for the bot
// ABOUTME: Resolves team/channel config, persona and mention requirements

package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/onyx-dot-app/mattermost-bot/internal/platform"
	"github.com/onyx-dot-app/mattermost-bot/internal/store"
)

// ConfigStore provides the team and channel configuration a decision needs.
type ConfigStore interface {
	GetTeamConfigByTeamID(ctx context.Context, tenantID, teamID string) (*store.TeamConfig, error)
	GetChannelConfig(ctx context.Context, tenantID, teamID, channelID string) (*store.ChannelConfig, error)
}

// Decision says whether and how the bot responds to one message.
// Derived per message, never persisted.
type Decision struct {
	Respond    bool
	PersonaID  *int64
	ThreadOnly bool
}

// Router decides, per inbound message, whether the bot should respond and
// with which persona.
type Router struct {
	configs ConfigStore
	logger  *slog.Logger
}

// New creates a Router over the given config store.
func New(configs ConfigStore) *Router {
	return &Router{
		configs: configs,
		logger:  slog.Default().With("component", "message-router"),
	}
}

// ShouldRespond loads team and channel config for the message and applies
// the response rules: team and channel must exist and be enabled; persona is
// the channel override if set, else the team default; a channel requiring
// explicit invocation responds without a mention only when the message
// continues an existing thread.
func (r *Router) ShouldRespond(ctx context.Context, msg *platform.Message, tenantID, botUserID string) (Decision, error) {
	teamCfg, err := r.configs.GetTeamConfigByTeamID(ctx, tenantID, msg.TeamID)
	if errors.Is(err, store.ErrNotFound) {
		return Decision{}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("loading team config: %w", err)
	}
	if !teamCfg.Enabled {
		return Decision{}, nil
	}

	channelCfg, err := r.configs.GetChannelConfig(ctx, tenantID, msg.TeamID, msg.ChannelID)
	if errors.Is(err, store.ErrNotFound) {
		return Decision{}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("loading channel config: %w", err)
	}
	if !channelCfg.Enabled {
		return Decision{}, nil
	}

	personaID := channelCfg.PersonaOverrideID
	if personaID == nil {
		personaID = teamCfg.DefaultPersonaID
	}

	if channelCfg.RequireBotInvocation && !msg.Mentioned(botUserID) {
		if !r.implicitInvocation(msg) {
			return Decision{}, nil
		}
	}

	return Decision{
		Respond:    true,
		PersonaID:  personaID,
		ThreadOnly: channelCfg.ThreadOnlyMode,
	}, nil
}

// implicitInvocation reports whether the bot may respond without an
// explicit mention. Currently: only when continuing an existing thread.
func (r *Router) implicitInvocation(msg *platform.Message) bool {
	if msg.IsThread() {
		r.logger.Debug("implicit invocation via thread", "post_id", msg.PostID)
		return true
	}
	return false
}
