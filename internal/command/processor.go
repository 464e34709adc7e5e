// ABOUTME: Executes the onboarding protocol: team registration and channel sync
// ABOUTME: Every rejection path yields a distinct user-facing reply; internals never leak

package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/onyx-dot-app/mattermost-bot/internal/cache"
	"github.com/onyx-dot-app/mattermost-bot/internal/platform"
	"github.com/onyx-dot-app/mattermost-bot/internal/store"
)

// RegistrationError carries a user-facing registration failure message.
type RegistrationError struct {
	Message string
}

func (e *RegistrationError) Error() string { return e.Message }

// SyncChannelsError carries a user-facing channel-sync failure message.
type SyncChannelsError struct {
	Message string
}

func (e *SyncChannelsError) Error() string { return e.Message }

// User-facing reply texts. Each rejection path has its own message; the
// generic one is used for unexpected failures so internals never leak.
const (
	msgRegisterSuccess = ":white_check_mark: **Successfully registered!**\n\n" +
		"This team is now connected to Onyx. " +
		"I'll respond to messages based on your team and channel settings in Onyx."

	msgRegisterUsage = "Invalid registration key format. Usage: `!register <key>`"

	msgAlreadyRegistered = "This team is already registered with Onyx.\n\n" +
		"OnyxBot can only connect one Mattermost team to one Onyx workspace."

	msgInvalidKeyFormat = "Invalid registration key format. Please check the key and try again."

	msgKeyNotFound = "Registration key not found.\n\n" +
		"The key may have expired or been deleted. " +
		"Please generate a new one from the Onyx admin panel."

	msgKeyAlreadyUsed = "This registration key has already been used.\n\n" +
		"Each key can only be used once. " +
		"Please generate a new key from the Onyx admin panel."

	msgTeamNotRegistered = "This team is not registered. Please register it first using " +
		"`!register <key>`"

	msgTeamConfigMissing = "Team config not found. This shouldn't happen. " +
		"Please contact your administrator."

	msgSyncChannelsInfo = ":information_source: **Channel Sync**\n\n" +
		"To sync channels, please use the Onyx admin panel.\n\n" +
		"Channel configuration allows you to:\n" +
		"- Enable/disable specific channels\n" +
		"- Set channel-specific personas\n" +
		"- Configure mention requirements"

	msgUnexpectedError = "An unexpected error occurred. Please try again later."
)

// Processor executes onboarding commands against the store and writes the
// results back through the routing cache.
type Processor struct {
	store  store.Store
	cache  *cache.RoutingCache
	logger *slog.Logger
}

// NewProcessor creates a command processor.
func NewProcessor(s store.Store, c *cache.RoutingCache) *Processor {
	return &Processor{
		store:  s,
		cache:  c,
		logger: slog.Default().With("component", "command-processor"),
	}
}

// Handle executes a parsed command and posts the reply. Returns false for
// KindNone so the caller can fall through to chat handling.
func (p *Processor) Handle(ctx context.Context, cmd Command, msg *platform.Message, client platform.Client) (bool, error) {
	switch cmd.Kind {
	case KindRegister:
		p.handleRegister(ctx, cmd, msg, client)
		return true, nil
	case KindSyncChannels:
		p.handleSyncChannels(ctx, msg, client)
		return true, nil
	default:
		return false, nil
	}
}

// handleRegister runs "!register <key>". All failures are reported to the
// user; unexpected errors collapse into one generic message.
func (p *Processor) handleRegister(ctx context.Context, cmd Command, msg *platform.Message, client platform.Client) {
	p.logger.Info("registration command received", "team_id", msg.TeamID)

	err := p.registerTeam(ctx, cmd.Key, msg)
	if err == nil {
		p.logger.Info("registration successful", "team_id", msg.TeamID)
		p.reply(ctx, client, msg, msgRegisterSuccess)
		return
	}

	var regErr *RegistrationError
	if errors.As(err, &regErr) {
		p.logger.Debug("registration rejected", "team_id", msg.TeamID, "reason", regErr.Message)
		p.reply(ctx, client, msg, ":x: **Registration failed.**\n\n"+regErr.Message)
		return
	}

	p.logger.Error("registration failed unexpectedly", "team_id", msg.TeamID, "error", err)
	p.reply(ctx, client, msg, ":x: **Registration failed.**\n\n"+msgUnexpectedError)
}

// registerTeam validates the key and performs the one-shot binding.
func (p *Processor) registerTeam(ctx context.Context, key string, msg *platform.Message) error {
	if key == "" {
		return &RegistrationError{Message: msgRegisterUsage}
	}

	// One team maps to at most one tenant.
	if existing := p.cache.Tenant(msg.TeamID); existing != "" {
		return &RegistrationError{Message: msgAlreadyRegistered}
	}

	tenantID, ok := ParseRegistrationKey(key)
	if !ok {
		return &RegistrationError{Message: msgInvalidKeyFormat}
	}

	cfg, err := p.store.GetTeamConfigByRegistrationKey(ctx, tenantID, key)
	if errors.Is(err, store.ErrNotFound) {
		return &RegistrationError{Message: msgKeyNotFound}
	}
	if err != nil {
		return fmt.Errorf("loading team config by key: %w", err)
	}

	if cfg.TeamID != nil {
		return &RegistrationError{Message: msgKeyAlreadyUsed}
	}

	// The team name is unknown at this point; a later channel sync or
	// admin edit fills in the real one.
	teamName := "Team " + truncateID(msg.TeamID, 8)
	err = p.store.RegisterTeam(ctx, cfg.ID, msg.TeamID, teamName, time.Now().UTC())
	if errors.Is(err, store.ErrAlreadyRegistered) {
		return &RegistrationError{Message: msgKeyAlreadyUsed}
	}
	if errors.Is(err, store.ErrDuplicateTeam) {
		return &RegistrationError{Message: msgAlreadyRegistered}
	}
	if err != nil {
		return fmt.Errorf("registering team: %w", err)
	}

	if err := p.cache.RefreshTeam(ctx, msg.TeamID, tenantID); err != nil {
		return fmt.Errorf("refreshing cache after registration: %w", err)
	}
	return nil
}

// handleSyncChannels runs "!sync-channels". The channel diff itself lives in
// the store; the command validates the team and points operators at the
// admin surface.
func (p *Processor) handleSyncChannels(ctx context.Context, msg *platform.Message, client platform.Client) {
	p.logger.Info("sync-channels command received", "team_id", msg.TeamID)

	err := p.checkSyncChannels(ctx, msg)
	if err == nil {
		p.reply(ctx, client, msg, msgSyncChannelsInfo)
		p.logger.Info("sync-channels info provided", "team_id", msg.TeamID)
		return
	}

	var syncErr *SyncChannelsError
	if errors.As(err, &syncErr) {
		p.logger.Debug("sync-channels rejected", "team_id", msg.TeamID, "reason", syncErr.Message)
		p.reply(ctx, client, msg, ":x: **Channel sync failed.**\n\n"+syncErr.Message)
		return
	}

	p.logger.Error("sync-channels failed unexpectedly", "team_id", msg.TeamID, "error", err)
	p.reply(ctx, client, msg, ":x: **Channel sync failed.**\n\n"+msgUnexpectedError)
}

func (p *Processor) checkSyncChannels(ctx context.Context, msg *platform.Message) error {
	tenantID := p.cache.Tenant(msg.TeamID)
	if tenantID == "" {
		return &SyncChannelsError{Message: msgTeamNotRegistered}
	}

	_, err := p.store.GetTeamConfigByTeamID(ctx, tenantID, msg.TeamID)
	if errors.Is(err, store.ErrNotFound) {
		return &SyncChannelsError{Message: msgTeamConfigMissing}
	}
	if err != nil {
		return fmt.Errorf("loading team config: %w", err)
	}
	return nil
}

// SyncTeamChannels reconciles stored channel configs against the platform's
// current channel list. Independently invocable; returns the three counts.
func (p *Processor) SyncTeamChannels(ctx context.Context, teamConfigID int64, channels []store.ChannelView) (added, removed, updated int, err error) {
	return p.store.SyncChannelConfigs(ctx, teamConfigID, channels)
}

// reply posts a command response, threaded off the invoking post when that
// post is already in a thread.
func (p *Processor) reply(ctx context.Context, client platform.Client, msg *platform.Message, text string) {
	rootID := ""
	if msg.IsThread() {
		rootID = msg.PostID
	}
	if _, err := client.CreatePost(ctx, msg.ChannelID, text, rootID); err != nil {
		p.logger.Error("failed to post command reply", "channel_id", msg.ChannelID, "error", err)
	}
}

// truncateID shortens an opaque id for display.
func truncateID(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n]
}
