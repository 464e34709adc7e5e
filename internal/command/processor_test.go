// ABOUTME: Tests for the onboarding command processor
// ABOUTME: Covers every registration rejection path and the sync-channels flow

package command

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onyx-dot-app/mattermost-bot/internal/cache"
	"github.com/onyx-dot-app/mattermost-bot/internal/platform"
	"github.com/onyx-dot-app/mattermost-bot/internal/store"
)

// recordedPost is one CreatePost call captured by the fake client.
type recordedPost struct {
	ChannelID string
	Message   string
	RootID    string
}

// fakeClient records posts and stubs out the rest of the platform client.
type fakeClient struct {
	posts []recordedPost
}

func (c *fakeClient) Login(ctx context.Context) error { return nil }
func (c *fakeClient) Me(ctx context.Context) (platform.User, error) {
	return platform.User{ID: "bot-user", Username: "onyxbot"}, nil
}
func (c *fakeClient) CreatePost(ctx context.Context, channelID, message, rootID string) (platform.Post, error) {
	c.posts = append(c.posts, recordedPost{ChannelID: channelID, Message: message, RootID: rootID})
	return platform.Post{ID: "reply-post"}, nil
}
func (c *fakeClient) AddReaction(ctx context.Context, postID, emojiName, userID string) error {
	return nil
}
func (c *fakeClient) RemoveReaction(ctx context.Context, postID, emojiName, userID string) error {
	return nil
}
func (c *fakeClient) GetThread(ctx context.Context, postID string) (platform.Thread, error) {
	return platform.Thread{}, nil
}
func (c *fakeClient) GetUser(ctx context.Context, userID string) (platform.User, error) {
	return platform.User{ID: userID}, nil
}
func (c *fakeClient) GetChannelsForTeam(ctx context.Context, userID, teamID string) ([]platform.Channel, error) {
	return nil, nil
}
func (c *fakeClient) Listen(ctx context.Context, handler func(event []byte)) error { return nil }
func (c *fakeClient) Disconnect() error                                            { return nil }

func (c *fakeClient) lastPost(t *testing.T) recordedPost {
	t.Helper()
	require.NotEmpty(t, c.posts, "expected a reply post")
	return c.posts[len(c.posts)-1]
}

type fixture struct {
	store     store.Store
	cache     *cache.RoutingCache
	processor *Processor
	client    *fakeClient
	tenants   map[string]bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	routingCache := cache.New(cache.NewStoreLoader(st))
	return &fixture{
		store:     st,
		cache:     routingCache,
		processor: NewProcessor(st, routingCache),
		client:    &fakeClient{},
		tenants:   make(map[string]bool),
	}
}

// issueKey creates an unredeemed registration key; the tenant row is
// created on first use.
func (f *fixture) issueKey(t *testing.T, tenantID, token string) string {
	t.Helper()
	ctx := context.Background()

	if !f.tenants[tenantID] {
		require.NoError(t, f.store.CreateTenant(ctx, tenantID))
		f.tenants[tenantID] = true
	}

	key := "mattermost_" + tenantID + "." + token
	_, err := f.store.CreateTeamConfig(ctx, tenantID, key)
	require.NoError(t, err)
	return key
}

func registerMessage(teamID, text string) *platform.Message {
	return &platform.Message{
		PostID:    "post-1",
		ChannelID: "ch1",
		TeamID:    teamID,
		UserID:    "user-1",
		Text:      text,
	}
}

func TestHandle_NoneFallsThrough(t *testing.T) {
	f := newFixture(t)

	handled, err := f.processor.Handle(context.Background(), Command{Kind: KindNone},
		registerMessage("team-1", "hello"), f.client)
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Empty(t, f.client.posts)
}

func TestRegister_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.issueKey(t, "tenant-a", "tok1")

	cmd := Parse("!register " + key)
	handled, err := f.processor.Handle(ctx, cmd, registerMessage("team-1", ""), f.client)
	require.NoError(t, err)
	assert.True(t, handled)

	assert.Contains(t, f.client.lastPost(t).Message, "Successfully registered")

	// Store binding completed
	cfg, err := f.store.GetTeamConfigByTeamID(ctx, "tenant-a", "team-1")
	require.NoError(t, err)
	require.NotNil(t, cfg.TeamName)
	assert.Equal(t, "Team team-1", *cfg.TeamName)

	// Cache sees the new team without a full refresh
	assert.Equal(t, "tenant-a", f.cache.Tenant("team-1"))
	assert.NotEmpty(t, f.cache.APIKey("tenant-a"))
}

func TestRegister_EmptyKey(t *testing.T) {
	f := newFixture(t)

	_, err := f.processor.Handle(context.Background(), Parse("!register"),
		registerMessage("team-1", ""), f.client)
	require.NoError(t, err)

	assert.Contains(t, f.client.lastPost(t).Message, "Usage: `!register <key>`")
}

func TestRegister_InvalidKeyFormat(t *testing.T) {
	f := newFixture(t)

	_, err := f.processor.Handle(context.Background(), Parse("!register not-a-real-key"),
		registerMessage("team-1", ""), f.client)
	require.NoError(t, err)

	assert.Contains(t, f.client.lastPost(t).Message, "Invalid registration key format")
}

func TestRegister_KeyNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.CreateTenant(ctx, "tenant-a"))

	_, err := f.processor.Handle(ctx, Parse("!register mattermost_tenant-a.unknown"),
		registerMessage("team-1", ""), f.client)
	require.NoError(t, err)

	assert.Contains(t, f.client.lastPost(t).Message, "Registration key not found")
}

func TestRegister_KeyAlreadyUsed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.issueKey(t, "tenant-a", "tok1")

	_, err := f.processor.Handle(ctx, Parse("!register "+key),
		registerMessage("team-1", ""), f.client)
	require.NoError(t, err)

	// Another team tries the same key
	_, err = f.processor.Handle(ctx, Parse("!register "+key),
		registerMessage("team-2", ""), f.client)
	require.NoError(t, err)

	assert.Contains(t, f.client.lastPost(t).Message, "already been used")
}

func TestRegister_TeamAlreadyRegistered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.issueKey(t, "tenant-a", "tok1")
	second := f.issueKey(t, "tenant-a", "tok2")

	_, err := f.processor.Handle(ctx, Parse("!register "+first),
		registerMessage("team-1", ""), f.client)
	require.NoError(t, err)

	// The same team presents a fresh key; the cache already routes it
	_, err = f.processor.Handle(ctx, Parse("!register "+second),
		registerMessage("team-1", ""), f.client)
	require.NoError(t, err)

	assert.Contains(t, f.client.lastPost(t).Message, "already registered")
}

func TestRegister_ReplyThreadsOffThreadedPost(t *testing.T) {
	f := newFixture(t)
	key := f.issueKey(t, "tenant-a", "tok1")

	msg := registerMessage("team-1", "")
	msg.RootID = "root-9"

	_, err := f.processor.Handle(context.Background(), Parse("!register "+key), msg, f.client)
	require.NoError(t, err)

	assert.Equal(t, msg.PostID, f.client.lastPost(t).RootID)
}

func TestSyncChannels_TeamNotRegistered(t *testing.T) {
	f := newFixture(t)

	handled, err := f.processor.Handle(context.Background(), Parse("!sync-channels"),
		registerMessage("team-1", ""), f.client)
	require.NoError(t, err)
	assert.True(t, handled)

	assert.Contains(t, f.client.lastPost(t).Message, "not registered")
}

func TestSyncChannels_Registered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.issueKey(t, "tenant-a", "tok1")

	_, err := f.processor.Handle(ctx, Parse("!register "+key),
		registerMessage("team-1", ""), f.client)
	require.NoError(t, err)

	_, err = f.processor.Handle(ctx, Parse("!sync-channels"),
		registerMessage("team-1", ""), f.client)
	require.NoError(t, err)

	assert.Contains(t, f.client.lastPost(t).Message, "Channel Sync")
}

func TestSyncTeamChannels_Counts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.CreateTenant(ctx, "tenant-a"))
	cfg, err := f.store.CreateTeamConfig(ctx, "tenant-a", "mattermost_tenant-a.tok1")
	require.NoError(t, err)
	require.NoError(t, f.store.RegisterTeam(ctx, cfg.ID, "team-1", "Team 1", time.Now()))

	added, removed, updated, err := f.processor.SyncTeamChannels(ctx, cfg.ID, []store.ChannelView{
		{ChannelID: "ch1", ChannelName: "general", ChannelType: "O"},
		{ChannelID: "ch2", ChannelName: "random", ChannelType: "O"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Zero(t, removed)
	assert.Zero(t, updated)
}
