// ABOUTME: Client decorator routing blocking platform calls through a bounded worker pool
// ABOUTME: One tenant's blocking I/O never starves another tenant's processing

package supervisor

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/onyx-dot-app/mattermost-bot/internal/platform"
)

// pooledClient wraps a platform.Client so every blocking call holds one
// worker-pool permit for its duration. The event-stream subscription holds
// its permit for the connection's lifetime, matching the pool's sizing
// contract (pool size bounds concurrent connections plus in-flight calls).
type pooledClient struct {
	inner platform.Client
	pool  *semaphore.Weighted
}

func newPooledClient(inner platform.Client, pool *semaphore.Weighted) *pooledClient {
	return &pooledClient{inner: inner, pool: pool}
}

func (c *pooledClient) Login(ctx context.Context) error {
	if err := c.pool.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.pool.Release(1)
	return c.inner.Login(ctx)
}

func (c *pooledClient) Me(ctx context.Context) (platform.User, error) {
	if err := c.pool.Acquire(ctx, 1); err != nil {
		return platform.User{}, err
	}
	defer c.pool.Release(1)
	return c.inner.Me(ctx)
}

func (c *pooledClient) CreatePost(ctx context.Context, channelID, message, rootID string) (platform.Post, error) {
	if err := c.pool.Acquire(ctx, 1); err != nil {
		return platform.Post{}, err
	}
	defer c.pool.Release(1)
	return c.inner.CreatePost(ctx, channelID, message, rootID)
}

func (c *pooledClient) AddReaction(ctx context.Context, postID, emojiName, userID string) error {
	if err := c.pool.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.pool.Release(1)
	return c.inner.AddReaction(ctx, postID, emojiName, userID)
}

func (c *pooledClient) RemoveReaction(ctx context.Context, postID, emojiName, userID string) error {
	if err := c.pool.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.pool.Release(1)
	return c.inner.RemoveReaction(ctx, postID, emojiName, userID)
}

func (c *pooledClient) GetThread(ctx context.Context, postID string) (platform.Thread, error) {
	if err := c.pool.Acquire(ctx, 1); err != nil {
		return platform.Thread{}, err
	}
	defer c.pool.Release(1)
	return c.inner.GetThread(ctx, postID)
}

func (c *pooledClient) GetUser(ctx context.Context, userID string) (platform.User, error) {
	if err := c.pool.Acquire(ctx, 1); err != nil {
		return platform.User{}, err
	}
	defer c.pool.Release(1)
	return c.inner.GetUser(ctx, userID)
}

func (c *pooledClient) GetChannelsForTeam(ctx context.Context, userID, teamID string) ([]platform.Channel, error) {
	if err := c.pool.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.pool.Release(1)
	return c.inner.GetChannelsForTeam(ctx, userID, teamID)
}

func (c *pooledClient) Listen(ctx context.Context, handler func(event []byte)) error {
	if err := c.pool.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.pool.Release(1)
	return c.inner.Listen(ctx, handler)
}

func (c *pooledClient) Disconnect() error {
	return c.inner.Disconnect()
}
