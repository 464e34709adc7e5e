// ABOUTME: Connection supervisor: one reconnecting connection per tenant
// ABOUTME: Runs the periodic cache refresh and dispatches decoded events

package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/onyx-dot-app/mattermost-bot/internal/answer"
	"github.com/onyx-dot-app/mattermost-bot/internal/cache"
	"github.com/onyx-dot-app/mattermost-bot/internal/chat"
	"github.com/onyx-dot-app/mattermost-bot/internal/command"
	"github.com/onyx-dot-app/mattermost-bot/internal/platform"
	"github.com/onyx-dot-app/mattermost-bot/internal/router"
)

// Defaults for supervisor timing and sizing.
const (
	DefaultRefreshInterval      = 60 * time.Second
	DefaultReconnectDelay       = 5 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultWorkerPoolSize       = 10
)

// Options configures a Supervisor. Zero fields take the defaults above.
type Options struct {
	RefreshInterval      time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	WorkerPoolSize       int
}

func (o Options) withDefaults() Options {
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = DefaultRefreshInterval
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if o.WorkerPoolSize <= 0 {
		o.WorkerPoolSize = DefaultWorkerPoolSize
	}
	return o
}

// tenantConn is one tenant's live connection and listener.
type tenantConn struct {
	client    platform.Client
	botUserID string
	listener  *Listener
	done      chan struct{}
}

// Supervisor owns one connection per tenant, the periodic refresh loop,
// and event dispatch into the command processor and chat pipeline.
type Supervisor struct {
	opts     Options
	cache    *cache.RoutingCache
	dialer   platform.Dialer
	service  answer.Service
	router   *router.Router
	commands *command.Processor
	pipeline *chat.Pipeline
	pool     *semaphore.Weighted
	logger   *slog.Logger

	// mu guards conns, pending, and the running flag. It is never held
	// across a platform call: dial and login run off the mutex so one
	// slow server cannot stall another tenant's event dispatch.
	mu      sync.Mutex
	conns   map[string]*tenantConn
	pending map[string]bool
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New wires a Supervisor from its collaborators.
func New(
	opts Options,
	routingCache *cache.RoutingCache,
	dialer platform.Dialer,
	service answer.Service,
	msgRouter *router.Router,
	commands *command.Processor,
	pipeline *chat.Pipeline,
) *Supervisor {
	opts = opts.withDefaults()
	return &Supervisor{
		opts:     opts,
		cache:    routingCache,
		dialer:   dialer,
		service:  service,
		router:   msgRouter,
		commands: commands,
		pipeline: pipeline,
		pool:     semaphore.NewWeighted(int64(opts.WorkerPoolSize)),
		logger:   slog.Default().With("component", "supervisor"),
		conns:    make(map[string]*tenantConn),
		pending:  make(map[string]bool),
	}
}

// Start performs one full cache refresh, launches the periodic refresh
// loop, and connects every tenant the cache reports as connectable.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()

	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("supervisor already running")
	}

	s.logger.Info("starting mattermost bot supervisor")

	if err := s.cache.RefreshAll(ctx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("initial cache refresh: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.periodicRefresh(runCtx)

	batch := s.connectMissingLocked(runCtx)
	s.mu.Unlock()

	// The initial connections finish before Start returns; tenants found
	// by later refresh cycles connect in the background.
	batch.Wait()

	s.mu.Lock()
	connected := len(s.conns)
	s.mu.Unlock()
	s.logger.Info("mattermost bot supervisor started", "tenants", connected)
	return nil
}

// Stop cancels the refresh loop and every listener, awaits them,
// disconnects each tenant best-effort, closes the answer service and
// clears the cache.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.logger.Info("stopping mattermost bot supervisor")
	s.running = false
	s.cancel()
	conns := s.conns
	s.conns = make(map[string]*tenantConn)
	s.mu.Unlock()

	// Await the periodic loop and all listener goroutines. Listeners that
	// already halted at their attempt ceiling are simply done.
	s.wg.Wait()

	for tenantID, conn := range conns {
		if err := conn.client.Disconnect(); err != nil {
			s.logger.Warn("error disconnecting tenant", "tenant_id", tenantID, "error", err)
			continue
		}
		s.logger.Info("disconnected from tenant", "tenant_id", tenantID)
	}

	if err := s.service.Close(); err != nil {
		s.logger.Warn("error closing answer service client", "error", err)
	}

	s.cache.Clear()
	s.logger.Info("mattermost bot supervisor stopped")
}

// periodicRefresh refreshes the cache on an interval and connects tenants
// that became eligible. Tenants that became ineligible keep their existing
// connection until process restart; the loop never disconnects them.
func (s *Supervisor) periodicRefresh(ctx context.Context) {
	defer s.wg.Done()

	for sleepCtx(ctx, s.opts.RefreshInterval) {
		if err := s.cache.RefreshAll(ctx); err != nil {
			s.logger.Error("periodic cache refresh failed", "error", err)
			continue
		}

		s.mu.Lock()
		if s.running {
			s.connectMissingLocked(ctx)
		}
		s.mu.Unlock()
	}
}

// connectMissingLocked launches a connect for every connectable tenant that
// has no open or in-flight connection. Each connect runs in its own
// goroutine off the mutex; a tenant's connect failure is logged and does
// not affect the others. Must be called with mu held. The returned
// WaitGroup completes when this batch is done.
func (s *Supervisor) connectMissingLocked(ctx context.Context) *sync.WaitGroup {
	var batch sync.WaitGroup
	for _, tenant := range s.cache.TenantsWithBots() {
		if _, exists := s.conns[tenant.TenantID]; exists {
			continue
		}
		if s.pending[tenant.TenantID] {
			continue
		}
		s.pending[tenant.TenantID] = true

		batch.Add(1)
		s.wg.Add(1)
		go func(tenant cache.TenantBot) {
			defer s.wg.Done()
			defer batch.Done()
			if err := s.connectTenant(ctx, tenant); err != nil {
				s.logger.Error("failed to connect to tenant",
					"tenant_id", tenant.TenantID, "error", err)
			}
		}(tenant)
	}
	return &batch
}

// connectTenant dials one tenant's server, logs in, resolves the bot's own
// identity, and starts its listener. Runs without the supervisor mutex;
// the finished connection is installed under it.
func (s *Supervisor) connectTenant(ctx context.Context, tenant cache.TenantBot) error {
	tenantID := tenant.TenantID
	defer func() {
		s.mu.Lock()
		delete(s.pending, tenantID)
		s.mu.Unlock()
	}()

	s.logger.Info("connecting to mattermost server",
		"tenant_id", tenantID, "server_url", tenant.ServerURL)

	info, err := platform.ParseServerURL(tenant.ServerURL)
	if err != nil {
		return err
	}

	raw, err := s.dialer.Dial(info, tenant.BotToken)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", tenant.ServerURL, err)
	}
	client := newPooledClient(raw, s.pool)

	if err := client.Login(ctx); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	me, err := client.Me(ctx)
	if err != nil {
		return fmt.Errorf("resolving bot identity: %w", err)
	}

	conn := &tenantConn{
		client:    client,
		botUserID: me.ID,
		done:      make(chan struct{}),
	}
	// The listener closure carries its own connection, so event dispatch
	// never waits on the supervisor mutex.
	conn.listener = NewListener(tenantID, client, s.opts.ReconnectDelay, s.opts.MaxReconnectAttempts,
		func(event []byte) {
			s.handleEvent(ctx, tenantID, conn, event)
		})

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		if err := client.Disconnect(); err != nil {
			s.logger.Warn("error disconnecting tenant", "tenant_id", tenantID, "error", err)
		}
		return nil
	}
	s.conns[tenantID] = conn
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer close(conn.done)
		conn.listener.Run(ctx)
	}()

	s.logger.Info("connected to mattermost server",
		"tenant_id", tenantID,
		"bot_username", me.Username,
		"bot_user_id", me.ID,
	)
	return nil
}

// handleEvent decodes one raw event-stream frame and dispatches it.
// Malformed payloads are dropped with a warning; processing failures are
// isolated to this one event.
func (s *Supervisor) handleEvent(ctx context.Context, tenantID string, conn *tenantConn, raw []byte) {
	msg, err := platform.DecodeEvent(raw)
	if err != nil {
		s.logger.Warn("failed to parse event", "tenant_id", tenantID, "error", err)
		return
	}
	if msg == nil {
		return // not a posted event
	}

	// Never respond to the bot itself or to blank messages.
	if msg.UserID == conn.botUserID {
		return
	}
	if strings.TrimSpace(msg.Text) == "" {
		return
	}

	// Process off the event-stream callback so a slow answer never stalls
	// the tenant's stream.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.processMessage(ctx, tenantID, conn, msg)
	}()
}

// processMessage routes one message: onboarding command, or respond
// decision followed by the chat pipeline.
func (s *Supervisor) processMessage(ctx context.Context, tenantID string, conn *tenantConn, msg *platform.Message) {
	if cmd := command.Parse(msg.Text); cmd.Kind != command.KindNone {
		if _, err := s.commands.Handle(ctx, cmd, msg, conn.client); err != nil {
			s.logger.Error("command handling failed", "tenant_id", tenantID, "error", err)
		}
		return
	}

	decision, err := s.router.ShouldRespond(ctx, msg, tenantID, conn.botUserID)
	if err != nil {
		s.logger.Error("respond decision failed", "tenant_id", tenantID, "error", err)
		return
	}
	if !decision.Respond {
		return
	}

	s.logger.Debug("processing message",
		"tenant_id", tenantID,
		"channel_id", msg.ChannelID,
		"username", msg.Username,
	)

	apiKey := s.cache.APIKey(tenantID)
	if apiKey == "" {
		s.logger.Warn("no API key for tenant", "tenant_id", tenantID)
		return
	}

	s.pipeline.Process(ctx, conn.client, msg, apiKey, decision.PersonaID, decision.ThreadOnly, conn.botUserID)
}
