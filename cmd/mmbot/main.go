// ABOUTME: Entry point for the Mattermost bot service
// ABOUTME: Loads config, wires the store/cache/pipeline, and supervises tenant connections

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/onyx-dot-app/mattermost-bot/internal/answer"
	"github.com/onyx-dot-app/mattermost-bot/internal/cache"
	"github.com/onyx-dot-app/mattermost-bot/internal/chat"
	"github.com/onyx-dot-app/mattermost-bot/internal/command"
	"github.com/onyx-dot-app/mattermost-bot/internal/config"
	"github.com/onyx-dot-app/mattermost-bot/internal/platform"
	"github.com/onyx-dot-app/mattermost-bot/internal/router"
	"github.com/onyx-dot-app/mattermost-bot/internal/store"
	"github.com/onyx-dot-app/mattermost-bot/internal/supervisor"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                      _           _
  _ __ ___  _ __ ___ | |__   ___ | |_
 | '_ ' _ \| '_ ' _ \| '_ \ / _ \| __|
 | | | | | | | | | | | |_) | (_) | |_
 |_| |_| |_|_| |_| |_|_.__/ \___/ \__|
`

// getConfigPath returns the path to the bot config file.
// Priority: MMBOT_CONFIG env var > XDG_CONFIG_HOME/mmbot/config.yaml > ~/.config/mmbot/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("MMBOT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "mmbot", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: mmbot <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the bot and connect registered tenants")
		fmt.Println("  version   Print the build version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Answer:   %s\n", cfg.Answer.URL)
	fmt.Println()

	logger.Info("starting mmbot",
		"config", configPath,
		"database", cfg.Database.Path,
		"answer_url", cfg.Answer.URL,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	routingCache := cache.New(cache.NewStoreLoader(st))
	service := answer.NewHTTPService(cfg.Answer.URL)

	var pipelineOpts []chat.Option
	if cfg.Bot.MaxMessageLength > 0 {
		pipelineOpts = append(pipelineOpts, chat.WithMaxMessageLength(cfg.Bot.MaxMessageLength))
	}
	if cfg.Bot.MaxContextMessages > 0 {
		pipelineOpts = append(pipelineOpts, chat.WithMaxContextMessages(cfg.Bot.MaxContextMessages))
	}

	sup := supervisor.New(
		supervisor.Options{
			RefreshInterval:      cfg.Bot.RefreshInterval,
			ReconnectDelay:       cfg.Bot.ReconnectDelay,
			MaxReconnectAttempts: cfg.Bot.MaxReconnectAttempts,
			WorkerPoolSize:       cfg.Bot.WorkerPoolSize,
		},
		routingCache,
		platform.NewMattermostDialer(),
		service,
		router.New(st),
		command.NewProcessor(st, routingCache),
		chat.New(service, pipelineOpts...),
	)

	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("starting supervisor: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	sup.Stop()
	return nil
}

func setupLogger(cfg config.Logging) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	// Handler-level attrs first (from WithAttrs), then record attrs.
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
