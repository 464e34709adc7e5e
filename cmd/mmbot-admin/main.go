// ABOUTME: Admin CLI for tenant, team and channel configuration
// ABOUTME: Operates directly on the bot's SQLite store; no server required

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/onyx-dot-app/mattermost-bot/internal/config"
	"github.com/onyx-dot-app/mattermost-bot/internal/store"
)

const banner = `
                      _           _              _           _
  _ __ ___  _ __ ___ | |__   ___ | |_        __ _| |_ __ ___ (_)_ __
 | '_ ' _ \| '_ ' _ \| '_ \ / _ \| __|_____ / _' | | '_ ' _ \| | '_ \
 | | | | | | | | | | | |_) | (_) | |_|_____| (_| | | | | | | | | | | |
 |_| |_| |_|_| |_| |_|_.__/ \___/ \__|      \__,_|_|_| |_| |_|_|_| |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	st, err := openStore()
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()

	switch cmd {
	case "tenants":
		err = cmdTenants(ctx, st, args)
	case "keys":
		err = cmdKeys(ctx, st, args)
	case "teams":
		err = cmdTeams(ctx, st, args)
	case "channels":
		err = cmdChannels(ctx, st, args)
	case "botconfig":
		err = cmdBotConfig(ctx, st, args)
	case "apikey":
		err = cmdAPIKey(ctx, st, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: mmbot-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  tenants                           List tenants")
	fmt.Println("  tenants create <id>               Create a tenant")
	fmt.Println("  tenants gate <id>                 Gate a tenant (excluded from routing)")
	fmt.Println("  tenants ungate <id>               Ungate a tenant")
	fmt.Println("  keys create <tenant-id>           Issue a team registration key")
	fmt.Println("  teams list <tenant-id>            List team configs for a tenant")
	fmt.Println("  teams enable <config-id>          Enable a team config")
	fmt.Println("  teams disable <config-id>         Disable a team config")
	fmt.Println("  teams persona <config-id> <id>    Set the default persona ('none' clears)")
	fmt.Println("  channels list <config-id>         List channel configs for a team config")
	fmt.Println("  channels enable <config-id> <channel-id>")
	fmt.Println("  channels disable <config-id> <channel-id>")
	fmt.Println("  botconfig show <tenant-id>        Show the tenant's connection settings")
	fmt.Println("  botconfig set <tenant-id> <server-url> <bot-token>")
	fmt.Println("  apikey show <tenant-id>           Show the stored service key fragment")
	fmt.Println("  apikey rotate <tenant-id>         Regenerate the service key and print it")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  MMBOT_CONFIG    Path to the bot config file (for the database path)")
	fmt.Println()
}

// getConfigPath mirrors the serve binary's config resolution.
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

func openStore() (store.Store, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return store.NewSQLiteStore(cfg.Database.Path)
}

func cmdTenants(ctx context.Context, st store.Store, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return tenantsList(ctx, st)
	case "create", "add":
		if len(args) < 1 {
			return fmt.Errorf("usage: tenants create <id>")
		}
		if err := st.CreateTenant(ctx, args[0]); err != nil {
			return fmt.Errorf("creating tenant: %w", err)
		}
		color.Green("Created tenant %s\n", args[0])
		return nil
	case "gate":
		if len(args) < 1 {
			return fmt.Errorf("usage: tenants gate <id>")
		}
		if err := st.SetTenantGated(ctx, args[0], true); err != nil {
			return err
		}
		color.Yellow("Gated tenant %s\n", args[0])
		return nil
	case "ungate":
		if len(args) < 1 {
			return fmt.Errorf("usage: tenants ungate <id>")
		}
		if err := st.SetTenantGated(ctx, args[0], false); err != nil {
			return err
		}
		color.Green("Ungated tenant %s\n", args[0])
		return nil
	default:
		return fmt.Errorf("unknown tenants subcommand: %s (use list, create, gate, ungate)", subcmd)
	}
}

func tenantsList(ctx context.Context, st store.Store) error {
	ids, err := st.ListTenantIDs(ctx)
	if err != nil {
		return err
	}
	gatedIDs, err := st.ListGatedTenantIDs(ctx)
	if err != nil {
		return err
	}
	gated := make(map[string]bool, len(gatedIDs))
	for _, id := range gatedIDs {
		gated[id] = true
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Tenants")
	cyan.Println("  -------")

	if len(ids) == 0 {
		fmt.Println("  (no tenants)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tSTATUS")
	fmt.Fprintln(w, "  --\t------")
	for _, id := range ids {
		status := "active"
		if gated[id] {
			status = "gated"
		}
		fmt.Fprintf(w, "  %s\t%s\n", id, status)
	}
	w.Flush()
	fmt.Println()
	return nil
}

func cmdKeys(ctx context.Context, st store.Store, args []string) error {
	if len(args) < 2 || args[0] != "create" {
		return fmt.Errorf("usage: keys create <tenant-id>")
	}
	tenantID := args[1]

	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	key := fmt.Sprintf("mattermost_%s.%s", tenantID, token)

	cfg, err := st.CreateTeamConfig(ctx, tenantID, key)
	if err != nil {
		return fmt.Errorf("creating team config: %w", err)
	}

	fmt.Println()
	color.Green("Registration key issued (team config %d):\n", cfg.ID)
	fmt.Println()
	fmt.Printf("  %s\n", key)
	fmt.Println()
	fmt.Println("Run this in any channel of the target team:")
	fmt.Printf("  !register %s\n", key)
	fmt.Println()
	return nil
}

func cmdTeams(ctx context.Context, st store.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: teams <list|enable|disable|persona> ...")
	}
	subcmd := args[0]
	args = args[1:]

	switch subcmd {
	case "list", "ls":
		if len(args) < 1 {
			return fmt.Errorf("usage: teams list <tenant-id>")
		}
		return teamsList(ctx, st, args[0])
	case "enable", "disable":
		if len(args) < 1 {
			return fmt.Errorf("usage: teams %s <config-id>", subcmd)
		}
		return teamsSetEnabled(ctx, st, args[0], subcmd == "enable")
	case "persona":
		if len(args) < 2 {
			return fmt.Errorf("usage: teams persona <config-id> <persona-id|none>")
		}
		return teamsSetPersona(ctx, st, args[0], args[1])
	default:
		return fmt.Errorf("unknown teams subcommand: %s (use list, enable, disable, persona)", subcmd)
	}
}

func teamsList(ctx context.Context, st store.Store, tenantID string) error {
	configs, err := st.ListTeamConfigs(ctx, tenantID)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Printf("  Team configs for %s\n", tenantID)
	cyan.Println("  -------------------")

	if len(configs) == 0 {
		fmt.Println("  (no team configs)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tTEAM\tNAME\tENABLED\tPERSONA\tREGISTERED")
	fmt.Fprintln(w, "  --\t----\t----\t-------\t-------\t----------")
	for _, cfg := range configs {
		team := "(unregistered)"
		if cfg.TeamID != nil {
			team = *cfg.TeamID
		}
		name := ""
		if cfg.TeamName != nil {
			name = *cfg.TeamName
		}
		persona := "-"
		if cfg.DefaultPersonaID != nil {
			persona = strconv.FormatInt(*cfg.DefaultPersonaID, 10)
		}
		registered := "-"
		if cfg.RegisteredAt != nil {
			registered = cfg.RegisteredAt.Format("Jan 02 15:04")
		}
		fmt.Fprintf(w, "  %d\t%s\t%s\t%t\t%s\t%s\n", cfg.ID, team, name, cfg.Enabled, persona, registered)
	}
	w.Flush()
	fmt.Println()
	return nil
}

func teamsSetEnabled(ctx context.Context, st store.Store, idArg string, enabled bool) error {
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		return fmt.Errorf("bad config id %q", idArg)
	}

	cfg, err := st.GetTeamConfig(ctx, id)
	if err != nil {
		return err
	}
	if err := st.UpdateTeamConfig(ctx, id, enabled, cfg.DefaultPersonaID); err != nil {
		return err
	}

	if enabled {
		color.Green("Enabled team config %d\n", id)
	} else {
		color.Yellow("Disabled team config %d\n", id)
	}
	return nil
}

func teamsSetPersona(ctx context.Context, st store.Store, idArg, personaArg string) error {
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		return fmt.Errorf("bad config id %q", idArg)
	}

	cfg, err := st.GetTeamConfig(ctx, id)
	if err != nil {
		return err
	}

	var persona *int64
	if personaArg != "none" {
		p, err := strconv.ParseInt(personaArg, 10, 64)
		if err != nil {
			return fmt.Errorf("bad persona id %q", personaArg)
		}
		persona = &p
	}

	if err := st.UpdateTeamConfig(ctx, id, cfg.Enabled, persona); err != nil {
		return err
	}
	color.Green("Updated default persona for team config %d\n", id)
	return nil
}

func cmdChannels(ctx context.Context, st store.Store, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: channels <list|enable|disable> <config-id> [channel-id]")
	}
	subcmd := args[0]

	configID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("bad config id %q", args[1])
	}

	switch subcmd {
	case "list", "ls":
		return channelsList(ctx, st, configID)
	case "enable", "disable":
		if len(args) < 3 {
			return fmt.Errorf("usage: channels %s <config-id> <channel-id>", subcmd)
		}
		return channelsSetEnabled(ctx, st, configID, args[2], subcmd == "enable")
	default:
		return fmt.Errorf("unknown channels subcommand: %s (use list, enable, disable)", subcmd)
	}
}

func channelsList(ctx context.Context, st store.Store, configID int64) error {
	channels, err := st.ListChannelConfigs(ctx, configID)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Printf("  Channels for team config %d\n", configID)
	cyan.Println("  ---------------------------")

	if len(channels) == 0 {
		fmt.Println("  (no channels - run !sync-channels in the team first)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  CHANNEL\tNAME\tTYPE\tENABLED\tINVOKE-ONLY\tTHREAD-ONLY")
	fmt.Fprintln(w, "  -------\t----\t----\t-------\t-----------\t-----------")
	for _, ch := range channels {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%t\t%t\t%t\n",
			ch.ChannelID, ch.ChannelName, ch.ChannelType,
			ch.Enabled, ch.RequireBotInvocation, ch.ThreadOnlyMode)
	}
	w.Flush()
	fmt.Println()
	return nil
}

func channelsSetEnabled(ctx context.Context, st store.Store, configID int64, channelID string, enabled bool) error {
	channels, err := st.ListChannelConfigs(ctx, configID)
	if err != nil {
		return err
	}

	for _, ch := range channels {
		if ch.ChannelID != channelID {
			continue
		}
		ch.Enabled = enabled
		if err := st.UpdateChannelConfig(ctx, ch); err != nil {
			return err
		}
		if enabled {
			color.Green("Enabled channel %s\n", channelID)
		} else {
			color.Yellow("Disabled channel %s\n", channelID)
		}
		return nil
	}
	return fmt.Errorf("channel %s not found in team config %d", channelID, configID)
}

func cmdBotConfig(ctx context.Context, st store.Store, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: botconfig <show|set> <tenant-id> [server-url bot-token]")
	}
	subcmd := args[0]
	tenantID := args[1]

	switch subcmd {
	case "show":
		cfg, err := st.GetBotConfig(ctx, tenantID)
		if err != nil {
			return err
		}
		fmt.Println()
		fmt.Printf("  Tenant:      %s\n", cfg.TenantID)
		fmt.Printf("  Server URL:  %s\n", cfg.ServerURL)
		fmt.Printf("  Bot token:   %s\n", maskToken(cfg.BotToken))
		if cfg.BotUserID != "" {
			fmt.Printf("  Bot user:    %s\n", cfg.BotUserID)
		}
		fmt.Println()
		return nil
	case "set":
		if len(args) < 4 {
			return fmt.Errorf("usage: botconfig set <tenant-id> <server-url> <bot-token>")
		}
		cfg := &store.BotConfig{
			TenantID:  tenantID,
			ServerURL: args[2],
			BotToken:  args[3],
		}
		if err := st.SetBotConfig(ctx, cfg); err != nil {
			return err
		}
		color.Green("Saved bot config for %s\n", tenantID)
		return nil
	default:
		return fmt.Errorf("unknown botconfig subcommand: %s (use show, set)", subcmd)
	}
}

func cmdAPIKey(ctx context.Context, st store.Store, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: apikey <show|rotate> <tenant-id>")
	}
	subcmd := args[0]
	tenantID := args[1]

	switch subcmd {
	case "show":
		key, err := st.GetServiceAPIKey(ctx, tenantID)
		if err != nil {
			return err
		}
		fmt.Println()
		fmt.Printf("  Tenant:   %s\n", key.TenantID)
		fmt.Printf("  Name:     %s\n", key.Name)
		fmt.Printf("  Key:      %s\n", key.DisplayKey)
		fmt.Printf("  Created:  %s\n", key.CreatedAt.Format(time.RFC3339))
		fmt.Println()
		return nil
	case "rotate":
		raw, err := st.GetOrCreateServiceAPIKey(ctx, tenantID)
		if err != nil {
			return err
		}
		fmt.Println()
		color.Yellow("New service API key (shown once, store it now):\n")
		fmt.Println()
		fmt.Printf("  %s\n", raw)
		fmt.Println()
		fmt.Println("The bot picks up the rotated key on its next cache refresh.")
		return nil
	default:
		return fmt.Errorf("unknown apikey subcommand: %s (use show, rotate)", subcmd)
	}
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "********"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
