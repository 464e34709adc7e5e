// ABOUTME: Command parsing for the onboarding protocol
// ABOUTME: Text is parsed into a tagged Command; dispatch happens in the processor

package command

import (
	"strings"
)

// Prefix marks command messages.
const Prefix = "!"

// Command keywords.
const (
	registerKeyword     = "register"
	syncChannelsKeyword = "sync-channels"
)

// registrationKeyPrefix is the required lead-in of every registration key.
const registrationKeyPrefix = "mattermost_"

// Kind discriminates parsed commands.
type Kind int

const (
	// KindNone means the text is not a command; it falls through to chat
	// handling. Unrecognized "!" text is also KindNone.
	KindNone Kind = iota

	// KindRegister is "!register <key>".
	KindRegister

	// KindSyncChannels is "!sync-channels".
	KindSyncChannels
)

// Command is a parsed command message.
type Command struct {
	Kind Kind

	// Key is the registration key argument, possibly empty, for KindRegister.
	Key string
}

// Parse classifies message text. Text without the command prefix, and
// prefixed text that matches no known command, both yield KindNone.
func Parse(text string) Command {
	content := strings.TrimSpace(text)

	if !strings.HasPrefix(content, Prefix) {
		return Command{Kind: KindNone}
	}

	if strings.HasPrefix(content, Prefix+registerKeyword) {
		fields := strings.Fields(content)
		key := ""
		if len(fields) >= 2 {
			key = fields[1]
		}
		return Command{Kind: KindRegister, Key: key}
	}

	if strings.HasPrefix(content, Prefix+syncChannelsKeyword) {
		return Command{Kind: KindSyncChannels}
	}

	return Command{Kind: KindNone}
}

// ParseRegistrationKey extracts the tenant id from a registration key of
// the form "mattermost_<tenant_id>.<token>". ok is false when the prefix is
// missing, no dot follows the prefix, or the tenant id is empty.
func ParseRegistrationKey(key string) (string, bool) {
	if !strings.HasPrefix(key, registrationKeyPrefix) {
		return "", false
	}

	rest := strings.TrimPrefix(key, registrationKeyPrefix)
	tenantID, _, found := strings.Cut(rest, ".")
	if !found || tenantID == "" {
		return "", false
	}
	return tenantID, true
}
