// ABOUTME: Chat pipeline: context building, answer-service call, reply formatting
// ABOUTME: Handles citations, message splitting, thread placement and the error apology

package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/onyx-dot-app/mattermost-bot/internal/answer"
	"github.com/onyx-dot-app/mattermost-bot/internal/platform"
)

const (
	// DefaultMaxMessageLength is Mattermost's maximum post length.
	DefaultMaxMessageLength = 16383

	// DefaultMaxContextMessages caps how many thread posts feed the context.
	DefaultMaxContextMessages = 10

	// thinkingEmoji is the transient processing indicator.
	thinkingEmoji = "hourglass_flowing_sand"

	// botDisplayName labels the bot's own posts in thread context.
	botDisplayName = "OnyxBot"

	// maxCitations caps the rendered citations block.
	maxCitations = 5
)

// errorApology is the fixed, non-revealing reply for any processing failure.
const errorApology = "Sorry, I encountered an error processing your message. " +
	"Please try again or contact your administrator."

// contextPreamble frames the thread history handed to the answer service.
const contextPreamble = "You are a Mattermost bot named OnyxBot.\n" +
	"Always assume that [user] is the same as the \"Current message\" author.\n" +
	"Conversation history:\n" +
	"---\n"

// Pipeline turns an accepted message into a reply.
type Pipeline struct {
	service answer.Service
	logger  *slog.Logger

	maxMessageLength   int
	maxContextMessages int
}

// Option adjusts pipeline limits.
type Option func(*Pipeline)

// WithMaxMessageLength overrides the platform post length limit.
func WithMaxMessageLength(n int) Option {
	return func(p *Pipeline) { p.maxMessageLength = n }
}

// WithMaxContextMessages overrides the thread context cap.
func WithMaxContextMessages(n int) Option {
	return func(p *Pipeline) { p.maxContextMessages = n }
}

// New creates a Pipeline over the answer service.
func New(service answer.Service, opts ...Option) *Pipeline {
	p := &Pipeline{
		service:            service,
		logger:             slog.Default().With("component", "chat-pipeline"),
		maxMessageLength:   DefaultMaxMessageLength,
		maxContextMessages: DefaultMaxContextMessages,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process answers one accepted message. Any service failure or unexpected
// error is logged in detail and surfaced to the user as one generic apology.
func (p *Pipeline) Process(
	ctx context.Context,
	client platform.Client,
	msg *platform.Message,
	apiKey string,
	personaID *int64,
	threadOnly bool,
	botUserID string,
) {
	// Transient processing indicator; failures are swallowed.
	if err := client.AddReaction(ctx, msg.PostID, thinkingEmoji, botUserID); err != nil {
		p.logger.Warn("failed to add thinking reaction", "post_id", msg.PostID, "error", err)
	}

	if err := p.respond(ctx, client, msg, apiKey, personaID, threadOnly, botUserID); err != nil {
		p.logger.Error("error processing chat message", "post_id", msg.PostID, "error", err)
		p.sendErrorResponse(ctx, client, msg, botUserID)
	}
}

func (p *Pipeline) respond(
	ctx context.Context,
	client platform.Client,
	msg *platform.Message,
	apiKey string,
	personaID *int64,
	threadOnly bool,
	botUserID string,
) error {
	threadContext := p.buildThreadContext(ctx, client, msg, botUserID)

	var parts []string
	if threadContext != "" {
		parts = append(parts, threadContext)
	}
	parts = append(parts, fmt.Sprintf("Current message from @%s: %s", msg.Username, msg.Text))

	resp, err := p.service.Ask(ctx, answer.AskRequest{
		Message:   strings.Join(parts, "\n\n"),
		PersonaID: personaID,
		APIKey:    apiKey,
	})
	if err != nil {
		return fmt.Errorf("asking answer service: %w", err)
	}

	text := resp.Answer
	if text == "" {
		text = "I couldn't generate a response."
	}
	text += renderCitations(resp)

	if err := p.sendResponse(ctx, client, msg, text, threadOnly); err != nil {
		return fmt.Errorf("sending response: %w", err)
	}

	if err := client.RemoveReaction(ctx, msg.PostID, thinkingEmoji, botUserID); err != nil {
		p.logger.Debug("failed to remove thinking reaction", "post_id", msg.PostID, "error", err)
	}
	return nil
}

// buildThreadContext formats recent thread history for the answer service.
// Only threaded messages have context; failures degrade to no context.
func (p *Pipeline) buildThreadContext(ctx context.Context, client platform.Client, msg *platform.Message, botUserID string) string {
	if !msg.IsThread() {
		return ""
	}

	thread, err := client.GetThread(ctx, msg.RootID)
	if err != nil {
		p.logger.Warn("failed to build thread context", "root_id", msg.RootID, "error", err)
		return ""
	}

	order := thread.Order
	if len(order) > p.maxContextMessages {
		order = order[len(order)-p.maxContextMessages:]
	}

	var lines []string
	for _, postID := range order {
		if postID == msg.PostID {
			continue
		}
		post, ok := thread.Posts[postID]
		if !ok {
			continue
		}

		author := botDisplayName
		if post.UserID != botUserID {
			author = "user_" + truncateID(post.UserID, 8)
		}
		lines = append(lines, author+": "+post.Message)
	}

	if len(lines) == 0 {
		return ""
	}

	p.logger.Debug("built thread context", "messages", len(lines))
	return contextPreamble + strings.Join(lines, "\n") + "\n---"
}

// renderCitations builds the citations block: each citation number matched
// to a source document by id, sorted ascending, capped, rendered as a linked
// or plain list entry. Returns "" when nothing matches.
func renderCitations(resp *answer.ChatResponse) string {
	if len(resp.CitationInfo) == 0 || len(resp.TopDocuments) == 0 {
		return ""
	}

	docsByID := make(map[string]answer.Document, len(resp.TopDocuments))
	for _, doc := range resp.TopDocuments {
		docsByID[doc.DocumentID] = doc
	}

	type cited struct {
		number int
		title  string
		link   string
	}
	var cites []cited
	for _, info := range resp.CitationInfo {
		doc, ok := docsByID[info.DocumentID]
		if !ok {
			continue
		}
		title := doc.SemanticIdentifier
		if title == "" {
			title = "Source"
		}
		cites = append(cites, cited{number: info.CitationNumber, title: title, link: doc.Link})
	}
	if len(cites) == 0 {
		return ""
	}

	sort.Slice(cites, func(i, j int) bool { return cites[i].number < cites[j].number })
	if len(cites) > maxCitations {
		cites = cites[:maxCitations]
	}

	var b strings.Builder
	b.WriteString("\n\n**Sources:**\n")
	for _, c := range cites {
		if c.link != "" {
			fmt.Fprintf(&b, "%d. [%s](%s)\n", c.number, c.title, c.link)
		} else {
			fmt.Fprintf(&b, "%d. %s\n", c.number, c.title)
		}
	}
	return b.String()
}

// sendResponse posts the reply, split into chunks, with thread placement:
// in-thread replies keep the thread's root; thread-only channels start a new
// thread rooted at the original post; otherwise the reply is unthreaded.
func (p *Pipeline) sendResponse(ctx context.Context, client platform.Client, msg *platform.Message, content string, threadOnly bool) error {
	var rootID string
	switch {
	case msg.IsThread():
		rootID = msg.RootID
	case threadOnly:
		rootID = msg.PostID
	}

	for _, chunk := range SplitMessage(content, p.maxMessageLength) {
		if _, err := client.CreatePost(ctx, msg.ChannelID, chunk, rootID); err != nil {
			return err
		}
	}
	return nil
}

// SplitMessage splits content into chunks no longer than maxLen. Preferred
// split points, in order: double newline, single newline, sentence-terminal
// period+space, plain space. A candidate is accepted only when it falls at
// or past half of maxLen; otherwise the hard limit is used.
func SplitMessage(content string, maxLen int) []string {
	var chunks []string
	separators := []string{"\n\n", "\n", ". ", " "}

	for content != "" {
		if len(content) <= maxLen {
			chunks = append(chunks, content)
			break
		}

		splitAt := maxLen
		for _, sep := range separators {
			idx := strings.LastIndex(content[:maxLen], sep)
			if idx > maxLen/2 {
				splitAt = idx + len(sep)
				break
			}
		}

		chunks = append(chunks, content[:splitAt])
		content = content[splitAt:]
	}
	return chunks
}

// sendErrorResponse removes the indicator best-effort and posts the fixed
// apology, threaded: into the existing thread when the original was
// threaded, else rooted at the original post.
func (p *Pipeline) sendErrorResponse(ctx context.Context, client platform.Client, msg *platform.Message, botUserID string) {
	if err := client.RemoveReaction(ctx, msg.PostID, thinkingEmoji, botUserID); err != nil {
		p.logger.Debug("failed to remove thinking reaction", "post_id", msg.PostID, "error", err)
	}

	rootID := msg.PostID
	if msg.IsThread() {
		rootID = msg.RootID
	}
	if _, err := client.CreatePost(ctx, msg.ChannelID, errorApology, rootID); err != nil {
		p.logger.Error("failed to post error response", "channel_id", msg.ChannelID, "error", err)
	}
}

func truncateID(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n]
}
