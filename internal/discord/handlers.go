package discord

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/chris/taskbot/internal/domain"
)

const (
	maxMessageLen = 2000
	replyTimeout  = 30 * time.Second
)

func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore own messages
	if m.Author.ID == s.State.User.ID {
		return
	}

	// Only respond to DMs or when mentioned
	isDM := m.GuildID == ""
	isMentioned := false
	for _, u := range m.Mentions {
		if u.ID == s.State.User.ID {
			isMentioned = true
			break
		}
	}
	if !isDM && !isMentioned {
		return
	}

	content := strings.TrimSpace(stripMention(m.Content, s.State.User.ID))
	if content == "" {
		return
	}

	s.ChannelTyping(m.ChannelID)

	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()
	reply := b.reply(ctx, m.ChannelID, m.Author.Username, content)

	for _, chunk := range splitMessage(reply, maxMessageLen) {
		if _, err := s.ChannelMessageSend(m.ChannelID, chunk); err != nil {
			b.logger.Warn("sending discord message", "channel", m.ChannelID, "error", err)
		}
	}
}

// reply routes content within the channel's conversation and returns the text
// to send back. Failures come back as their user-facing answer.
func (b *Bot) reply(ctx context.Context, channelID, author, content string) string {
	var userID int64
	if b.users != nil {
		id, err := b.users.ResolveUser(ctx, author)
		if err != nil {
			b.logger.Warn("resolving discord user", "author", author, "error", err)
		}
		userID = id
	}

	convID := "discord:" + channelID
	answer, err := b.router.Handle(ctx, domain.NewQuery(content, userID, convID), b.convs.GetOrCreate(convID))
	if err != nil {
		b.logger.Info("discord turn failed", "conversation", convID, "kind", domain.KindOf(err), "error", err)
	}
	return answer.Text
}

func stripMention(s, userID string) string {
	s = strings.ReplaceAll(s, "<@"+userID+">", "")
	s = strings.ReplaceAll(s, "<@!"+userID+">", "")
	return s
}

func splitMessage(s string, maxLen int) []string {
	if len(s) <= maxLen {
		return []string{s}
	}
	var chunks []string
	for len(s) > 0 {
		end := maxLen
		if end > len(s) {
			end = len(s)
		}
		// Try to split at a newline
		if idx := strings.LastIndex(s[:end], "\n"); idx > 0 {
			end = idx + 1
		}
		chunks = append(chunks, s[:end])
		s = s[end:]
	}
	return chunks
}
