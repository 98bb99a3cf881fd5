// Package discord answers questions from Discord DMs and mentions.
package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/chris/taskbot/internal/agent"
	"github.com/chris/taskbot/internal/memory"
)

// UserResolver maps a Discord username to a store user id. It returns 0 when
// the user is unknown.
type UserResolver interface {
	ResolveUser(ctx context.Context, username string) (int64, error)
}

type Bot struct {
	session *discordgo.Session
	router  *agent.Router
	convs   *memory.Store
	users   UserResolver
	logger  *slog.Logger
}

// NewBot prepares the bot without connecting. users may be nil.
func NewBot(token string, router *agent.Router, convs *memory.Store, users UserResolver, logger *slog.Logger) (*Bot, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating Discord session: %w", err)
	}

	bot := &Bot{session: s, router: router, convs: convs, users: users, logger: logger}
	s.AddHandler(bot.onMessage)
	s.Identify.Intents = discordgo.IntentsDirectMessages | discordgo.IntentsGuildMessages
	return bot, nil
}

func (b *Bot) Open() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("opening Discord connection: %w", err)
	}
	b.logger.Info("discord bot connected", "user", b.session.State.User.Username)
	return nil
}

func (b *Bot) Close() {
	b.session.Close()
}
