package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

const intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsMessageContent

// NewSession creates an unopened bot session. The session is usable for REST calls
// (DMs, roles) before Run connects the gateway.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.Identify.Intents = intents
	return s, nil
}

// Run connects s, dispatches its messages to b and blocks until ctx ends.
func Run(ctx context.Context, s *discordgo.Session, b *Bot) error {
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		slog.Info("bot connected", "bot", b.name, "user", r.User.Username)
	})
	s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		b.HandleMessage(ctx, m)
	})
	if err := s.Open(); err != nil {
		return fmt.Errorf("open %s session: %w", b.name, err)
	}
	<-ctx.Done()
	slog.Info("bot disconnecting", "bot", b.name)
	return s.Close()
}
