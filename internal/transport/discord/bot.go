package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

type command func(ctx context.Context, m *discordgo.MessageCreate, args []string)

// Bot routes prefixed commands to handlers. Each bot owns one session and one waiter.
type Bot struct {
	name      string
	gw        Gateway
	guild     *Guild
	prefix    string
	staffRole string
	waiter    *ReplyWaiter
	commands  map[string]command
}

func newBot(name string, gw Gateway, guild *Guild, prefix, staffRole string) *Bot {
	return &Bot{
		name:      name,
		gw:        gw,
		guild:     guild,
		prefix:    prefix,
		staffRole: staffRole,
		waiter:    NewReplyWaiter(),
		commands:  make(map[string]command),
	}
}

func (b *Bot) Name() string { return b.name }

func (b *Bot) on(name string, c command) {
	b.commands[name] = c
}

// HandleMessage routes one incoming message. A message answering a pending question is
// consumed by the waiter and never parsed as a command.
func (b *Bot) HandleMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	content := strings.TrimSpace(m.Content)
	if b.waiter.Deliver(replyKey(m.ChannelID, m.Author.ID), content) {
		return
	}
	if !strings.HasPrefix(content, b.prefix) {
		return
	}
	fields := strings.Fields(strings.TrimPrefix(content, b.prefix))
	if len(fields) == 0 {
		return
	}
	c, ok := b.commands[strings.ToLower(fields[0])]
	if !ok {
		return
	}
	c(ctx, m, fields[1:])
}

func (b *Bot) reply(m *discordgo.MessageCreate, text string) {
	if _, err := b.gw.ChannelMessageSendReply(m.ChannelID, text, m.Reference()); err != nil {
		slog.Warn("reply failed", "bot", b.name, "channel_id", m.ChannelID, "err", err)
	}
}

func (b *Bot) replyf(m *discordgo.MessageCreate, format string, a ...any) {
	b.reply(m, fmt.Sprintf(format, a...))
}

func (b *Bot) send(channelID, text string) {
	if _, err := b.gw.ChannelMessageSend(channelID, text); err != nil {
		slog.Warn("send failed", "bot", b.name, "channel_id", channelID, "err", err)
	}
}

// log posts an embed to a log channel; failures are only logged.
func (b *Bot) log(channel string, e *discordgo.MessageEmbed) {
	if err := b.guild.PostEmbed(channel, e); err != nil {
		slog.Warn("log channel post failed", "bot", b.name, "channel", channel, "err", err)
	}
}

// ask replies with question and waits for the author's next message in the same channel.
func (b *Bot) ask(ctx context.Context, m *discordgo.MessageCreate, question string, timeout time.Duration) (string, error) {
	b.reply(m, question)
	return b.waiter.Await(ctx, replyKey(m.ChannelID, m.Author.ID), timeout)
}

func (b *Bot) isStaff(m *discordgo.MessageCreate) bool {
	return m.GuildID != "" && b.guild.HasRole(m.Member, b.staffRole)
}

// inChannel reports whether m was posted in the guild channel named by nameOrID.
func (b *Bot) inChannel(m *discordgo.MessageCreate, nameOrID string) bool {
	if m.GuildID == "" {
		return false
	}
	id, err := b.guild.ChannelID(nameOrID)
	if err != nil {
		slog.Warn("resolve channel failed", "bot", b.name, "channel", nameOrID, "err", err)
		return false
	}
	return m.ChannelID == id
}
