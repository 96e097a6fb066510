package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/blox-verify/internal/application/announcement"
	"github.com/blox-verify/internal/config"
	"github.com/bwmarrin/discordgo"
)

const infoReplyTimeout = 120 * time.Second

type InfoDeps struct {
	Guild  *Guild
	Config config.Discord
	Now    func() time.Time
}

type infoBot struct {
	*Bot
	cfg     config.Discord
	now     func() time.Time
	timeout time.Duration
}

// NewInfoBot serves the staff !message announcement composer.
func NewInfoBot(gw Gateway, d InfoDeps) *Bot {
	return newInfoBot(gw, d).Bot
}

func newInfoBot(gw Gateway, d InfoDeps) *infoBot {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	b := &infoBot{
		Bot:     newBot("info", gw, d.Guild, d.Config.Prefix, d.Config.StaffRole),
		cfg:     d.Config,
		now:     now,
		timeout: infoReplyTimeout,
	}
	b.on("message", b.message)
	return b
}

// askText asks one question; false means the staff member did not answer in time.
func (b *infoBot) askText(ctx context.Context, m *discordgo.MessageCreate, question string) (string, bool) {
	answer, err := b.ask(ctx, m, question, b.timeout)
	if err != nil {
		if errors.Is(err, ErrReplyTimeout) {
			b.reply(m, "⌛ You took too long to reply. Operation cancelled.")
		}
		return "", false
	}
	return answer, true
}

func (b *infoBot) message(ctx context.Context, m *discordgo.MessageCreate, _ []string) {
	if !b.isStaff(m) {
		b.reply(m, "❌ You do not have permission to use this command.")
		return
	}

	var draft announcement.Draft
	title, ok := b.askText(ctx, m, "Please reply with the embed **title** (or type 'none' to skip):")
	if !ok {
		return
	}
	draft.Title = announcement.ParseOptional(title)

	desc, ok := b.askText(ctx, m, "Please reply with the embed **description** (or type 'none' to skip):")
	if !ok {
		return
	}
	draft.Description = announcement.ParseOptional(desc)

	footer, ok := b.askText(ctx, m, "Please reply with the embed **footer** (or type 'none' to skip):")
	if !ok {
		return
	}
	draft.Footer = announcement.ParseOptional(footer)

	colors := announcement.Colors()
	answer, ok := b.askText(ctx, m, "Select embed **color** by replying with its number or name:\n"+numbered(colors))
	if !ok {
		return
	}
	color, ok := pickColor(colors, answer)
	if !ok {
		b.reply(m, "❌ Unknown color. Operation cancelled.")
		return
	}
	draft.Color = color

	channels, err := b.guild.TextChannels()
	if err != nil || len(channels) == 0 {
		b.reply(m, "❌ No channels available where I can send messages.")
		return
	}
	names := make([]string, len(channels))
	for i, c := range channels {
		names[i] = "#" + c.Name
	}
	answer, ok = b.askText(ctx, m, "Select the **target channel** by replying with its number or name:\n"+numbered(names))
	if !ok {
		return
	}
	target := pickChannel(channels, answer)
	if target == nil {
		b.reply(m, "❌ Invalid channel selected.")
		return
	}

	embed, err := announcement.Compose(draft)
	if err != nil {
		b.reply(m, "❌ An embed needs a title or a description. Operation cancelled.")
		return
	}
	if _, err := b.gw.ChannelMessageSendEmbed(target.ID, toMessageEmbed(embed)); err != nil {
		b.replyf(m, "❌ Failed to send embed: %v", err)
		return
	}
	b.replyf(m, "✅ Embed sent to <#%s>!", target.ID)

	audit := announcement.AuditEmbed(announcement.AuditEntry{
		Draft:       draft,
		SenderID:    m.Author.ID,
		SenderName:  m.Author.Username,
		ChannelName: target.Name,
		SentAt:      b.now(),
	})
	if err := b.guild.PostEmbed(b.cfg.AdministrationLog, toMessageEmbed(audit)); err != nil {
		slog.Warn("announcement audit log failed", "err", err)
	}
}

func numbered(items []string) string {
	var sb strings.Builder
	for i, it := range items {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, it)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// pickIndex parses a 1-based menu choice.
func pickIndex(answer string, n int) (int, bool) {
	i, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil || i < 1 || i > n {
		return 0, false
	}
	return i - 1, true
}

func pickColor(colors []string, answer string) (string, bool) {
	if i, ok := pickIndex(answer, len(colors)); ok {
		return colors[i], true
	}
	name, _, ok := announcement.LookupColor(answer)
	return name, ok
}

func pickChannel(channels []*discordgo.Channel, answer string) *discordgo.Channel {
	if i, ok := pickIndex(answer, len(channels)); ok {
		return channels[i]
	}
	name := strings.TrimPrefix(strings.TrimSpace(answer), "#")
	for _, c := range channels {
		if strings.EqualFold(c.Name, name) || "<#"+c.ID+">" == answer {
			return c
		}
	}
	return nil
}
