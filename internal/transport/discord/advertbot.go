package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/blox-verify/internal/application/announcement"
	"github.com/blox-verify/internal/application/moderation"
	"github.com/blox-verify/internal/config"
	"github.com/blox-verify/internal/domain"
	"github.com/blox-verify/internal/infrastructure/roblox"
	"github.com/bwmarrin/discordgo"
)

// Reply windows of the advertisement flows.
const (
	adTextTimeout    = 300 * time.Second
	adSelectTimeout  = 90 * time.Second
	adDecideTimeout  = 60 * time.Second
	adCommentTimeout = 120 * time.Second
)

// AssetDescriber looks up the game, item or group an advertisement links to.
type AssetDescriber interface {
	Describe(ctx context.Context, text string) (*roblox.Asset, error)
}

type AdvertiseDeps struct {
	Moderation moderation.Service
	Assets     AssetDescriber
	Guild      *Guild
	Config     config.Discord
	Now        func() time.Time
}

type advertBot struct {
	*Bot
	mod      moderation.Service
	assets   AssetDescriber
	cfg      config.Discord
	now      func() time.Time
	timeouts [4]time.Duration // text, select, decide, comment
}

// NewAdvertiseBot serves !credits, !advertise and the staff !adreq review.
func NewAdvertiseBot(gw Gateway, d AdvertiseDeps) *Bot {
	return newAdvertBot(gw, d).Bot
}

func newAdvertBot(gw Gateway, d AdvertiseDeps) *advertBot {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	b := &advertBot{
		Bot:      newBot("advertise", gw, d.Guild, d.Config.Prefix, d.Config.StaffRole),
		mod:      d.Moderation,
		assets:   d.Assets,
		cfg:      d.Config,
		now:      now,
		timeouts: [4]time.Duration{adTextTimeout, adSelectTimeout, adDecideTimeout, adCommentTimeout},
	}
	b.on("credits", b.credits)
	b.on("advertise", b.advertise)
	b.on("adreq", b.adreq)
	return b
}

func (b *advertBot) credits(ctx context.Context, m *discordgo.MessageCreate, _ []string) {
	if !b.inChannel(m, b.cfg.AdCommandsChannel) {
		b.reply(m, "❌ You can only use this command in #advertisement-commands.")
		return
	}
	rec, err := b.mod.Eligible(ctx, m.Author.ID)
	switch {
	case errors.Is(err, domain.ErrNotVerified):
		b.reply(m, "ℹ️ You don't have any BEcredits yet. Verify your Roblox account to get started!")
	case rec != nil:
		b.replyf(m, "💳 You currently have **%d BEcredits** remaining.", rec.Credits)
	default:
		slog.Error("credits lookup failed", "owner_id", m.Author.ID, "err", err)
		b.reply(m, "❌ Something went wrong. Please try again later.")
	}
}

func (b *advertBot) advertise(ctx context.Context, m *discordgo.MessageCreate, _ []string) {
	if !b.inChannel(m, b.cfg.AdCommandsChannel) {
		b.reply(m, "❌ You can only use this command in #advertisement-commands.")
		return
	}
	rec, err := b.mod.Eligible(ctx, m.Author.ID)
	if err != nil {
		b.reply(m, submitFailure(err))
		return
	}

	dm, err := b.gw.UserChannelCreate(m.Author.ID)
	if err == nil {
		_, err = b.gw.ChannelMessageSend(dm.ID, fmt.Sprintf(
			"Hello! Your verified Roblox username: %s\n"+
				"📢 Please type your advertisement message here. You have 5 minutes to respond.",
			rec.ExternalHandle))
	}
	if err != nil {
		b.reply(m, "❌ I couldn't DM you! Please enable DMs from server members.")
		return
	}

	text, err := b.waiter.Await(ctx, replyKey(dm.ID, m.Author.ID), b.timeouts[0])
	if err != nil {
		b.reply(m, "⏱️ Advertisement cancelled (no message provided).")
		return
	}

	res, err := b.mod.Submit(ctx, moderation.SubmitRequest{
		GuildID:  m.GuildID,
		OwnerID:  m.Author.ID,
		Username: m.Author.Username,
		Text:     text,
	})
	if err != nil {
		b.reply(m, submitFailure(err))
		return
	}
	sub := res.Submission

	e := &domain.Embed{
		Title: "New Advertisement Request (Pending)",
		Description: fmt.Sprintf(
			"**User:** %s\n**Roblox Username:** %s\n**Advertisement:** %s\n**Request ID:** `%s`\n💳 Remaining BEcredits: %d",
			userLabel(m.Author), sub.ExternalHandle, sub.Text, sub.ID, res.RemainingCredits),
		Color:     colorYellow,
		Timestamp: b.now(),
	}
	b.enrich(ctx, e, sub.Text)
	b.log(b.cfg.AdRequestsChannel, toMessageEmbed(e))

	b.replyf(m, "✅ Your advertisement request has been submitted! You have **%d BEcredits** remaining.", res.RemainingCredits)
}

func submitFailure(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotVerified):
		return "❌ You must verify your Roblox account before submitting an advertisement."
	case errors.Is(err, domain.ErrInsufficientCredits):
		return "❌ You have no BEcredits left. Purchase more to advertise."
	case errors.Is(err, domain.ErrBadRequest):
		return "❌ Your advertisement was empty. Nothing was submitted."
	default:
		slog.Error("advertisement submission failed", "err", err)
		return "❌ Something went wrong. Please try again later."
	}
}

// enrich attaches metadata of a linked game, catalog item or group.
func (b *advertBot) enrich(ctx context.Context, e *domain.Embed, text string) {
	if b.assets == nil {
		return
	}
	a, err := b.assets.Describe(ctx, text)
	if err != nil {
		if !errors.Is(err, roblox.ErrNotFound) {
			slog.Warn("advertisement link lookup failed", "err", err)
		}
		return
	}
	e.AddField("Linked "+titleCase(a.Kind), "["+a.Title+"]("+a.Link+")", true)
	if a.Creator != "" {
		e.AddField("Creator", a.Creator, true)
	}
	if a.Description != "" {
		e.AddField("About", announcement.Truncate(a.Description, announcement.FieldLimit), false)
	}
	if a.ThumbnailURL != "" {
		e.Thumbnail = a.ThumbnailURL
	}
}

func (b *advertBot) adreq(ctx context.Context, m *discordgo.MessageCreate, _ []string) {
	if !b.inChannel(m, b.cfg.StaffCommandChannel) {
		b.reply(m, "❌ Use this command in #commands.")
		return
	}
	if !b.isStaff(m) {
		b.reply(m, "❌ You must be **Blox Entertainment Staff** to use this command.")
		return
	}

	pending, err := b.mod.ListPending(ctx, m.GuildID)
	if err != nil {
		slog.Error("list pending advertisements failed", "guild_id", m.GuildID, "err", err)
		b.reply(m, "❌ Something went wrong. Please try again later.")
		return
	}
	if len(pending) == 0 {
		b.reply(m, "📭 No pending advertisement requests.")
		return
	}

	labels := make([]string, len(pending))
	for i, p := range pending {
		labels[i] = fmt.Sprintf("%s (submitted at %s)", p.Username, formatVerifiedAt(p.SubmittedAt))
	}
	answer, err := b.ask(ctx, m, "🗂️ Reply with the number of a **pending advertisement request**:\n"+numbered(labels), b.timeouts[1])
	if err != nil {
		b.reply(m, "⏱️ Timed out. Try `!adreq` again.")
		return
	}
	idx, ok := pickIndex(answer, len(pending))
	if !ok {
		b.reply(m, "❌ Invalid selection. Try `!adreq` again.")
		return
	}

	chosen, err := b.mod.Get(ctx, pending[idx].ID)
	if err != nil || chosen.Status != domain.SubmissionPending {
		b.send(m.ChannelID, "⚠️ That advertisement request is no longer pending.")
		return
	}

	b.send(m.ChannelID, fmt.Sprintf("📌 Selected: **%s**. Advertisement preview:\n%s\nReply with `approve` or `deny`:",
		chosen.Username, chosen.Text))
	answer, err = b.waiter.Await(ctx, replyKey(m.ChannelID, m.Author.ID), b.timeouts[2])
	if err != nil {
		b.send(m.ChannelID, "⏱️ Timed out. Decision not recorded.")
		return
	}
	decision, ok := parseDecision(answer)
	if !ok {
		b.send(m.ChannelID, "❌ Unknown decision. Decision not recorded.")
		return
	}

	b.send(m.ChannelID, "💬 Enter any **comments** for this decision (or type `none`). You have 2 minutes.")
	comments, err := b.waiter.Await(ctx, replyKey(m.ChannelID, m.Author.ID), b.timeouts[3])
	if err != nil {
		comments = ""
	}

	final, err := b.mod.Decide(ctx, chosen.ID, moderation.DecideRequest{
		Decision:  decision,
		StaffName: m.Author.Username,
		Comments:  announcement.ParseOptional(comments),
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotPending) || errors.Is(err, domain.ErrNotFound) {
			b.send(m.ChannelID, "⚠️ That advertisement request is no longer pending.")
			return
		}
		slog.Error("record advertisement decision failed", "submission_id", chosen.ID, "err", err)
		b.send(m.ChannelID, "❌ The decision could not be saved. Please try again later.")
		return
	}
	b.publishDecision(ctx, m, final)
}

func parseDecision(answer string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "approve", "approved", "yes", "y", "✅", "1":
		return "approve", true
	case "deny", "denied", "no", "n", "❌", "2":
		return "deny", true
	}
	return "", false
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (b *advertBot) publishDecision(ctx context.Context, m *discordgo.MessageCreate, s *domain.Submission) {
	approved := s.Status == domain.SubmissionApproved
	if approved {
		msg := fmt.Sprintf("📣 Advertisement by **%s** (%s):\n%s", s.Username, s.ExternalHandle, s.Text)
		if err := b.guild.Post(b.cfg.ApprovedAdsChannel, msg); err != nil {
			b.send(m.ChannelID, fmt.Sprintf("⚠️ Failed to post advertisement: %v", err))
		}
	}

	comments := s.Comments
	if comments == "" {
		comments = "(none)"
	}
	color := colorRed
	if approved {
		color = colorGreen
	}
	e := &domain.Embed{
		Title: "Advertisement Request " + titleCase(s.Status),
		Description: fmt.Sprintf(
			"**User:** %s (%s)\n**Roblox Username:** %s\n**Advertisement:** %s\n**Decision:** %s\n**Comments:** %s\n**Processed by:** %s\n**Request ID:** `%s`",
			s.Username, s.OwnerID, s.ExternalHandle, s.Text, titleCase(s.Status), comments, s.ProcessedBy, s.ID),
		Color:     color,
		Timestamp: b.now(),
	}
	if err := b.guild.PostEmbed(b.cfg.AdLogChannel, toMessageEmbed(e)); err != nil {
		slog.Warn("advertisement log failed", "err", err)
		b.send(m.ChannelID, "⚠️ Channel **#"+b.cfg.AdLogChannel+"** not found.")
	}

	outcome := "❌ It was denied."
	if approved {
		outcome = "✅ It has been posted!"
	}
	dm := fmt.Sprintf("📣 Your advertisement request has been **%s**.\n• Advertisement: %s\n• Comments: %s\n%s",
		strings.ToUpper(s.Status), s.Text, comments, outcome)
	if err := b.guild.SendDirect(ctx, s.OwnerID, dm); err != nil {
		b.send(m.ChannelID, "ℹ️ Could not DM the submitter (DMs closed).")
	}

	b.send(m.ChannelID, fmt.Sprintf("✅ Decision **%s** recorded for **%s**.", titleCase(s.Status), s.Username))
}
