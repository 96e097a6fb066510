package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/blox-verify/internal/application/verification"
	"github.com/blox-verify/internal/config"
	"github.com/blox-verify/internal/domain"
	"github.com/bwmarrin/discordgo"
)

// ProfileDirectory supplies the profile link and avatar shown in log embeds.
type ProfileDirectory interface {
	ResolveHandle(ctx context.Context, handle string) (*domain.Identity, error)
	Headshot(ctx context.Context, id int64) (string, error)
	ProfileURL(id int64) string
}

type VerifyDeps struct {
	Verification verification.Service
	Profiles     ProfileDirectory
	Guild        *Guild
	Config       config.Discord
	Now          func() time.Time
}

type verifyBot struct {
	*Bot
	svc      verification.Service
	profiles ProfileDirectory
	cfg      config.Discord
	now      func() time.Time
}

// NewVerifyBot serves !verify, !check, !info, !revoke and !purge.
func NewVerifyBot(gw Gateway, d VerifyDeps) *Bot {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	v := &verifyBot{
		Bot:      newBot("verify", gw, d.Guild, d.Config.Prefix, d.Config.StaffRole),
		svc:      d.Verification,
		profiles: d.Profiles,
		cfg:      d.Config,
		now:      now,
	}
	v.on("verify", v.verify)
	v.on("check", v.check)
	v.on("info", v.info)
	v.on("revoke", v.revoke)
	v.on("purge", v.purge)
	return v.Bot
}

func (v *verifyBot) verify(ctx context.Context, m *discordgo.MessageCreate, args []string) {
	if !v.inChannel(m, v.cfg.VerifyChannel) {
		v.reply(m, "❌ Please use !verify only in the verify channel.")
		return
	}
	if len(args) == 0 {
		v.reply(m, "❌ Please provide your Roblox username. Example: `!verify Builderman`")
		return
	}

	res, err := v.svc.Begin(ctx, verification.BeginRequest{
		OwnerID:     m.Author.ID,
		DisplayName: m.Author.Username,
		Handle:      args[0],
	})
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		v.replyf(m, "❌ `%s` is not a valid Roblox username.", args[0])
		return
	case errors.Is(err, domain.ErrRateLimited):
		v.reply(m, "⏳ You are requesting codes too quickly. Please wait a few minutes and try again.")
		return
	case err != nil:
		slog.Error("begin verification failed", "owner_id", m.Author.ID, "err", err)
		v.reply(m, "❌ Something went wrong. Please try again later.")
		return
	}

	if !res.Delivered {
		v.reply(m, "❌ I couldn't DM you. Please enable DMs from server members and try again.")
		return
	}
	v.reply(m, "📬 Check your DMs for verification instructions!")
}

func (v *verifyBot) check(ctx context.Context, m *discordgo.MessageCreate, _ []string) {
	if m.GuildID != "" {
		v.reply(m, "❌ Please use !check only in DMs.")
		return
	}

	conf, err := v.svc.Confirm(ctx, m.Author.ID)
	if err != nil {
		v.send(m.ChannelID, checkFailure(err))
		return
	}

	if err := v.guild.GrantVerified(ctx, m.Author.ID); err != nil {
		slog.Warn("grant verified role failed", "owner_id", m.Author.ID, "err", err)
		if errors.Is(err, errRoleNotFound) {
			v.send(m.ChannelID, fmt.Sprintf("❌ The role '%s' does not exist.", v.cfg.VerifiedRole))
		} else {
			v.send(m.ChannelID, "❌ I don't have permission to give you that role. Please contact an admin.")
		}
		return
	}
	v.send(m.ChannelID, fmt.Sprintf("✅ You are now verified as **%s** and have been given the '%s' role!",
		conf.ExternalHandle, v.cfg.VerifiedRole))

	e := &domain.Embed{Title: "User Verified", Color: colorGreen, Timestamp: v.now()}
	e.AddField("Discord User", userLabel(m.Author), false).
		AddField("Roblox Username", conf.ExternalHandle, true).
		AddField("Roblox User ID", strconv.FormatInt(conf.ExternalID, 10), true).
		AddField("🕒 Verified at", formatVerifiedAt(conf.VerifiedAt), false)
	if conf.DisplacedOwnerID != "" {
		note := " (role removed)"
		if !conf.DisplacedRoleRemoved {
			note = " (⚠️ role could not be removed)"
		}
		e.AddField("Previously bound to", "<@"+conf.DisplacedOwnerID+">"+note, false)
	}
	v.decorate(ctx, e, conf.ExternalID)
	v.log(v.cfg.VerificationLog, toMessageEmbed(e))
}

func checkFailure(err error) string {
	switch {
	case errors.Is(err, domain.ErrChallengeExpired):
		return "⌛ Your verification code has expired. Run `!verify <username>` in the verify channel again."
	case errors.Is(err, domain.ErrIdentityNotFound):
		return "❌ That Roblox user could not be found. Run `!verify <username>` again with the right name."
	case errors.Is(err, domain.ErrProfileUnavailable):
		return "⚠️ Roblox is not responding right now. Please try `!check` again in a moment."
	case errors.Is(err, domain.ErrStorageUnavailable):
		return "❌ Your verification could not be saved. Please try `!check` again later."
	default:
		return "❌ Verification failed or you have not completed verification yet. Please make sure you've added the code to your Roblox bio."
	}
}

// decorate adds the profile link and headshot for a known platform id.
func (v *verifyBot) decorate(ctx context.Context, e *domain.Embed, externalID int64) {
	if externalID == 0 || v.profiles == nil {
		return
	}
	profile := v.profiles.ProfileURL(externalID)
	e.AddField("Roblox Profile", "[View Profile]("+profile+")", false)
	e.URL = profile
	if avatar, err := v.profiles.Headshot(ctx, externalID); err == nil && avatar != "" {
		e.Thumbnail = avatar
	}
}

func (v *verifyBot) info(ctx context.Context, m *discordgo.MessageCreate, args []string) {
	if !v.isStaff(m) {
		v.reply(m, "❌ You do not have permission to use this command.")
		return
	}
	if len(args) == 0 {
		v.reply(m, "❌ Please provide a Roblox username or Discord mention.")
		return
	}
	target := args[0]

	rec, err := v.svc.Lookup(ctx, target)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			v.replyf(m, "❌ No verification record found for %s.", target)
			return
		}
		slog.Error("info lookup failed", "target", target, "err", err)
		v.reply(m, "❌ Something went wrong. Please try again later.")
		return
	}

	var externalID int64
	if v.profiles != nil {
		if ident, err := v.profiles.ResolveHandle(ctx, rec.ExternalHandle); err == nil {
			externalID = ident.ID
		}
	}
	idText := "Unknown"
	if externalID != 0 {
		idText = strconv.FormatInt(externalID, 10)
	}

	e := &domain.Embed{Title: "Blox Entertainment Verification", Color: colorBlue, Timestamp: v.now()}
	e.AddField("Discord User", "<@"+rec.OwnerID+">", false).
		AddField("Discord ID", rec.OwnerID, false).
		AddField("Roblox Username", rec.ExternalHandle, true).
		AddField("Roblox User ID", idText, true).
		AddField("BEcredits", strconv.Itoa(rec.Credits), true)
	v.decorate(ctx, e, externalID)
	e.AddField("🕒 Verified at", formatVerifiedAt(rec.VerifiedAt), false)
	if _, err := v.gw.ChannelMessageSendEmbed(m.ChannelID, toMessageEmbed(e)); err != nil {
		slog.Warn("info reply failed", "channel_id", m.ChannelID, "err", err)
	}

	logEntry := &domain.Embed{Title: "Info Command Executed", Color: colorBlue, Timestamp: v.now()}
	logEntry.AddField("Admin", userLabel(m.Author), false).
		AddField("Target Queried", target, false).
		AddField("Result - Roblox Username", rec.ExternalHandle, true).
		AddField("Result - Roblox User ID", idText, true)
	v.decorate(ctx, logEntry, externalID)
	v.log(v.cfg.AdminLog, toMessageEmbed(logEntry))
}

func (v *verifyBot) revoke(ctx context.Context, m *discordgo.MessageCreate, args []string) {
	if len(args) == 0 {
		v.reply(m, "❌ Please provide a Roblox username or Discord mention. Example: `!revoke Builderman` or `!revoke @User`")
		return
	}
	if !v.isStaff(m) {
		v.reply(m, "❌ You do not have permission to use this command.")
		return
	}
	target := args[0]

	rev, err := v.svc.Revoke(ctx, target)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			v.replyf(m, "❌ Could not find any verification record for `%s`.", target)
			return
		}
		slog.Error("revoke failed", "target", target, "err", err)
		v.reply(m, "❌ Something went wrong. Please try again later.")
		return
	}
	v.replyf(m, "✅ Verification revoked for `%s` and role removed if applicable.", target)

	e := &domain.Embed{Title: "Verification Revoked", Color: colorRed, Timestamp: v.now()}
	e.AddField("Admin", userLabel(m.Author), false).
		AddField("Discord User", "<@"+rev.OwnerID+">", true).
		AddField("Roblox Username", rev.ExternalHandle, true).
		AddField("Role Removed", strconv.FormatBool(rev.RoleRemoved), true)
	v.log(v.cfg.AdminLog, toMessageEmbed(e))
}

func (v *verifyBot) purge(_ context.Context, m *discordgo.MessageCreate, args []string) {
	if !v.isStaff(m) {
		v.reply(m, "❌ You do not have permission to use this command.")
		return
	}
	n := 0
	if len(args) > 0 {
		n, _ = strconv.Atoi(args[0])
	}
	if n < 1 {
		v.reply(m, "❌ Please specify a number greater than 0.")
		return
	}

	// The command message itself is the newest one and goes too.
	deleted, err := purgeChannel(v.gw, m.ChannelID, n+1, v.now())
	if err != nil {
		slog.Warn("purge command failed", "channel_id", m.ChannelID, "err", err)
	}
	if deleted > 0 {
		deleted--
	}
	msg, err := v.gw.ChannelMessageSend(m.ChannelID, fmt.Sprintf("✅ Purged %d messages.", deleted))
	if err != nil {
		return
	}
	time.AfterFunc(5*time.Second, func() {
		_ = v.gw.ChannelMessageDelete(m.ChannelID, msg.ID)
	})
}
