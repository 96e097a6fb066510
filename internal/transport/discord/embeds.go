package discord

import (
	"time"

	"github.com/blox-verify/internal/domain"
	"github.com/bwmarrin/discordgo"
)

// Discord's built-in palette.
const (
	colorGreen  = 0x2ecc71
	colorBlue   = 0x3498db
	colorRed    = 0xe74c3c
	colorOrange = 0xe67e22
	colorYellow = 0xfee75c
)

func toMessageEmbed(e *domain.Embed) *discordgo.MessageEmbed {
	me := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		URL:         e.URL,
		Color:       e.Color,
	}
	if !e.Timestamp.IsZero() {
		me.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	if e.Footer != "" {
		me.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	if e.Thumbnail != "" {
		me.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.Thumbnail}
	}
	for _, f := range e.Fields {
		me.Fields = append(me.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return me
}

// formatVerifiedAt renders timestamps the way the log channels always have.
func formatVerifiedAt(t time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}
	return t.UTC().Format("2006-01-02 15:04:05") + " UTC"
}

func userLabel(u *discordgo.User) string {
	if u == nil {
		return "Unknown"
	}
	return u.Username + " (" + u.ID + ")"
}
