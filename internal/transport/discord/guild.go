package discord

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

var (
	errChannelNotFound = errors.New("channel not found")
	errRoleNotFound    = errors.New("role not found")
)

// Guild resolves channel and role names in one server and implements the DM and role
// side effects of verification.
type Guild struct {
	gw           Gateway
	id           string
	verifiedRole string
}

func NewGuild(gw Gateway, guildID, verifiedRole string) *Guild {
	return &Guild{gw: gw, id: guildID, verifiedRole: verifiedRole}
}

func (g *Guild) ID() string { return g.id }

func isSnowflake(s string) bool {
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

// ChannelID accepts a channel id or a channel name.
func (g *Guild) ChannelID(nameOrID string) (string, error) {
	if isSnowflake(nameOrID) {
		return nameOrID, nil
	}
	channels, err := g.gw.GuildChannels(g.id)
	if err != nil {
		return "", fmt.Errorf("list channels: %w", err)
	}
	for _, c := range channels {
		if c.Type == discordgo.ChannelTypeGuildText && strings.EqualFold(c.Name, nameOrID) {
			return c.ID, nil
		}
	}
	return "", fmt.Errorf("#%s: %w", nameOrID, errChannelNotFound)
}

// TextChannels lists the guild's text channels in display order.
func (g *Guild) TextChannels() ([]*discordgo.Channel, error) {
	channels, err := g.gw.GuildChannels(g.id)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	var out []*discordgo.Channel
	for _, c := range channels {
		if c.Type == discordgo.ChannelTypeGuildText {
			out = append(out, c)
		}
	}
	return out, nil
}

func (g *Guild) RoleID(nameOrID string) (string, error) {
	roles, err := g.gw.GuildRoles(g.id)
	if err != nil {
		return "", fmt.Errorf("list roles: %w", err)
	}
	for _, r := range roles {
		if r.ID == nameOrID || r.Name == nameOrID {
			return r.ID, nil
		}
	}
	return "", fmt.Errorf("%q: %w", nameOrID, errRoleNotFound)
}

// HasRole reports whether member carries the role named roleName.
func (g *Guild) HasRole(member *discordgo.Member, roleName string) bool {
	if member == nil {
		return false
	}
	roleID, err := g.RoleID(roleName)
	if err != nil {
		return false
	}
	for _, id := range member.Roles {
		if id == roleID {
			return true
		}
	}
	return false
}

// Post sends a plain message to a channel given by name or id.
func (g *Guild) Post(channel, content string) error {
	id, err := g.ChannelID(channel)
	if err != nil {
		return err
	}
	_, err = g.gw.ChannelMessageSend(id, content)
	return err
}

func (g *Guild) PostEmbed(channel string, e *discordgo.MessageEmbed) error {
	id, err := g.ChannelID(channel)
	if err != nil {
		return err
	}
	_, err = g.gw.ChannelMessageSendEmbed(id, e)
	return err
}

// SendDirect delivers message to ownerID's DM channel.
func (g *Guild) SendDirect(_ context.Context, ownerID, message string) error {
	dm, err := g.gw.UserChannelCreate(ownerID)
	if err != nil {
		return fmt.Errorf("open DM with %s: %w", ownerID, err)
	}
	if _, err := g.gw.ChannelMessageSend(dm.ID, message); err != nil {
		return fmt.Errorf("send DM to %s: %w", ownerID, err)
	}
	return nil
}

// GrantVerified adds the verified role to ownerID.
func (g *Guild) GrantVerified(_ context.Context, ownerID string) error {
	roleID, err := g.RoleID(g.verifiedRole)
	if err != nil {
		return err
	}
	return g.gw.GuildMemberRoleAdd(g.id, ownerID, roleID)
}

// RevokeVerified removes the verified role. A member who left the guild or never had the
// role is not an error.
func (g *Guild) RevokeVerified(_ context.Context, ownerID string) error {
	roleID, err := g.RoleID(g.verifiedRole)
	if err != nil {
		return err
	}
	member, err := g.gw.GuildMember(g.id, ownerID)
	if err != nil {
		var rerr *discordgo.RESTError
		if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode == 404 {
			return nil
		}
		return fmt.Errorf("fetch member %s: %w", ownerID, err)
	}
	for _, id := range member.Roles {
		if id == roleID {
			return g.gw.GuildMemberRoleRemove(g.id, ownerID, roleID)
		}
	}
	return nil
}
