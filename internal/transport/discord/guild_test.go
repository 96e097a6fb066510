package discord

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuild_ChannelID(t *testing.T) {
	f := newFixture()

	id, err := f.guild.ChannelID("GENERAL")
	require.NoError(t, err)
	assert.Equal(t, "109", id, "voice channels never match")

	id, err = f.guild.ChannelID("555")
	require.NoError(t, err)
	assert.Equal(t, "555", id)

	_, err = f.guild.ChannelID("nowhere")
	assert.ErrorIs(t, err, errChannelNotFound)
}

func TestGuild_TextChannels(t *testing.T) {
	f := newFixture()
	chs, err := f.guild.TextChannels()
	require.NoError(t, err)
	assert.Len(t, chs, 10)
	for _, c := range chs {
		assert.Equal(t, discordgo.ChannelTypeGuildText, c.Type)
	}
}

func TestGuild_HasRole(t *testing.T) {
	f := newFixture()
	assert.True(t, f.guild.HasRole(&discordgo.Member{Roles: []string{"r1", "r2"}}, "Blox Entertainment Staff"))
	assert.False(t, f.guild.HasRole(&discordgo.Member{Roles: []string{"r1"}}, "Blox Entertainment Staff"))
	assert.False(t, f.guild.HasRole(&discordgo.Member{Roles: []string{"r1"}}, "Missing"))
	assert.False(t, f.guild.HasRole(nil, "Verified"))
}

func TestGuild_GrantVerified(t *testing.T) {
	f := newFixture()
	f.gw.On("GuildMemberRoleAdd", guildID, "u1", "r1").Return(nil).Once()

	require.NoError(t, f.guild.GrantVerified(context.Background(), "u1"))
	f.gw.AssertExpectations(t)

	missing := NewGuild(f.gw, guildID, "Ghost")
	assert.ErrorIs(t, missing.GrantVerified(context.Background(), "u1"), errRoleNotFound)
}

func TestGuild_RevokeVerified(t *testing.T) {
	ctx := context.Background()

	t.Run("removes role the member holds", func(t *testing.T) {
		f := newFixture()
		f.gw.On("GuildMember", guildID, "u1").Return(&discordgo.Member{Roles: []string{"r1"}}, nil)
		f.gw.On("GuildMemberRoleRemove", guildID, "u1", "r1").Return(nil).Once()

		require.NoError(t, f.guild.RevokeVerified(ctx, "u1"))
		f.gw.AssertExpectations(t)
	})

	t.Run("member without role is left alone", func(t *testing.T) {
		f := newFixture()
		f.gw.On("GuildMember", guildID, "u1").Return(&discordgo.Member{Roles: []string{"r2"}}, nil)

		require.NoError(t, f.guild.RevokeVerified(ctx, "u1"))
		f.gw.AssertNotCalled(t, "GuildMemberRoleRemove", guildID, "u1", "r1")
	})

	t.Run("member who left the guild", func(t *testing.T) {
		f := newFixture()
		gone := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}
		f.gw.On("GuildMember", guildID, "u1").Return(nil, gone)

		assert.NoError(t, f.guild.RevokeVerified(ctx, "u1"))
	})

	t.Run("other lookup failures surface", func(t *testing.T) {
		f := newFixture()
		f.gw.On("GuildMember", guildID, "u1").Return(nil, errors.New("gateway down"))

		assert.Error(t, f.guild.RevokeVerified(ctx, "u1"))
	})
}

func TestGuild_SendDirect(t *testing.T) {
	f := newFixture()
	f.gw.On("UserChannelCreate", "u1").Return(&discordgo.Channel{ID: "dm1"}, nil)
	f.gw.On("ChannelMessageSend", "dm1", "your code is 1234").Return(&discordgo.Message{}, nil).Once()

	require.NoError(t, f.guild.SendDirect(context.Background(), "u1", "your code is 1234"))
	f.gw.AssertExpectations(t)

	closed := newFixture()
	closed.gw.On("UserChannelCreate", "u2").Return(nil, errors.New("cannot send messages to this user"))
	assert.Error(t, closed.guild.SendDirect(context.Background(), "u2", "hi"))
}
