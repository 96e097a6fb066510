package discord

import (
	"context"
	"testing"
	"time"

	"github.com/blox-verify/internal/config"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockGateway struct{ mock.Mock }

func (g *mockGateway) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	args := g.Called(channelID, content)
	msg, _ := args.Get(0).(*discordgo.Message)
	return msg, args.Error(1)
}

func (g *mockGateway) ChannelMessageSendReply(channelID, content string, _ *discordgo.MessageReference, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	args := g.Called(channelID, content)
	msg, _ := args.Get(0).(*discordgo.Message)
	return msg, args.Error(1)
}

func (g *mockGateway) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	args := g.Called(channelID, embed)
	msg, _ := args.Get(0).(*discordgo.Message)
	return msg, args.Error(1)
}

func (g *mockGateway) ChannelMessages(channelID string, limit int, _, _, _ string, _ ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	args := g.Called(channelID, limit)
	msgs, _ := args.Get(0).([]*discordgo.Message)
	return msgs, args.Error(1)
}

func (g *mockGateway) ChannelMessagesBulkDelete(channelID string, messages []string, _ ...discordgo.RequestOption) error {
	return g.Called(channelID, messages).Error(0)
}

func (g *mockGateway) ChannelMessageDelete(channelID, messageID string, _ ...discordgo.RequestOption) error {
	return g.Called(channelID, messageID).Error(0)
}

func (g *mockGateway) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	args := g.Called(recipientID)
	ch, _ := args.Get(0).(*discordgo.Channel)
	return ch, args.Error(1)
}

func (g *mockGateway) GuildChannels(guildID string, _ ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	args := g.Called(guildID)
	chs, _ := args.Get(0).([]*discordgo.Channel)
	return chs, args.Error(1)
}

func (g *mockGateway) GuildRoles(guildID string, _ ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	args := g.Called(guildID)
	roles, _ := args.Get(0).([]*discordgo.Role)
	return roles, args.Error(1)
}

func (g *mockGateway) GuildMember(guildID, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	args := g.Called(guildID, userID)
	member, _ := args.Get(0).(*discordgo.Member)
	return member, args.Error(1)
}

func (g *mockGateway) GuildMemberRoleAdd(guildID, userID, roleID string, _ ...discordgo.RequestOption) error {
	return g.Called(guildID, userID, roleID).Error(0)
}

func (g *mockGateway) GuildMemberRoleRemove(guildID, userID, roleID string, _ ...discordgo.RequestOption) error {
	return g.Called(guildID, userID, roleID).Error(0)
}

// --- fixture ---

const guildID = "g1"

var testChannels = []*discordgo.Channel{
	{ID: "100", Name: "verify", Type: discordgo.ChannelTypeGuildText},
	{ID: "101", Name: "advertisement-commands", Type: discordgo.ChannelTypeGuildText},
	{ID: "102", Name: "commands", Type: discordgo.ChannelTypeGuildText},
	{ID: "103", Name: "verification-logs", Type: discordgo.ChannelTypeGuildText},
	{ID: "104", Name: "admin-logs", Type: discordgo.ChannelTypeGuildText},
	{ID: "105", Name: "administration-logs", Type: discordgo.ChannelTypeGuildText},
	{ID: "106", Name: "advertisement-requests", Type: discordgo.ChannelTypeGuildText},
	{ID: "107", Name: "approved-ads", Type: discordgo.ChannelTypeGuildText},
	{ID: "108", Name: "advertisement-logs", Type: discordgo.ChannelTypeGuildText},
	{ID: "109", Name: "General", Type: discordgo.ChannelTypeGuildText},
	{ID: "110", Name: "general", Type: discordgo.ChannelTypeGuildVoice},
}

var testRoles = []*discordgo.Role{
	{ID: "r1", Name: "Verified"},
	{ID: "r2", Name: "Blox Entertainment Staff"},
}

func testConfig() config.Discord {
	return config.Discord{
		Prefix:              "!",
		GuildID:             guildID,
		VerifyChannel:       "verify",
		AdCommandsChannel:   "advertisement-commands",
		StaffCommandChannel: "commands",
		VerificationLog:     "verification-logs",
		AdminLog:            "admin-logs",
		AdministrationLog:   "administration-logs",
		AdRequestsChannel:   "advertisement-requests",
		ApprovedAdsChannel:  "approved-ads",
		AdLogChannel:        "advertisement-logs",
		VerifiedRole:        "Verified",
		StaffRole:           "Blox Entertainment Staff",
	}
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	gw    *mockGateway
	guild *Guild
	cfg   config.Discord
}

func newFixture() *fixture {
	gw := &mockGateway{}
	gw.On("GuildChannels", guildID).Return(testChannels, nil).Maybe()
	gw.On("GuildRoles", guildID).Return(testRoles, nil).Maybe()
	cfg := testConfig()
	return &fixture{gw: gw, guild: NewGuild(gw, guildID, cfg.VerifiedRole), cfg: cfg}
}

// acceptMessages lets every send succeed; assertions read the recorded calls.
func (f *fixture) acceptMessages() {
	sent := &discordgo.Message{ID: "sent"}
	f.gw.On("ChannelMessageSend", mock.Anything, mock.Anything).Return(sent, nil).Maybe()
	f.gw.On("ChannelMessageSendReply", mock.Anything, mock.Anything).Return(sent, nil).Maybe()
	f.gw.On("ChannelMessageSendEmbed", mock.Anything, mock.Anything).Return(sent, nil).Maybe()
}

// texts returns the contents sent to channelID through method, in order.
func (f *fixture) texts(method, channelID string) []string {
	var out []string
	for _, c := range f.gw.Calls {
		if c.Method == method && c.Arguments.String(0) == channelID {
			out = append(out, c.Arguments.String(1))
		}
	}
	return out
}

func (f *fixture) replies(channelID string) []string {
	return f.texts("ChannelMessageSendReply", channelID)
}

func (f *fixture) embeds(channelID string) []*discordgo.MessageEmbed {
	var out []*discordgo.MessageEmbed
	for _, c := range f.gw.Calls {
		if c.Method == "ChannelMessageSendEmbed" && c.Arguments.String(0) == channelID {
			out = append(out, c.Arguments.Get(1).(*discordgo.MessageEmbed))
		}
	}
	return out
}

func message(channelID, guild, content string, roles ...string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m1",
		ChannelID: channelID,
		GuildID:   guild,
		Content:   content,
		Author:    &discordgo.User{ID: "u1", Username: "alice"},
		Member:    &discordgo.Member{Roles: roles},
	}}
}

// conversation runs a command in the background and answers its questions in order.
type conversation struct {
	t    *testing.T
	bot  *Bot
	done chan struct{}
}

func start(t *testing.T, b *Bot, m *discordgo.MessageCreate) *conversation {
	t.Helper()
	c := &conversation{t: t, bot: b, done: make(chan struct{})}
	go func() {
		defer close(c.done)
		b.HandleMessage(context.Background(), m)
	}()
	return c
}

// answer waits for the command to ask and replies in channelID.
func (c *conversation) answer(channelID, guild, content string) {
	c.t.Helper()
	require.Eventually(c.t, func() bool { return c.bot.waiter.Pending() == 1 }, 2*time.Second, time.Millisecond)
	c.bot.HandleMessage(context.Background(), message(channelID, guild, content))
}

func (c *conversation) wait() {
	c.t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		c.t.Fatal("command did not finish")
	}
}
