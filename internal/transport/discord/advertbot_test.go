package discord

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/blox-verify/internal/application/moderation"
	"github.com/blox-verify/internal/domain"
	"github.com/blox-verify/internal/infrastructure/roblox"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockModerationSvc struct{ mock.Mock }

func (m *mockModerationSvc) Eligible(ctx context.Context, ownerID string) (*domain.VerificationRecord, error) {
	args := m.Called(ctx, ownerID)
	rec, _ := args.Get(0).(*domain.VerificationRecord)
	return rec, args.Error(1)
}

func (m *mockModerationSvc) Submit(ctx context.Context, req moderation.SubmitRequest) (*moderation.SubmitResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*moderation.SubmitResult)
	return res, args.Error(1)
}

func (m *mockModerationSvc) ListPending(ctx context.Context, guildID string) ([]domain.Submission, error) {
	args := m.Called(ctx, guildID)
	subs, _ := args.Get(0).([]domain.Submission)
	return subs, args.Error(1)
}

func (m *mockModerationSvc) Get(ctx context.Context, id string) (*domain.Submission, error) {
	args := m.Called(ctx, id)
	sub, _ := args.Get(0).(*domain.Submission)
	return sub, args.Error(1)
}

func (m *mockModerationSvc) Decide(ctx context.Context, id string, req moderation.DecideRequest) (*domain.Submission, error) {
	args := m.Called(ctx, id, req)
	sub, _ := args.Get(0).(*domain.Submission)
	return sub, args.Error(1)
}

type mockAssets struct{ mock.Mock }

func (m *mockAssets) Describe(ctx context.Context, text string) (*roblox.Asset, error) {
	args := m.Called(ctx, text)
	a, _ := args.Get(0).(*roblox.Asset)
	return a, args.Error(1)
}

func newAdvertFixture() (*fixture, *mockModerationSvc, *advertBot) {
	f := newFixture()
	f.acceptMessages()
	mod := &mockModerationSvc{}
	b := newAdvertBot(f.gw, AdvertiseDeps{
		Moderation: mod,
		Guild:      f.guild,
		Config:     f.cfg,
		Now:        func() time.Time { return fixedNow },
	})
	return f, mod, b
}

func TestAdvertBot_Credits(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		channel string
		rec     *domain.VerificationRecord
		err     error
		want    string
	}{
		{"wrong channel", "109", nil, nil, "❌ You can only use this command in #advertisement-commands."},
		{"not verified", "101", nil, domain.ErrNotVerified, "ℹ️ You don't have any BEcredits yet. Verify your Roblox account to get started!"},
		{"balance", "101", &domain.VerificationRecord{Credits: 3}, nil, "💳 You currently have **3 BEcredits** remaining."},
		{"empty balance", "101", &domain.VerificationRecord{Credits: 0}, domain.ErrInsufficientCredits, "💳 You currently have **0 BEcredits** remaining."},
		{"storage down", "101", nil, domain.ErrStorageUnavailable, "❌ Something went wrong. Please try again later."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, mod, b := newAdvertFixture()
			mod.On("Eligible", mock.Anything, "u1").Return(tt.rec, tt.err).Maybe()

			b.HandleMessage(ctx, message(tt.channel, guildID, "!credits"))

			assert.Equal(t, []string{tt.want}, f.replies(tt.channel))
		})
	}
}

func TestAdvertBot_Advertise(t *testing.T) {
	const text = "Play my obby https://www.roblox.com/games/920587237/Adopt-Me"
	f, mod, b := newAdvertFixture()
	assets := &mockAssets{}
	b.assets = assets

	mod.On("Eligible", mock.Anything, "u1").Return(&domain.VerificationRecord{ExternalHandle: "Builder", Credits: 5}, nil)
	f.gw.On("UserChannelCreate", "u1").Return(&discordgo.Channel{ID: "dm1"}, nil)
	mod.On("Submit", mock.Anything, moderation.SubmitRequest{GuildID: guildID, OwnerID: "u1", Username: "alice", Text: text}).
		Return(&moderation.SubmitResult{
			Submission:       &domain.Submission{ID: "s1", ExternalHandle: "Builder", Text: text},
			RemainingCredits: 4,
		}, nil).Once()
	assets.On("Describe", mock.Anything, text).Return(&roblox.Asset{
		Kind: roblox.KindGame, Title: "Adopt Me!", Creator: "Uplift Games",
		Link: "https://www.roblox.com/games/920587237", ThumbnailURL: "https://tr.rbxcdn.com/icon.png",
	}, nil)

	c := start(t, b.Bot, message("101", guildID, "!advertise"))
	c.answer("dm1", "", text)
	c.wait()

	prompts := f.texts("ChannelMessageSend", "dm1")
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Your verified Roblox username: Builder")

	assert.Equal(t, []string{"✅ Your advertisement request has been submitted! You have **4 BEcredits** remaining."}, f.replies("101"))

	requests := f.embeds("106")
	require.Len(t, requests, 1)
	assert.Equal(t, "New Advertisement Request (Pending)", requests[0].Title)
	assert.Equal(t, colorYellow, requests[0].Color)
	assert.Contains(t, requests[0].Description, "`s1`")
	require.NotNil(t, requests[0].Thumbnail)
	assert.Equal(t, "Linked Game", requests[0].Fields[0].Name)
	mod.AssertExpectations(t)
}

func TestAdvertBot_Advertise_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("not verified", func(t *testing.T) {
		f, mod, b := newAdvertFixture()
		mod.On("Eligible", mock.Anything, "u1").Return(nil, fmt.Errorf("owner u1: %w", domain.ErrNotVerified))

		b.HandleMessage(ctx, message("101", guildID, "!advertise"))

		assert.Equal(t, []string{"❌ You must verify your Roblox account before submitting an advertisement."}, f.replies("101"))
		f.gw.AssertNotCalled(t, "UserChannelCreate", "u1")
	})

	t.Run("no credits", func(t *testing.T) {
		f, mod, b := newAdvertFixture()
		mod.On("Eligible", mock.Anything, "u1").Return(&domain.VerificationRecord{Credits: 0}, domain.ErrInsufficientCredits)

		b.HandleMessage(ctx, message("101", guildID, "!advertise"))

		assert.Equal(t, []string{"❌ You have no BEcredits left. Purchase more to advertise."}, f.replies("101"))
	})

	t.Run("DMs closed", func(t *testing.T) {
		f, mod, b := newAdvertFixture()
		mod.On("Eligible", mock.Anything, "u1").Return(&domain.VerificationRecord{Credits: 2}, nil)
		f.gw.On("UserChannelCreate", "u1").Return(nil, errors.New("cannot send messages to this user"))

		b.HandleMessage(ctx, message("101", guildID, "!advertise"))

		assert.Equal(t, []string{"❌ I couldn't DM you! Please enable DMs from server members."}, f.replies("101"))
	})

	t.Run("no text in time", func(t *testing.T) {
		f, mod, b := newAdvertFixture()
		b.timeouts[0] = 20 * time.Millisecond
		mod.On("Eligible", mock.Anything, "u1").Return(&domain.VerificationRecord{Credits: 2}, nil)
		f.gw.On("UserChannelCreate", "u1").Return(&discordgo.Channel{ID: "dm1"}, nil)

		b.HandleMessage(ctx, message("101", guildID, "!advertise"))

		assert.Equal(t, []string{"⏱️ Advertisement cancelled (no message provided)."}, f.replies("101"))
		mod.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
	})
}

func pendingSubmission() domain.Submission {
	return domain.Submission{
		ID:             "s1",
		GuildID:        guildID,
		OwnerID:        "u9",
		Username:       "bob",
		ExternalHandle: "BobR",
		Text:           "Buy my limited",
		Status:         domain.SubmissionPending,
		SubmittedAt:    fixedNow,
	}
}

func TestAdvertBot_Adreq_Approve(t *testing.T) {
	f, mod, b := newAdvertFixture()
	sub := pendingSubmission()
	final := sub
	final.Status = domain.SubmissionApproved
	final.ProcessedBy = "alice"
	final.Comments = "Looks good"

	mod.On("ListPending", mock.Anything, guildID).Return([]domain.Submission{sub}, nil)
	mod.On("Get", mock.Anything, "s1").Return(&sub, nil)
	mod.On("Decide", mock.Anything, "s1", moderation.DecideRequest{Decision: "approve", StaffName: "alice", Comments: "Looks good"}).
		Return(&final, nil).Once()
	f.gw.On("UserChannelCreate", "u9").Return(&discordgo.Channel{ID: "dm9"}, nil)

	c := start(t, b.Bot, message("102", guildID, "!adreq", "r2"))
	c.answer("102", guildID, "1")
	c.answer("102", guildID, "Approve")
	c.answer("102", guildID, "Looks good")
	c.wait()

	assert.Equal(t, []string{"📣 Advertisement by **bob** (BobR):\nBuy my limited"}, f.texts("ChannelMessageSend", "107"))

	logs := f.embeds("108")
	require.Len(t, logs, 1)
	assert.Equal(t, "Advertisement Request Approved", logs[0].Title)
	assert.Equal(t, colorGreen, logs[0].Color)
	assert.Contains(t, logs[0].Description, "**Comments:** Looks good")

	dms := f.texts("ChannelMessageSend", "dm9")
	require.Len(t, dms, 1)
	assert.Contains(t, dms[0], "**APPROVED**")

	staff := f.texts("ChannelMessageSend", "102")
	assert.Equal(t, "✅ Decision **Approved** recorded for **bob**.", staff[len(staff)-1])
	mod.AssertExpectations(t)
}

func TestAdvertBot_Adreq_DenyWithClosedDMs(t *testing.T) {
	f, mod, b := newAdvertFixture()
	sub := pendingSubmission()
	final := sub
	final.Status = domain.SubmissionDenied
	final.ProcessedBy = "alice"

	mod.On("ListPending", mock.Anything, guildID).Return([]domain.Submission{sub}, nil)
	mod.On("Get", mock.Anything, "s1").Return(&sub, nil)
	mod.On("Decide", mock.Anything, "s1", moderation.DecideRequest{Decision: "deny", StaffName: "alice"}).Return(&final, nil).Once()
	f.gw.On("UserChannelCreate", "u9").Return(nil, errors.New("cannot send messages to this user"))

	c := start(t, b.Bot, message("102", guildID, "!adreq", "r2"))
	c.answer("102", guildID, "1")
	c.answer("102", guildID, "deny")
	c.answer("102", guildID, "none")
	c.wait()

	assert.Empty(t, f.texts("ChannelMessageSend", "107"))
	logs := f.embeds("108")
	require.Len(t, logs, 1)
	assert.Equal(t, "Advertisement Request Denied", logs[0].Title)
	assert.Contains(t, logs[0].Description, "**Comments:** (none)")

	staff := f.texts("ChannelMessageSend", "102")
	assert.Contains(t, staff, "ℹ️ Could not DM the submitter (DMs closed).")
	assert.Equal(t, "✅ Decision **Denied** recorded for **bob**.", staff[len(staff)-1])
}

func TestAdvertBot_Adreq_Guards(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong channel", func(t *testing.T) {
		f, _, b := newAdvertFixture()
		b.HandleMessage(ctx, message("101", guildID, "!adreq", "r2"))
		assert.Equal(t, []string{"❌ Use this command in #commands."}, f.replies("101"))
	})

	t.Run("not staff", func(t *testing.T) {
		f, mod, b := newAdvertFixture()
		b.HandleMessage(ctx, message("102", guildID, "!adreq", "r1"))
		assert.Equal(t, []string{"❌ You must be **Blox Entertainment Staff** to use this command."}, f.replies("102"))
		mod.AssertNotCalled(t, "ListPending", mock.Anything, mock.Anything)
	})

	t.Run("empty queue", func(t *testing.T) {
		f, mod, b := newAdvertFixture()
		mod.On("ListPending", mock.Anything, guildID).Return([]domain.Submission{}, nil)
		b.HandleMessage(ctx, message("102", guildID, "!adreq", "r2"))
		assert.Equal(t, []string{"📭 No pending advertisement requests."}, f.replies("102"))
	})

	t.Run("invalid selection", func(t *testing.T) {
		f, mod, b := newAdvertFixture()
		mod.On("ListPending", mock.Anything, guildID).Return([]domain.Submission{pendingSubmission()}, nil)

		c := start(t, b.Bot, message("102", guildID, "!adreq", "r2"))
		c.answer("102", guildID, "7")
		c.wait()

		replies := f.replies("102")
		assert.Equal(t, "❌ Invalid selection. Try `!adreq` again.", replies[len(replies)-1])
		mod.AssertNotCalled(t, "Decide", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("decided by someone else meanwhile", func(t *testing.T) {
		f, mod, b := newAdvertFixture()
		sub := pendingSubmission()
		mod.On("ListPending", mock.Anything, guildID).Return([]domain.Submission{sub}, nil)
		mod.On("Get", mock.Anything, "s1").Return(&sub, nil)
		mod.On("Decide", mock.Anything, "s1", mock.Anything).Return(nil, domain.ErrNotPending)

		c := start(t, b.Bot, message("102", guildID, "!adreq", "r2"))
		c.answer("102", guildID, "1")
		c.answer("102", guildID, "yes")
		c.answer("102", guildID, "none")
		c.wait()

		staff := f.texts("ChannelMessageSend", "102")
		assert.Equal(t, "⚠️ That advertisement request is no longer pending.", staff[len(staff)-1])
		assert.Empty(t, f.embeds("108"))
	})
}

func TestParseDecision(t *testing.T) {
	for _, in := range []string{"approve", " APPROVED ", "yes", "✅"} {
		d, ok := parseDecision(in)
		assert.True(t, ok, in)
		assert.Equal(t, "approve", d, in)
	}
	for _, in := range []string{"deny", "Denied", "no", "❌"} {
		d, ok := parseDecision(in)
		assert.True(t, ok, in)
		assert.Equal(t, "deny", d, in)
	}
	_, ok := parseDecision("maybe")
	assert.False(t, ok)
}
