package discord

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/tribunaldo-bot/internal/domain"
)

func TestTransitionFrom(t *testing.T) {
	vs := &discordgo.VoiceStateUpdate{
		VoiceState:   &discordgo.VoiceState{UserID: "u1", GuildID: "g", ChannelID: "cam", SelfStream: true},
		BeforeUpdate: &discordgo.VoiceState{UserID: "u1", GuildID: "g", ChannelID: "focus"},
	}
	tr := transitionFrom(vs)
	assert.Equal(t, domain.VoiceTransition{
		MemberID: "u1", PreviousChannelID: "focus", NewChannelID: "cam", ScreenShareOn: true,
	}, tr)
	assert.True(t, tr.Entered("cam"))
	assert.True(t, tr.Left("focus"))

	// primera vez que lo vemos: sin BeforeUpdate
	tr = transitionFrom(&discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{UserID: "u2", ChannelID: "cam", SelfVideo: true}})
	assert.Empty(t, tr.PreviousChannelID)
	assert.True(t, tr.CameraOrShare())
}

func TestChatMessageFrom(t *testing.T) {
	m := &discordgo.Message{
		ChannelID: "txt",
		Content:   "<@!bot> me explica derivadas <@u9>",
		Author:    &discordgo.User{ID: "u1", Username: "ana"},
		Member:    &discordgo.Member{Nick: "Aninha"},
		Mentions:  []*discordgo.User{{ID: "bot"}, {ID: "u9"}},
	}
	got := chatMessageFrom(m, "bot")
	assert.True(t, got.MentionsBot)
	assert.Equal(t, "me explica derivadas <@u9>", got.Content)
	assert.Equal(t, "Aninha", got.DisplayName)
	assert.False(t, got.FromBot)

	got = chatMessageFrom(&discordgo.Message{Content: "oi", Author: &discordgo.User{ID: "b2", Bot: true}}, "bot")
	assert.True(t, got.FromBot)
	assert.False(t, got.MentionsBot)
}

func TestUrgencyLadder(t *testing.T) {
	assert.Equal(t, "45 segundos ⏰", urgency(45))
	assert.Equal(t, "30 segundos ⚠️", urgency(30))
	assert.Equal(t, "11 segundos ⚠️", urgency(11))
	assert.Equal(t, "10 segundos 🚨", urgency(10))
	assert.Equal(t, colorUrgent, countdownColor(5))
	assert.Equal(t, colorWarn, countdownColor(20))
}

func TestRenderTemplates(t *testing.T) {
	base := func(tpl domain.Template, vars map[string]string) domain.Notification {
		v := map[string]string{domain.VarMember: "u1", domain.VarChannel: "cam"}
		for k, x := range vars {
			v[k] = x
		}
		return domain.Notification{ChannelID: "log", Template: tpl, MemberID: "u1", Vars: v}
	}

	all := []domain.Template{
		domain.TplFocusEntered, domain.TplFocusExited, domain.TplCamWelcome, domain.TplCamGrace,
		domain.TplCamApproved, domain.TplCamWarning, domain.TplCamReenabled, domain.TplCamKicked,
		domain.TplCamKickedWarning, domain.TplCamLeft,
	}
	for _, tpl := range all {
		r := render(base(tpl, map[string]string{domain.VarRemaining: "20", domain.VarTotal: "60"}))
		require.NotNil(t, r.Embed, tpl)
		assert.Contains(t, r.Embed.Description, "<@u1>", tpl)
		assert.NotNil(t, r.Embed.Footer, tpl)
	}

	grace := render(base(domain.TplCamGrace, map[string]string{domain.VarRemaining: "5", domain.VarTotal: "60"}))
	assert.Equal(t, "<@u1>", grace.Content, "el countdown pingea al miembro")
	require.Len(t, grace.Embed.Fields, 1)
	assert.Equal(t, "5 segundos 🚨", grace.Embed.Fields[0].Value)
	assert.Equal(t, colorUrgent, grace.Embed.Color)

	approved := render(base(domain.TplCamApproved, map[string]string{
		domain.VarCamKind: "screen", domain.VarTaken: "12", domain.VarRemaining: "48",
	}))
	assert.Equal(t, "🖥️ Transmissão de tela", approved.Embed.Fields[0].Value)
	assert.Equal(t, "12 segundos", approved.Embed.Fields[1].Value)

	left := render(base(domain.TplCamLeft, map[string]string{domain.VarStayed: "33"}))
	assert.Equal(t, "33 segundos", left.Embed.Fields[0].Value)

	unknown := render(base("nope", nil))
	assert.Nil(t, unknown.Embed)
	assert.Contains(t, unknown.Content, "<@u1>")
}

func TestStripMention(t *testing.T) {
	assert.Equal(t, " oi", stripMention("<@123> oi", "123"))
	assert.Equal(t, "oi ", stripMention("oi <@!123>", "123"))
	assert.Equal(t, "<@456> oi", stripMention("<@456> oi", "123"))
}

func TestIsAdmin(t *testing.T) {
	user := &discordgo.User{ID: "u1"}
	assert.False(t, isAdmin(nil, "", nil))
	assert.True(t, isAdmin(&discordgo.Member{User: user}, "u1", nil))
	assert.True(t, isAdmin(&discordgo.Member{User: user, Permissions: discordgo.PermissionAdministrator}, "", nil))
	assert.True(t, isAdmin(&discordgo.Member{User: user, Roles: []string{"mod"}}, "", []string{"mod"}))
	assert.False(t, isAdmin(&discordgo.Member{User: user, Roles: []string{"aluno"}}, "owner", []string{"mod"}))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "00:05", fmtRemain(5*time.Second))
	assert.Equal(t, "00:00", fmtRemain(-time.Second))
	assert.Equal(t, "INITIAL_GRACE: 1 · CONTINUOUS: 0 · WARNING_ACTIVE: 2",
		phaseLine(map[string]int{"INITIAL_GRACE": 1, "WARNING_ACTIVE": 2}))
}
