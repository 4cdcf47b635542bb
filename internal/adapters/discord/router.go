package discord

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/tribunaldo-bot/internal/app/service"
	"github.com/jose-valero/tribunaldo-bot/internal/domain"
)

const (
	cmdTimeout  = 12 * time.Second
	chatTimeout = 45 * time.Second
)

type Router struct {
	s       *discordgo.Session
	guildID string

	voice        *service.VoiceDispatcher
	focus        *service.FocusService
	cam          *service.StudyCamService
	chat         *service.ChatService // nil = asistente apagado
	adminRoleIDs []string

	guildReady chan struct{}
	readyOnce  sync.Once
}

func NewRouter(
	s *discordgo.Session,
	guildID string,
	voice *service.VoiceDispatcher,
	focus *service.FocusService,
	cam *service.StudyCamService,
	chat *service.ChatService,
	adminRoleIDs []string,
) *Router {
	return &Router{
		s:            s,
		guildID:      guildID,
		voice:        voice,
		focus:        focus,
		cam:          cam,
		chat:         chat,
		adminRoleIDs: adminRoleIDs,
		guildReady:   make(chan struct{}),
	}
}

func (r *Router) Register() error {
	appID := r.s.State.User.ID
	for _, cmd := range Commands {
		if _, err := r.s.ApplicationCommandCreate(appID, r.guildID, cmd); err != nil {
			return err
		}
	}
	return nil
}

// Handlers engancha los eventos. La sesión corre con SyncEvents: el de voz
// sólo encola (orden por miembro), el resto se va a su goroutine.
func (r *Router) Handlers() {
	r.s.AddHandler(func(_ *discordgo.Session, gc *discordgo.GuildCreate) {
		if gc.Guild != nil && gc.ID == r.guildID {
			r.readyOnce.Do(func() { close(r.guildReady) })
		}
	})
	r.s.AddHandler(r.onVoiceStateUpdate)

	r.s.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		if ic.Type != discordgo.InteractionApplicationCommand || ic.Member == nil || ic.Member.User == nil {
			return
		}
		go r.handleSlashCommand(s, ic)
	})

	r.s.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if r.chat == nil || m.Author == nil || m.GuildID != r.guildID {
			return
		}
		go r.onMessage(s, m)
	})
}

// WaitGuild espera el GUILD_CREATE del servidor (State con voz y miembros).
func (r *Router) WaitGuild(ctx context.Context, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-r.guildReady:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (r *Router) onVoiceStateUpdate(_ *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.VoiceState == nil || vs.GuildID != r.guildID {
		return
	}
	if vs.Member != nil && vs.Member.User != nil && vs.Member.User.Bot {
		return
	}
	r.voice.Dispatch(transitionFrom(vs))
}

// transitionFrom arma la transición con el canal anterior que guarda el State.
func transitionFrom(vs *discordgo.VoiceStateUpdate) domain.VoiceTransition {
	tr := domain.VoiceTransition{
		MemberID:      vs.UserID,
		NewChannelID:  vs.ChannelID,
		CameraOn:      vs.SelfVideo,
		ScreenShareOn: vs.SelfStream,
	}
	if vs.BeforeUpdate != nil {
		tr.PreviousChannelID = vs.BeforeUpdate.ChannelID
	}
	return tr
}

func (r *Router) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	botID := s.State.User.ID
	msg := chatMessageFrom(m.Message, botID)
	if msg.AuthorID == botID {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), chatTimeout)
	defer cancel()
	defer step("chat.message")()

	_ = s.ChannelTyping(m.ChannelID)
	parts := r.chat.HandleMessage(ctx, msg)
	for i, p := range parts {
		var err error
		if i == 0 {
			_, err = s.ChannelMessageSendReply(m.ChannelID, p, m.Reference())
		} else {
			_, err = s.ChannelMessageSend(m.ChannelID, p)
		}
		if err != nil {
			log.Printf("[chat] reply member=%s: %v", msg.AuthorID, err)
			return
		}
	}
}

// chatMessageFrom normaliza un mensaje: saca la mención al bot del texto.
func chatMessageFrom(m *discordgo.Message, botID string) domain.ChatMessage {
	out := domain.ChatMessage{
		ChannelID: m.ChannelID,
		Content:   m.Content,
	}
	if m.Author != nil {
		out.AuthorID = m.Author.ID
		out.DisplayName = m.Author.Username
		out.FromBot = m.Author.Bot
	}
	if m.Member != nil && m.Member.Nick != "" {
		out.DisplayName = m.Member.Nick
	}
	for _, u := range m.Mentions {
		if u != nil && u.ID == botID {
			out.MentionsBot = true
		}
	}
	out.Content = strings.TrimSpace(stripMention(out.Content, botID))
	return out
}
