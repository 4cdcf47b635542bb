// aqui solo manejamos la interaccion del usuario y despachamos a los servicios
package discord

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/bwmarrin/discordgo"
)

const chatUnavailable = "❌ Sistema de chat temporariamente indisponível. AUUUUU! 🐺"

func (r *Router) handleSlashCommand(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	cmd := ic.ApplicationCommandData()
	userID := ic.Member.User.ID
	log.Printf("cmd: %s by=%s guild=%s", cmd.Name, userID, ic.GuildID)

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("panic in cmd /%s: %v", cmd.Name, rec)
			ReplyEphemeral(s, ic, "❌ Ops! Algo deu errado ao processar o comando. AUUUUU! 🐺")
		}
	}()

	switch cmd.Name {
	//--> liveness, respuesta pública
	case "despertar":
		_ = SendResponse(s, ic, "Estou funcionando! AUUUUU 🐺")
		return

	case "chat":
		if r.chat == nil {
			_ = SendEphemeral(s, ic, chatUnavailable)
			return
		}
		_ = DeferPublic(s, ic)
		ctx, cancel := context.WithTimeout(context.Background(), chatTimeout)
		defer cancel()
		defer step("chat.slash")()

		msg, _ := optStr(ic, "message")
		for _, part := range r.chat.Ask(ctx, userID, msg) {
			ReplyEphemeral(s, ic, part)
		}
		return
	}

	_ = DeferEphemeral(s, ic)
	ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
	defer cancel()

	switch cmd.Name {
	case "chat_limpar":
		if r.chat == nil {
			ReplyEphemeral(s, ic, chatUnavailable)
			return
		}
		cleared, err := r.chat.Clear(ctx, userID)
		if err != nil {
			log.Printf("[chat] clear member=%s: %v", userID, err)
			ReplyEphemeral(s, ic, "⚠️ Não consegui limpar seu histórico agora. Tente de novo!")
			return
		}
		ReplyEphemeral(s, ic, "", clearedEmbed(cleared))

	case "chat_stats":
		if r.chat == nil {
			ReplyEphemeral(s, ic, chatUnavailable)
			return
		}
		st, err := r.chat.Stats(ctx, userID)
		if err != nil {
			log.Printf("[chat] stats member=%s: %v", userID, err)
			ReplyEphemeral(s, ic, "⚠️ Não consegui ler suas estatísticas agora.")
			return
		}
		em := &discordgo.MessageEmbed{
			Title:       "📊 Estatísticas de Chat",
			Description: "Você ainda não conversou comigo! Use `/chat` ou me mencione. AUUUUU! 🐺",
			Color:       colorFocus,
		}
		if st.UserMessages+st.ModelResponses > 0 {
			em.Title = "📊 Suas Estatísticas de Chat"
			em.Description = fmt.Sprintf("Aqui estão suas estatísticas de conversa comigo, %s! 🐺", mention(userID))
			em.Fields = []*discordgo.MessageEmbedField{
				{Name: "💬 Mensagens Enviadas", Value: strconv.Itoa(st.UserMessages), Inline: true},
				{Name: "🤖 Respostas Recebidas", Value: strconv.Itoa(st.ModelResponses), Inline: true},
				{Name: "🔄 Total de Interações", Value: strconv.Itoa(st.UserMessages + st.ModelResponses), Inline: true},
			}
			if st.LastInteraction != nil {
				em.Fields = append(em.Fields, &discordgo.MessageEmbedField{
					Name: "🕒 Última Conversa", Value: fmt.Sprintf("<t:%d:R>", st.LastInteraction.Unix()),
				})
			}
		}
		ReplyEphemeral(s, ic, "", em)

	case "chat_ajuda":
		if r.chat == nil {
			ReplyEphemeral(s, ic, chatUnavailable)
			return
		}
		ReplyEphemeral(s, ic, "", r.helpEmbed())

	//--> solo admins
	case "status":
		if !r.requireAdminOrRoles(s, ic) {
			return
		}
		ReplyEphemeral(s, ic, "", r.statusEmbed())
	}
}

func clearedEmbed(cleared bool) *discordgo.MessageEmbed {
	if cleared {
		return &discordgo.MessageEmbed{
			Title:       "🧹 Histórico Limpo!",
			Description: "Seu histórico de conversa com o Tribunaldo foi limpo com sucesso! AUUUUU! 🐺",
			Color:       colorFocus,
		}
	}
	return &discordgo.MessageEmbed{
		Title:       "📝 Sem Histórico",
		Description: "Você ainda não tem histórico de conversa para limpar! Que tal começar uma conversa? 🐺",
		Color:       colorFocus,
	}
}

func (r *Router) helpEmbed() *discordgo.MessageEmbed {
	where := "• Me mencione: `@Tribunaldo oi!`\n• Use o comando: `/chat <mensagem>`"
	cfg := r.chat.Config()
	if cfg.ChannelID != "" {
		where = fmt.Sprintf("**Canal Dedicado:** %s\n• Envie qualquer mensagem lá que eu respondo!\n\n**Outros Canais:**\n", channelRef(cfg.ChannelID)) + where
	}
	return &discordgo.MessageEmbed{
		Title:       "🤖 Como Conversar com o Tribunaldo",
		Description: "Aqui estão todas as formas de conversar comigo! AUUUUU! 🐺",
		Color:       colorFocus,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "💬 Como Conversar", Value: where},
			{Name: "⚡ Funcionalidades", Value: fmt.Sprintf(
				"• Histórico de conversa personalizado\n• Cooldown de %s entre mensagens\n• Máximo de %d mensagens no histórico",
				fmtRemain(cfg.Cooldown), cfg.MaxHistory)},
			{Name: "🔧 Comandos Úteis", Value: "`/chat_limpar` - Limpa seu histórico\n`/chat_stats` - Suas estatísticas\n`/chat_ajuda` - Esta mensagem"},
		},
	}
}

func (r *Router) statusEmbed() *discordgo.MessageEmbed {
	fs := r.focus.Stats()
	cs := r.cam.Stats()
	return &discordgo.MessageEmbed{
		Title: "📋 Status do Tribunaldo",
		Color: colorFocus,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "🎯 Restrições pendentes", Value: strconv.Itoa(fs.PendingRestrictions), Inline: true},
			{Name: "🎭 Cargos guardados", Value: strconv.Itoa(fs.RemovedRoleRecords), Inline: true},
			{Name: "⏲️ Timers armados", Value: strconv.Itoa(fs.ArmedTimers), Inline: true},
			{Name: "📹 Sessões de câmera", Value: phaseLine(cs.Sessions)},
			{Name: "⏰ Countdowns ativos", Value: strconv.Itoa(cs.ActiveCountdowns), Inline: true},
			{Name: "🚪 Kick marks", Value: strconv.Itoa(cs.PendingKickMarks), Inline: true},
			{Name: "📈 Avisos / Expulsões / Cumpridos", Value: fmt.Sprintf("%d / %d / %d", cs.Warnings, cs.Kicks, cs.Compliances)},
		},
	}
}
