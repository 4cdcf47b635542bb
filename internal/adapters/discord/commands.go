package discord

import "github.com/bwmarrin/discordgo"

var Commands = []*discordgo.ApplicationCommand{
	{
		Name:        "despertar",
		Description: "Verifica se o Tribunaldo está acordado",
	},
	{
		Name:        "chat",
		Description: "Conversa com o Tribunaldo usando IA",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "message",
			Description: "Sua mensagem para o Tribunaldo",
			Required:    true,
		}},
	},
	{
		Name:        "chat_limpar",
		Description: "Limpa seu histórico de conversa com o Tribunaldo",
	},
	{
		Name:        "chat_stats",
		Description: "Mostra suas estatísticas de conversa com o Tribunaldo",
	},
	{
		Name:        "chat_ajuda",
		Description: "Mostra como usar o chat bot do Tribunaldo",
	},
	{
		Name:        "status",
		Description: "Estado do modo foco e do canal de câmera (admins)",
	},
}
