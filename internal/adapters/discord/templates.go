package discord

import (
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/tribunaldo-bot/internal/domain"
)

const (
	colorFocus   = 0x8A2BE2
	colorOK      = 0x00FF00
	colorWarn    = 0xFFD700
	colorUrgent  = 0xFF6B35
	colorKicked  = 0xFF0000
	colorLeft    = 0x87CEEB
	footerSystem = "Tribunaldo 🐺"
)

// rendered es lo que termina en el canal: texto (para pingear) + embed.
type rendered struct {
	Content string
	Embed   *discordgo.MessageEmbed
}

func mention(id string) string   { return "<@" + id + ">" }
func channelRef(id string) string { return "<#" + id + ">" }

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// urgency es la escalera de iconos del countdown.
func urgency(seconds int) string {
	switch {
	case seconds > 30:
		return fmt.Sprintf("%d segundos ⏰", seconds)
	case seconds > 10:
		return fmt.Sprintf("%d segundos ⚠️", seconds)
	default:
		return fmt.Sprintf("%d segundos 🚨", seconds)
	}
}

func countdownColor(seconds int) int {
	if seconds <= 10 {
		return colorUrgent
	}
	return colorWarn
}

func field(name, value string) *discordgo.MessageEmbedField {
	return &discordgo.MessageEmbedField{Name: name, Value: value}
}

// render arma el mensaje de cada template. Un template desconocido cae en un
// texto plano con la mención para no perder el aviso.
func render(n domain.Notification) rendered {
	v := n.Vars
	member := mention(n.MemberID)
	ch := channelRef(v[domain.VarChannel])

	var out rendered
	switch n.Template {
	case domain.TplFocusEntered:
		out.Embed = &discordgo.MessageEmbed{
			Title: "Modo Foco ATIVADO!",
			Description: fmt.Sprintf("Agora acabou a brincadeira, %s! Vai estudar que seu FUTURO DEPENDE DISSO!!!\n"+
				"Os canais que tiram sua atenção foram ocultados enquanto você estiver em %s.", member, ch),
			Color: colorFocus,
			Fields: []*discordgo.MessageEmbedField{
				field("👍 Quer ver os canais de novo?", fmt.Sprintf("É só SAIR de %s e esperar alguns segundos.", ch)),
			},
		}

	case domain.TplFocusExited:
		out.Embed = &discordgo.MessageEmbed{
			Title: "Modo Foco DESATIVADO!",
			Description: fmt.Sprintf("AUUUUUUU! Estou orgulhoso de você, %s! Parabéns pelo foco hoje, "+
				"você está um pouco mais perto de realizar seu SONHO!", member),
			Color: colorFocus,
			Fields: []*discordgo.MessageEmbedField{
				field("✨ Os canais estão voltando aos pouquinhos",
					fmt.Sprintf("Você poderá voltar para %s em %s segundos.", ch, v[domain.VarTotal])),
			},
		}

	case domain.TplCamWelcome:
		out.Embed = &discordgo.MessageEmbed{
			Title:       "✅ Bem-vindo ao Canal de Estudo!",
			Description: fmt.Sprintf("Olá %s! Você entrou em %s com a câmera ligada. Bons estudos! 📚", member, ch),
			Color:       colorOK,
		}

	case domain.TplCamGrace, domain.TplCamWarning:
		remaining := atoi(v[domain.VarRemaining])
		title := "⚠️ Aviso - Canal de Estudo com Câmera"
		desc := fmt.Sprintf("Olá %s! Este canal exige **câmera** ou **transmissão de tela** ligada.\n"+
			"Ligue uma delas em até %s segundos ou você será desconectado.", member, v[domain.VarTotal])
		if n.Template == domain.TplCamWarning {
			title = "⚠️ Câmera Desligada!"
			desc = fmt.Sprintf("%s, sua câmera/transmissão foi desligada.\n"+
				"Religue em até %s segundos ou você será desconectado de %s.", member, v[domain.VarTotal], ch)
		}
		out.Content = member
		out.Embed = &discordgo.MessageEmbed{
			Title:       title,
			Description: desc,
			Color:       countdownColor(remaining),
			Fields:      []*discordgo.MessageEmbedField{field("⏰ Tempo restante", urgency(remaining))},
		}

	case domain.TplCamApproved:
		kind := "📹 Câmera"
		if v[domain.VarCamKind] == "screen" {
			kind = "🖥️ Transmissão de tela"
		}
		out.Embed = &discordgo.MessageEmbed{
			Title:       "🎉 Câmera/Transmissão Ligada!",
			Description: fmt.Sprintf("Perfeito, %s! Você ligou sua câmera ou transmissão de tela a tempo!", member),
			Color:       colorOK,
			Fields: []*discordgo.MessageEmbedField{
				field("✅ Tipo ativado", kind),
				field("⏱️ Tempo levado", v[domain.VarTaken]+" segundos"),
				field("⏰ Tempo restante", v[domain.VarRemaining]+" segundos"),
				field("📚 Status", "Monitoramento ativo. Bons estudos!"),
			},
		}

	case domain.TplCamReenabled:
		out.Embed = &discordgo.MessageEmbed{
			Title:       "✅ Câmera/Transmissão Religada!",
			Description: fmt.Sprintf("Boa, %s! Você voltou a ligar a câmera em %s segundos.", member, v[domain.VarTaken]),
			Color:       colorOK,
		}

	case domain.TplCamKicked, domain.TplCamKickedWarning:
		reason := fmt.Sprintf("Câmera e transmissão de tela desligadas por mais de %s segundos.", v[domain.VarTotal])
		if n.Template == domain.TplCamKickedWarning {
			reason = fmt.Sprintf("Câmera desligada e não religada em %s segundos.", v[domain.VarTotal])
		}
		out.Embed = &discordgo.MessageEmbed{
			Title: "❌ Expulso do Canal",
			Description: fmt.Sprintf("%s, você foi desconectado de %s por não ligar sua câmera ou transmissão "+
				"de tela no tempo limite.", member, ch),
			Color: colorKicked,
			Fields: []*discordgo.MessageEmbedField{
				field("📋 Motivo", reason),
				field("🔄 Como voltar", "Entre de novo no canal e ligue a câmera ou a transmissão de tela."),
			},
		}

	case domain.TplCamLeft:
		out.Embed = &discordgo.MessageEmbed{
			Title:       "👋 Saída do Canal de Estudo",
			Description: fmt.Sprintf("%s saiu de %s.", member, ch),
			Color:       colorLeft,
			Fields: []*discordgo.MessageEmbedField{
				field("⏱️ Tempo no canal", v[domain.VarStayed]+" segundos"),
				field("✅ Status", "Saída voluntária, monitoramento encerrado."),
			},
		}

	default:
		out.Content = fmt.Sprintf("%s (%s)", member, n.Template)
		return out
	}
	out.Embed.Footer = &discordgo.MessageEmbedFooter{Text: footerSystem}
	return out
}
