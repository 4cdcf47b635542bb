package discord

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

var reMention = regexp.MustCompile(`<@!?(\d+)>`)

// stripMention borra las menciones a id (formas <@id> y <@!id>).
func stripMention(content, id string) string {
	return reMention.ReplaceAllStringFunc(content, func(tok string) string {
		if m := reMention.FindStringSubmatch(tok); len(m) == 2 && m[1] == id {
			return ""
		}
		return tok
	})
}

func fmtRemain(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

func optStr(ic *discordgo.InteractionCreate, name string) (string, bool) {
	if ic.Type != discordgo.InteractionApplicationCommand {
		return "", false
	}
	for _, o := range ic.ApplicationCommandData().Options {
		if o.Name == name {
			return o.StringValue(), true
		}
		// subcommand
		if o.Type == discordgo.ApplicationCommandOptionSubCommand {
			for _, so := range o.Options {
				if so.Name == name {
					return so.StringValue(), true
				}
			}
		}
	}
	return "", false
}

// phaseLine resume las sesiones de cámara por fase, orden fijo.
func phaseLine(sessions map[string]int) string {
	var b strings.Builder
	for _, p := range []string{"INITIAL_GRACE", "CONTINUOUS", "WARNING_ACTIVE"} {
		if b.Len() > 0 {
			b.WriteString(" · ")
		}
		fmt.Fprintf(&b, "%s: %d", p, sessions[p])
	}
	return b.String()
}
