package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/tribunaldo-bot/internal/domain"
)

// Guild es la capacidad del core sobre el servidor. Voz sale del State; los
// cargos de un miembro se leen por REST.
type Guild struct {
	s       *discordgo.Session
	guildID string
}

func NewGuild(s *discordgo.Session, guildID string) *Guild {
	return &Guild{s: s, guildID: guildID}
}

func (g *Guild) FetchMember(ctx context.Context, memberID string) (domain.Member, bool, error) {
	m, err := g.s.GuildMember(g.guildID, memberID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return domain.Member{}, false, nil
		}
		return domain.Member{}, false, fmt.Errorf("fetch member %s: %w", memberID, err)
	}
	_ = g.s.State.MemberAdd(m)
	return toMember(memberID, m), true, nil
}

const membersPage = 1000

// RoleMembers pagina GuildMembers por REST; el State no garantiza tener a
// todos los miembros.
func (g *Guild) RoleMembers(ctx context.Context, roleID string) ([]string, error) {
	var out []string
	after := ""
	for {
		page, err := g.s.GuildMembers(g.guildID, after, membersPage, discordgo.WithContext(ctx))
		if err != nil {
			return out, fmt.Errorf("guild members: %w", err)
		}
		for _, m := range page {
			if m.User == nil {
				continue
			}
			for _, r := range m.Roles {
				if r == roleID {
					out = append(out, m.User.ID)
					break
				}
			}
		}
		if len(page) < membersPage || page[len(page)-1].User == nil {
			return out, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func toMember(id string, m *discordgo.Member) domain.Member {
	return domain.Member{ID: id, RoleIDs: append([]string(nil), m.Roles...)}
}

// VoiceState sale sólo del State: el gateway lo mantiene al día.
func (g *Guild) VoiceState(_ context.Context, memberID string) (domain.VoiceState, bool) {
	vs, err := g.s.State.VoiceState(g.guildID, memberID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return domain.VoiceState{}, false
	}
	return toVoiceState(vs), true
}

func toVoiceState(vs *discordgo.VoiceState) domain.VoiceState {
	return domain.VoiceState{ChannelID: vs.ChannelID, CameraOn: vs.SelfVideo, ScreenShareOn: vs.SelfStream}
}

func (g *Guild) RoleExists(ctx context.Context, roleID string) bool {
	if r, err := g.s.State.Role(g.guildID, roleID); err == nil && r != nil {
		return true
	}
	roles, err := g.s.GuildRoles(g.guildID, discordgo.WithContext(ctx))
	if err != nil {
		// sin poder confirmar, mejor no tocarlo
		return false
	}
	for _, r := range roles {
		if r.ID == roleID {
			return true
		}
	}
	return false
}

func (g *Guild) VoiceMembers(_ context.Context, channelID string) map[string]domain.VoiceState {
	out := map[string]domain.VoiceState{}
	guild, err := g.s.State.Guild(g.guildID)
	if err != nil || guild == nil {
		return out
	}
	g.s.State.RLock()
	defer g.s.State.RUnlock()
	for _, vs := range guild.VoiceStates {
		if vs != nil && vs.ChannelID == channelID {
			out[vs.UserID] = toVoiceState(vs)
		}
	}
	return out
}

func (g *Guild) GrantRole(ctx context.Context, memberID, roleID string) error {
	if err := g.s.GuildMemberRoleAdd(g.guildID, memberID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("grant role %s to %s: %w", roleID, memberID, err)
	}
	return nil
}

func (g *Guild) RevokeRole(ctx context.Context, memberID, roleID string) error {
	if err := g.s.GuildMemberRoleRemove(g.guildID, memberID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("revoke role %s from %s: %w", roleID, memberID, err)
	}
	return nil
}

// Disconnect: mover a canal nil saca al miembro de voz.
func (g *Guild) Disconnect(ctx context.Context, memberID string) error {
	if err := g.s.GuildMemberMove(g.guildID, memberID, nil, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("disconnect %s: %w", memberID, err)
	}
	return nil
}
