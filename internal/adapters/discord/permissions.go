package discord

import "github.com/bwmarrin/discordgo"

func (r *Router) requireAdminOrRoles(s *discordgo.Session, ic *discordgo.InteractionCreate) bool {
	ownerID := ""
	if g, _ := s.State.Guild(ic.GuildID); g != nil {
		ownerID = g.OwnerID
	}
	if isAdmin(ic.Member, ownerID, r.adminRoleIDs) {
		return true
	}
	ReplyEphemeral(s, ic, "🔒 Você não tem permissão para usar este comando.")
	return false
}

// isAdmin: dueño del servidor, bit Administrator (viene resuelto en la
// interacción) o alguno de los cargos configurados.
func isAdmin(m *discordgo.Member, ownerID string, adminRoleIDs []string) bool {
	if m == nil {
		return false
	}
	// Owner
	if m.User != nil && ownerID != "" && m.User.ID == ownerID {
		return true
	}

	// Administrator bit
	if m.Permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}

	// Roles explícitos del bot
	if len(adminRoleIDs) > 0 {
		has := make(map[string]struct{}, len(m.Roles))
		for _, rid := range m.Roles {
			has[rid] = struct{}{}
		}
		for _, want := range adminRoleIDs {
			if _, ok := has[want]; ok {
				return true
			}
		}
	}
	return false
}
