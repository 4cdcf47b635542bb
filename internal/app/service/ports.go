package service

import (
	"context"

	"github.com/jose-valero/tribunaldo-bot/internal/domain"
)

// Lo implementa internal/infra/storage (Postgres o Badger)
type StateStore interface {
	LoadAll(ctx context.Context) (domain.State, error)
	SaveAll(ctx context.Context, st domain.State) error
}

// Lo implementa internal/adapters/discord.Guild.
// Las búsquedas devuelven ok=false cuando el miembro/rol no existe; error sólo
// para fallos de transporte.
type Guild interface {
	// FetchMember va siempre a la API: el cache del gateway no ve nuestros
	// propios cambios de cargos hasta que llega GUILD_MEMBER_UPDATE.
	FetchMember(ctx context.Context, memberID string) (domain.Member, bool, error)
	// Miembros que tienen roleID (reconciliación al arrancar)
	RoleMembers(ctx context.Context, roleID string) ([]string, error)
	VoiceState(ctx context.Context, memberID string) (domain.VoiceState, bool)
	RoleExists(ctx context.Context, roleID string) bool
	// Miembros que están ahora mismo en channelID (para el rescan al arrancar)
	VoiceMembers(ctx context.Context, channelID string) map[string]domain.VoiceState

	GrantRole(ctx context.Context, memberID, roleID string) error
	RevokeRole(ctx context.Context, memberID, roleID string) error
	Disconnect(ctx context.Context, memberID string) error
}

// Lo implementa internal/adapters/discord.Notifier
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) (domain.MessageRef, error)
	Update(ctx context.Context, ref domain.MessageRef, n domain.Notification) error
	Delete(ctx context.Context, ref domain.MessageRef) error
}

// Lo implementa internal/adapters/gemini.Client
type Generator interface {
	Generate(ctx context.Context, history []domain.ChatTurn, prompt string) (string, error)
}

// Lo implementa internal/infra/storage (Postgres o Badger)
type ChatHistory interface {
	Append(ctx context.Context, turn domain.ChatTurn) error
	Recent(ctx context.Context, memberID string, limit int) ([]domain.ChatTurn, error)
	Trim(ctx context.Context, memberID string, keep int) error
	Clear(ctx context.Context, memberID string) (bool, error)
}
