package discord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/tribunaldo-bot/internal/domain"
)

// Notifier manda los avisos al canal de log. Los fallos se devuelven al core,
// que sólo los loguea.
type Notifier struct {
	s *discordgo.Session
}

func NewNotifier(s *discordgo.Session) *Notifier {
	return &Notifier{s: s}
}

func (n *Notifier) Notify(ctx context.Context, note domain.Notification) (domain.MessageRef, error) {
	if note.ChannelID == "" {
		return domain.MessageRef{}, fmt.Errorf("notify %s: canal vacío", note.Template)
	}
	r := render(note)
	send := &discordgo.MessageSend{
		Content:         r.Content,
		AllowedMentions: &discordgo.MessageAllowedMentions{Users: []string{note.MemberID}},
	}
	if r.Embed != nil {
		send.Embeds = []*discordgo.MessageEmbed{r.Embed}
	}
	msg, err := n.s.ChannelMessageSendComplex(note.ChannelID, send, discordgo.WithContext(ctx))
	if err != nil {
		return domain.MessageRef{}, fmt.Errorf("notify %s: %w", note.Template, err)
	}
	ref := domain.MessageRef{ChannelID: msg.ChannelID, MessageID: msg.ID}
	n.expire(ref, note.ExpireAfter)
	return ref, nil
}

func (n *Notifier) Update(ctx context.Context, ref domain.MessageRef, note domain.Notification) error {
	if ref.IsZero() {
		return fmt.Errorf("update %s: sin mensaje", note.Template)
	}
	r := render(note)
	content := r.Content
	edit := &discordgo.MessageEdit{
		Channel: ref.ChannelID,
		ID:      ref.MessageID,
		Content: &content,
	}
	if r.Embed != nil {
		em := []*discordgo.MessageEmbed{r.Embed}
		edit.Embeds = &em
	}
	if _, err := n.s.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("update %s: %w", note.Template, err)
	}
	n.expire(ref, note.ExpireAfter)
	return nil
}

func (n *Notifier) Delete(ctx context.Context, ref domain.MessageRef) error {
	if ref.IsZero() {
		return nil
	}
	err := n.s.ChannelMessageDelete(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx))
	if isNotFound(err) {
		return nil
	}
	return err
}

// expire borra el mensaje pasado ttl. Si ya no existe, no es error.
func (n *Notifier) expire(ref domain.MessageRef, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	time.AfterFunc(ttl, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := n.Delete(ctx, ref); err != nil {
			log.Printf("[notify] expire msg=%s: %v", ref.MessageID, err)
		}
	})
}

func isNotFound(err error) bool {
	var re *discordgo.RESTError
	return errors.As(err, &re) && re.Response != nil && re.Response.StatusCode == http.StatusNotFound
}
