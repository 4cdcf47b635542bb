package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jose-valero/tribunaldo-bot/internal/domain"
	"github.com/jose-valero/tribunaldo-bot/internal/infra/metrics"
)

const (
	chatChunkSize   = 2000
	chatEmptyPrompt = "Olá!"
	chatFallback    = "❌ Ops! Algo deu errado ao processar sua mensagem. Tente novamente em alguns segundos! AUUUUU! 🐺"
)

type ChatConfig struct {
	ChannelID  string // canal dedicado; vacío = sólo menciones y /chat
	Cooldown   time.Duration
	MaxHistory int // intercambios; se guardan 2x turnos
}

type ChatService struct {
	cfg     ChatConfig
	gen     Generator
	history ChatHistory
	metrics *metrics.Metrics
	limiter *userLimiter
}

func NewChatService(cfg ChatConfig, gen Generator, history ChatHistory, m *metrics.Metrics) *ChatService {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 10
	}
	return &ChatService{
		cfg:     cfg,
		gen:     gen,
		history: history,
		metrics: m,
		limiter: newUserLimiter(cfg.Cooldown),
	}
}

// HandleMessage decide si un mensaje de texto es para el asistente y devuelve
// los trozos de respuesta (nil = ignorar).
func (s *ChatService) HandleMessage(ctx context.Context, msg domain.ChatMessage) []string {
	if msg.FromBot {
		return nil
	}
	dedicated := s.cfg.ChannelID != "" && msg.ChannelID == s.cfg.ChannelID
	if !dedicated && !msg.MentionsBot {
		return nil
	}
	return s.Ask(ctx, msg.AuthorID, msg.Content)
}

// Ask es el camino común de mensajes y /chat.
func (s *ChatService) Ask(ctx context.Context, memberID, prompt string) []string {
	if ok, wait := s.limiter.Allow(memberID); !ok {
		return []string{fmt.Sprintf("🕐 Calma aí, <@%s>! Aguarde mais %.1f segundos. 🐺", memberID, wait.Seconds())}
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = chatEmptyPrompt
	}

	keep := 2 * s.cfg.MaxHistory
	hist, err := s.history.Recent(ctx, memberID, keep)
	if err != nil {
		log.Printf("[chat] member=%s: history: %v", memberID, err)
		hist = nil
	}

	reply, err := s.gen.Generate(ctx, hist, prompt)
	if err != nil {
		s.metrics.IncChatFailure()
		log.Printf("[chat] member=%s: generate: %v", memberID, err)
		return []string{chatFallback}
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		s.metrics.IncChatFailure()
		return []string{chatFallback}
	}

	now := time.Now().UTC()
	for _, t := range []domain.ChatTurn{
		{MemberID: memberID, Role: domain.ChatUser, Content: prompt, At: now},
		{MemberID: memberID, Role: domain.ChatModel, Content: reply, At: now},
	} {
		if err := s.history.Append(ctx, t); err != nil {
			log.Printf("[chat] member=%s: append history: %v", memberID, err)
		}
	}
	if err := s.history.Trim(ctx, memberID, keep); err != nil {
		log.Printf("[chat] member=%s: trim history: %v", memberID, err)
	}

	s.metrics.IncChatReply()
	return splitChunks(reply, chatChunkSize)
}

func (s *ChatService) Clear(ctx context.Context, memberID string) (bool, error) {
	return s.history.Clear(ctx, memberID)
}

func (s *ChatService) Stats(ctx context.Context, memberID string) (domain.ChatStats, error) {
	turns, err := s.history.Recent(ctx, memberID, 2*s.cfg.MaxHistory)
	if err != nil {
		return domain.ChatStats{}, err
	}
	var st domain.ChatStats
	for _, t := range turns {
		switch t.Role {
		case domain.ChatUser:
			st.UserMessages++
		case domain.ChatModel:
			st.ModelResponses++
		}
	}
	if n := len(turns); n > 0 {
		last := turns[n-1].At
		st.LastInteraction = &last
	}
	return st, nil
}

func (s *ChatService) Config() ChatConfig { return s.cfg }

// splitChunks corta en trozos de a lo sumo size runas.
func splitChunks(text string, size int) []string {
	if utf8.RuneCountInString(text) <= size {
		return []string{text}
	}
	var out []string
	runes := []rune(text)
	for len(runes) > 0 {
		n := size
		if len(runes) < n {
			n = len(runes)
		}
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}
