package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	discordrouter "github.com/jose-valero/tribunaldo-bot/internal/adapters/discord"
	"github.com/jose-valero/tribunaldo-bot/internal/adapters/gemini"
	"github.com/jose-valero/tribunaldo-bot/internal/adapters/httpstatus"
	"github.com/jose-valero/tribunaldo-bot/internal/app/service"
	"github.com/jose-valero/tribunaldo-bot/internal/infra/config"
	"github.com/jose-valero/tribunaldo-bot/internal/infra/metrics"
	"github.com/jose-valero/tribunaldo-bot/internal/infra/storage"
)

const voiceStepTimeout = 30 * time.Second

type stores struct {
	state service.StateStore
	chat  service.ChatHistory
	close func()
}

// openStores elige backend: Postgres (migrado) o Badger embebido.
func openStores(ctx context.Context, cfg config.Config) stores {
	if cfg.StateBackend == "badger" {
		b, err := storage.OpenBadger(cfg.BadgerDir)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("✅ Badger listo en %q", cfg.BadgerDir)
		return stores{state: b, chat: b, close: func() { _ = b.Close() }}
	}

	db, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	if err := storage.Migrate(db); err != nil {
		log.Fatal("migrate:", err)
	}
	log.Println("✅ DB lista y migrada")
	unlock, err := storage.Claim(ctx, db)
	if err != nil {
		log.Fatalf("tomando el estado: %v (¿otra instancia corriendo?)", err)
	}
	return stores{
		state: storage.NewStateRepo(db),
		chat:  storage.NewChatRepo(db),
		close: func() { unlock(); closeDB(db) },
	}
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		log.Printf("[store] close: %v", err)
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	st := openStores(ctx, cfg)
	defer st.close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New()
	m.Register(reg)

	// Discord session
	auth := cfg.DiscordToken
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(auth)), "bot ") {
		auth = "Bot " + strings.TrimSpace(auth)
	}
	s, err := discordgo.New(auth)
	if err != nil {
		log.Fatal(err)
	}
	// eventos en orden de llegada; el router reparte por miembro
	s.SyncEvents = true
	s.State.TrackVoice = true
	s.State.TrackMembers = true
	s.State.TrackRoles = true
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	guild := discordrouter.NewGuild(s, cfg.DiscordGuild)
	notifier := discordrouter.NewNotifier(s)

	// Services
	timers := service.NewTimers()
	focusSvc := service.NewFocusService(service.FocusConfig{
		ChannelID:          cfg.FocusChannelID,
		LogChannelID:       cfg.LogChannelID,
		FocusRoleID:        cfg.FocusRoleID,
		RestrictionRoleID:  cfg.RestrictionRoleID,
		DistractionRoleIDs: cfg.DistractionRoleIDs,
		RestrictionWindow:  cfg.RestrictionWindow,
	}, guild, notifier, st.state, timers, m)

	camSvc := service.NewStudyCamService(service.StudyCamConfig{
		ChannelID:    cfg.StudyCamChannelID,
		LogChannelID: cfg.LogChannelID,
		Grace:        cfg.CameraGrace,
		PollInterval: cfg.CameraPollInterval,
		KickMarkTTL:  cfg.KickMarkTTL,
	}, guild, notifier, m)

	var chatSvc *service.ChatService
	if cfg.GeminiAPIKey != "" {
		gc := gemini.New(cfg.GeminiAPIKey, gemini.WithModel(cfg.GeminiModel))
		chatSvc = service.NewChatService(service.ChatConfig{
			ChannelID:  cfg.ChatChannelID,
			Cooldown:   cfg.ChatCooldown,
			MaxHistory: cfg.ChatMaxHistory,
		}, gc, st.chat, m)
	} else {
		log.Println("⚠️ GEMINI_API_KEY vacío: asistente apagado")
	}

	if err := focusSvc.Load(ctx); err != nil {
		log.Fatal(err)
	}

	queue := service.NewMemberQueue()
	dispatcher := service.NewVoiceDispatcher(queue, voiceStepTimeout, focusSvc, camSvc)

	// Router
	r := discordrouter.NewRouter(s, cfg.DiscordGuild, dispatcher, focusSvc, camSvc, chatSvc, cfg.AdminRoleIDs)
	r.Handlers()

	if err := s.Open(); err != nil {
		log.Fatal(err)
	}
	log.Printf("✅ Conectado como %s (%s)", s.State.User.Username, s.State.User.ID)

	if err := r.Register(); err != nil {
		log.Fatalf("registrando comandos: %v", err)
	}
	log.Printf("✅ comandos registrados en guild %s", cfg.DiscordGuild)

	if !r.WaitGuild(ctx, 30*time.Second) {
		log.Printf("⚠️ guild %s no llegó por el gateway; sigo con REST", cfg.DiscordGuild)
	}

	// Reconciliación de arranque: restricciones pendientes y canal de cámara
	focusSvc.Resume(ctx)
	camSvc.Rescan(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpstatus.New(focusSvc, camSvc, reg).Run(gctx, cfg.HTTPAddr)
	})

	// Esperar señal
	<-gctx.Done()
	log.Println("🛑 apagando...")

	if err := s.Close(); err != nil {
		log.Printf("discord close: %v", err)
	}
	queue.Close()
	camSvc.Shutdown()
	timers.StopAll()

	if err := g.Wait(); err != nil {
		log.Printf("http: %v", err)
	}
	log.Println("👋 listo")
}
