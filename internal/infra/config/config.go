package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DiscordToken string `env:"DISCORD_BOT_TOKEN,required,notEmpty"`
	DiscordGuild string `env:"DISCORD_GUILD_ID,required,notEmpty"`

	FocusChannelID    string `env:"FOCUS_VOICE_CHANNEL_ID,required,notEmpty"`
	LogChannelID      string `env:"FOCUS_LOG_CHANNEL_ID,required,notEmpty"`
	StudyCamChannelID string `env:"STUDY_CAM_CHANNEL_ID,required,notEmpty"`
	ChatChannelID     string `env:"CHAT_BOT_CHANNEL_ID"`

	RestrictionRoleID  string   `env:"RESTRICTION_ROLE_ID,required,notEmpty"`
	FocusRoleID        string   `env:"FOCUS_ROLE_ID,required,notEmpty"`
	DistractionRoleIDs []string `env:"DISTRACTION_ROLE_IDS" envSeparator:","`
	AdminRoleIDs       []string `env:"ADMIN_ROLE_IDS" envSeparator:","`

	RestrictionWindow  time.Duration `env:"RESTRICTION_WINDOW" envDefault:"10s"`
	CameraGrace        time.Duration `env:"CAMERA_GRACE" envDefault:"60s"`
	CameraPollInterval time.Duration `env:"CAMERA_POLL_INTERVAL" envDefault:"1s"`
	KickMarkTTL        time.Duration `env:"KICK_MARK_TTL" envDefault:"5s"`

	StateBackend string `env:"STATE_BACKEND" envDefault:"postgres"` // postgres | badger
	DatabaseURL  string `env:"DATABASE_URL"`
	BadgerDir    string `env:"BADGER_DIR" envDefault:"data/state"`

	GeminiAPIKey   string        `env:"GEMINI_API_KEY"`
	GeminiModel    string        `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	ChatCooldown   time.Duration `env:"CHAT_COOLDOWN" envDefault:"5s"`
	ChatMaxHistory int           `env:"CHAT_MAX_HISTORY" envDefault:"10"`

	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
}

// Load lee .env (si existe) y el entorno. Sale del proceso si falta algo.
func Load() Config {
	_ = godotenv.Load()
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

// Parse sólo lee el entorno actual.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StateBackend {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("faltante env DATABASE_URL (STATE_BACKEND=postgres)")
		}
	case "badger":
	default:
		return fmt.Errorf("STATE_BACKEND inválido: %q", c.StateBackend)
	}
	if c.RestrictionWindow <= 0 || c.CameraGrace <= 0 || c.CameraPollInterval <= 0 {
		return fmt.Errorf("RESTRICTION_WINDOW, CAMERA_GRACE y CAMERA_POLL_INTERVAL deben ser > 0")
	}
	if c.ChatMaxHistory <= 0 {
		return fmt.Errorf("CHAT_MAX_HISTORY debe ser > 0")
	}
	return nil
}
