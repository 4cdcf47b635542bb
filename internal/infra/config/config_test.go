package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	for k, v := range map[string]string{
		"DISCORD_BOT_TOKEN":      "tok",
		"DISCORD_GUILD_ID":       "g1",
		"FOCUS_VOICE_CHANNEL_ID": "vc-focus",
		"FOCUS_LOG_CHANNEL_ID":   "txt-log",
		"STUDY_CAM_CHANNEL_ID":   "vc-cam",
		"RESTRICTION_ROLE_ID":    "r-restr",
		"FOCUS_ROLE_ID":          "r-focus",
		"DATABASE_URL":           "postgres://localhost/tribunaldo",
	} {
		t.Setenv(k, v)
	}
}

func TestParseDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("DISTRACTION_ROLE_IDS", "gym,games,music")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, []string{"gym", "games", "music"}, cfg.DistractionRoleIDs)
	assert.Equal(t, 10*time.Second, cfg.RestrictionWindow)
	assert.Equal(t, 60*time.Second, cfg.CameraGrace)
	assert.Equal(t, time.Second, cfg.CameraPollInterval)
	assert.Equal(t, 5*time.Second, cfg.KickMarkTTL)
	assert.Equal(t, "postgres", cfg.StateBackend)
	assert.Equal(t, "gemini-2.0-flash", cfg.GeminiModel)
	assert.Equal(t, 10, cfg.ChatMaxHistory)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestParseMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("FOCUS_ROLE_ID", "")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FOCUS_ROLE_ID")
}

func TestParseBackend(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "")

	_, err := Parse()
	require.Error(t, err, "postgres sin DATABASE_URL")

	t.Setenv("STATE_BACKEND", "badger")
	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "data/state", cfg.BadgerDir)

	t.Setenv("STATE_BACKEND", "sqlite")
	_, err = Parse()
	require.Error(t, err)
}
