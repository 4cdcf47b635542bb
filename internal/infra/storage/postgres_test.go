package storage

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/tribunaldo-bot/internal/domain"
)

// Requiere un Postgres descartable: TEST_DATABASE_URL=postgres://...
func openDB(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL no definido")
	}
	db, err := Open(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func openPostgres(t *testing.T) (*StateRepo, *ChatRepo) {
	t.Helper()
	ctx := context.Background()
	db := openDB(t)
	require.NoError(t, Migrate(db))

	_, err := db.ExecContext(ctx, `TRUNCATE focus_exit_records, focus_removed_roles, chat_messages`)
	require.NoError(t, err)
	return NewStateRepo(db), NewChatRepo(db)
}

func TestPostgresStateRoundTrip(t *testing.T) {
	state, _ := openPostgres(t)
	ctx := context.Background()

	at := time.Now().UTC().Truncate(time.Microsecond)
	st := domain.NewState()
	st.Exits["u1"] = domain.ExitRecord{MemberID: "u1", ExitAt: at}
	st.RemovedRoles["u2"] = domain.RemovedRolesRecord{MemberID: "u2", RoleIDs: []string{"z", "a"}}
	require.NoError(t, state.SaveAll(ctx, st))

	got, err := state.LoadAll(ctx)
	require.NoError(t, err)
	assert.True(t, at.Equal(got.Exits["u1"].ExitAt))
	assert.Equal(t, []string{"z", "a"}, got.RemovedRoles["u2"].RoleIDs)

	ok, err := state.Release(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPostgresChatHistory(t *testing.T) {
	_, chat := openPostgres(t)
	ctx := context.Background()

	for _, c := range []string{"a", "b", "c"} {
		require.NoError(t, chat.Append(ctx, domain.ChatTurn{MemberID: "u1", Role: domain.ChatUser, Content: c}))
	}
	require.NoError(t, chat.Trim(ctx, "u1", 2))

	turns, err := chat.Recent(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "b", turns[0].Content)

	ok, err := chat.Clear(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPostgresClaimIsExclusive(t *testing.T) {
	bot, ctl := openDB(t), openDB(t)
	ctx := context.Background()

	release, err := Claim(ctx, bot)
	require.NoError(t, err)

	_, err = Claim(ctx, ctl)
	require.ErrorIs(t, err, ErrStateClaimed)

	release()
	again, err := Claim(ctx, ctl)
	require.NoError(t, err)
	again()
}
