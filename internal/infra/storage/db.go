package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Open abre la conexión (pgx stdlib) y verifica health.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, err
	}
	// una conexión queda tomada por Claim mientras el bot corre
	db.SetMaxOpenConns(6)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(1 * time.Hour)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// Migrate aplica todas las migraciones embebidas.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// ownerLock es la clave del advisory lock que marca al dueño del estado.
const ownerLock int64 = 0x74726962

// ErrStateClaimed: otro proceso (el bot) tiene el lock de dueño.
var ErrStateClaimed = errors.New("state claimed by another process")

// Claim toma el advisory lock de dueño en una conexión dedicada y la retiene
// hasta llamar a release. El bot lo toma al arrancar; statectl antes de
// escribir, porque el próximo SaveAll del bot pisaría sus cambios.
func Claim(ctx context.Context, db *sql.DB) (release func(), err error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("claim conn: %w", err)
	}
	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, ownerLock).Scan(&ok); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("claim: %w", err)
	}
	if !ok {
		_ = conn.Close()
		return nil, ErrStateClaimed
	}
	return func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, ownerLock)
		_ = conn.Close()
	}, nil
}
