package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jackc/pgx/v5/pgxpool"
)

// chat: se borra lo que tenga más de 30 días.
// exit records viejos no se tocan (el bot los resuelve al arrancar y saca el
// cargo); sólo se reportan.
func handler(ctx context.Context) (string, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return "no DATABASE_URL", nil
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Sprintf("parse: %v", err), nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Sprintf("pool: %v", err), nil
	}
	defer pool.Close()

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := pool.Exec(cctx, `DELETE FROM chat_messages WHERE created_at < now() - INTERVAL '30 days';`)
	if err != nil {
		return fmt.Sprintf("prune chat: %v", err), nil
	}

	var stale int64
	if err := pool.QueryRow(cctx, `
SELECT count(*) FROM focus_exit_records
WHERE exit_at < now() - INTERVAL '1 day';`).Scan(&stale); err != nil {
		log.Printf("[janitor] stale exits: %v", err)
	}
	if stale > 0 {
		log.Printf("[janitor] %d exit records con más de 1 día (el bot estuvo caído?)", stale)
	}

	return fmt.Sprintf("ok chat=%d stale_exits=%d", tag.RowsAffected(), stale), nil
}

func main() { lambda.Start(handler) }
