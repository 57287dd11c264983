package chaos

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	killInterval = 2 * time.Second
	// one kill roughly every fifth tick
	killOdds = 5
)

// TerminateRandomBackend kills a random Postgres backend whose
// application_name matches appLike, simulating mid-transaction connection
// loss. With an empty appLike any backend of the current database except the
// killer's own is fair game.
func TerminateRandomBackend(ctx context.Context, pool *pgxpool.Pool, appLike string, stop <-chan struct{}) {
	ticker := time.NewTicker(killInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rand.Intn(killOdds) != 0 {
				continue
			}
			if appLike != "" {
				_, _ = pool.Exec(ctx, `
					SELECT pg_terminate_backend(pid)
					FROM pg_stat_activity
					WHERE datname = current_database()
					  AND application_name LIKE $1
					  AND pid <> pg_backend_pid()
					ORDER BY random()
					LIMIT 1
				`, appLike)
				continue
			}
			_, _ = pool.Exec(ctx, `
				SELECT pg_terminate_backend(pid)
				FROM pg_stat_activity
				WHERE datname = current_database()
				  AND pid <> pg_backend_pid()
				ORDER BY random()
				LIMIT 1
			`)
		}
	}
}
