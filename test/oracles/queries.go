package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_one_active_payment_per_request",
			SQL: `SELECT request_id, COUNT(*) FROM payments
                  WHERE status IN ('created','held_in_escrow')
                  GROUP BY request_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_no_double_matched_offer",
			SQL: `SELECT matched_offer_id, COUNT(*) FROM requests
                  WHERE matched_offer_id IS NOT NULL AND status IN ('matched','completed')
                  GROUP BY matched_offer_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O3_match_linkage",
			SQL: `SELECT r.id, r.status, o.status FROM requests r
                  JOIN offers o ON o.id = r.matched_offer_id
                  WHERE r.status IN ('matched','completed') AND o.status <> 'matched'`,
		},
		{
			Name: "O4_escrow_payment_consistency",
			SQL: `SELECT e.id, e.status, p.status FROM escrows e
                  JOIN payments p ON p.id = e.payment_id
                  WHERE (e.status = 'held' AND p.status <> 'held_in_escrow')
                     OR (e.status = 'released' AND p.status <> 'released')
                     OR (e.status = 'refunded' AND p.status <> 'refunded')`,
		},
		{
			Name: "O5_completed_request_released_funds",
			SQL: `SELECT r.id FROM requests r
                  WHERE r.status = 'completed'
                    AND NOT EXISTS (SELECT 1 FROM payments p WHERE p.request_id = r.id AND p.status = 'released')`,
		},
		{
			Name: "O6_no_self_match",
			SQL: `SELECT r.id FROM requests r
                  JOIN offers o ON o.id = r.matched_offer_id
                  WHERE o.user_id = r.user_id`,
		},
		{
			Name: "O7_settled_escrow_timestamped",
			SQL: `SELECT id, status FROM escrows
                  WHERE status IN ('released','refunded') AND settled_at IS NULL`,
		},
		{
			Name: "O8_outbox_not_stuck",
			SQL: `SELECT id::text FROM outbox
                  WHERE status NOT IN ('processed','dead')
                    AND now() - created_at > interval '5 minutes'`,
		},
		{
			Name: "O9_payment_for_matched_request",
			SQL: `SELECT r.id FROM requests r
                  WHERE r.status IN ('matched','completed')
                    AND NOT EXISTS (SELECT 1 FROM payments p WHERE p.request_id = r.id)`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
