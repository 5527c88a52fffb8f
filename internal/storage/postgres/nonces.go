package postgres

import (
	"context"
	"fmt"
	"time"
)

// Consume inserts the nonce if unseen; the primary-key conflict makes replay
// detection atomic. Expired rows are cleared opportunistically first so a
// nonce value can be reused after its window closes.
func (b *Backend) Consume(ctx context.Context, nonce, owner string, expiresAt time.Time) (bool, error) {
	caller := b.tx.Try(ctx)

	_, err := caller.Exec(ctx, `
		DELETE FROM request_nonces
		WHERE nonce = $1 AND expires_at <= now()
	`, nonce)
	if err != nil {
		return false, fmt.Errorf("failed to clear expired nonce: %w", err)
	}

	tag, err := caller.Exec(ctx, `
		INSERT INTO request_nonces (nonce, owner, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (nonce) DO NOTHING
	`, nonce, owner, expiresAt)
	if err != nil {
		return false, fmt.Errorf("failed to store nonce: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
