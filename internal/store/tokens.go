package store

import (
	"context"
	"fmt"
	"time"
)

// Logged-out JWTs are remembered by JTI until they would have expired anyway.

// RevokeToken records jti as revoked until expiresAt and drops entries whose
// tokens have since expired.
func RevokeToken(ctx context.Context, db DBTX, jti string, expiresAt time.Time) error {
	if _, err := db.ExecContext(ctx,
		`INSERT INTO revoked_tokens (jti, expires_at) VALUES (?, ?)
		 ON CONFLICT (jti) DO NOTHING`,
		jti, sqliteTime(expiresAt),
	); err != nil {
		return fmt.Errorf("revoking token %s: %w", jti, err)
	}

	_, err := PruneRevokedTokens(ctx, db, time.Now())
	return err
}

// IsTokenRevoked reports whether jti is on the revocation list.
func IsTokenRevoked(ctx context.Context, db DBTX, jti string) (bool, error) {
	var revoked bool
	if err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = ?)`, jti,
	).Scan(&revoked); err != nil {
		return false, fmt.Errorf("checking revocation of %s: %w", jti, err)
	}
	return revoked, nil
}

// PruneRevokedTokens deletes revocations that expired before now and returns
// how many were removed.
func PruneRevokedTokens(ctx context.Context, db DBTX, now time.Time) (int64, error) {
	result, err := db.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at < ?`, sqliteTime(now),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning revoked tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking affected rows: %w", err)
	}
	return n, nil
}
