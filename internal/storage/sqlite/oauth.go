package sqlite

import (
	"context"
	"time"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

// CreateOAuthToken inserts a bearer token.
func (s *Store) CreateOAuthToken(ctx context.Context, t *gateway.OAuthToken) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO oauth_tokens (id, user_id, token, expires_at) VALUES (?, ?, ?, ?)`,
		t.ID, t.UserID, t.Token, timeToMs(t.ExpiresAt),
	)
	return err
}

// GetOAuthToken looks up a token by its opaque value.
func (s *Store) GetOAuthToken(ctx context.Context, token string) (*gateway.OAuthToken, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT id, user_id, token, expires_at FROM oauth_tokens WHERE token = ?`, token)

	var t gateway.OAuthToken
	var expiresAt int64
	if err := row.Scan(&t.ID, &t.UserID, &t.Token, &expiresAt); err != nil {
		return nil, notFoundErr(err)
	}
	t.ExpiresAt = msToTime(expiresAt)
	return &t, nil
}

// DeleteOAuthToken removes a token by ID.
func (s *Store) DeleteOAuthToken(ctx context.Context, id string) error {
	result, err := s.write.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE id=?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "oauth token")
}

// DeleteExpiredOAuthTokens sweeps tokens past their expiry.
func (s *Store) DeleteExpiredOAuthTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.write.ExecContext(ctx,
		`DELETE FROM oauth_tokens WHERE expires_at <= ?`, timeToMs(now))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
