package sqlite

import (
	"context"
	"time"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

// UpsertDiscount inserts or replaces the discount for (user, model). The
// unique index on (user_id, model_id) keeps at most one row per pair.
func (s *Store) UpsertDiscount(ctx context.Context, d *gateway.UserDiscount) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO user_discounts (id, user_id, model_id, discount_multiplier, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, model_id) DO UPDATE SET
		 discount_multiplier = excluded.discount_multiplier,
		 expires_at = excluded.expires_at,
		 created_at = excluded.created_at`,
		d.ID, d.UserID, d.ModelID, d.Multiplier, timeToMs(d.ExpiresAt), timeToMs(d.CreatedAt),
	)
	return err
}

// GetDiscount returns the stored discount for (user, model), expired or not.
// Callers check Active() themselves.
func (s *Store) GetDiscount(ctx context.Context, userID, modelID string) (*gateway.UserDiscount, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT id, user_id, model_id, discount_multiplier, expires_at, created_at
		 FROM user_discounts WHERE user_id = ? AND model_id = ?`, userID, modelID)
	return scanDiscount(row)
}

// ListDiscountsByUser returns all of a user's discounts.
func (s *Store) ListDiscountsByUser(ctx context.Context, userID string) ([]*gateway.UserDiscount, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT id, user_id, model_id, discount_multiplier, expires_at, created_at
		 FROM user_discounts WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*gateway.UserDiscount
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteExpiredDiscounts sweeps discounts past their expiry.
func (s *Store) DeleteExpiredDiscounts(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.write.ExecContext(ctx,
		`DELETE FROM user_discounts WHERE expires_at <= ?`, timeToMs(now))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListUserIDsWithoutActiveDiscount returns enabled users holding no active
// discount, the rotation job's work list.
func (s *Store) ListUserIDsWithoutActiveDiscount(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT u.id FROM users u
		 WHERE u.enabled = 1 AND NOT EXISTS (
		   SELECT 1 FROM user_discounts d
		   WHERE d.user_id = u.id AND d.expires_at > ?
		 )`, timeToMs(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanDiscount(sc scanner) (*gateway.UserDiscount, error) {
	var d gateway.UserDiscount
	var expiresAt, createdAt int64
	err := sc.Scan(&d.ID, &d.UserID, &d.ModelID, &d.Multiplier, &expiresAt, &createdAt)
	if err != nil {
		return nil, notFoundErr(err)
	}
	d.ExpiresAt = msToTime(expiresAt)
	d.CreatedAt = msToTime(createdAt)
	return &d, nil
}
