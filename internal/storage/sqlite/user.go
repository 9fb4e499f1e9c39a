package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

const userCols = `id, name, plan, enabled, credits, credits_last_reset, ip_whitelist,
 max_concurrent_requests, plan_expires_at, total_requests, total_tokens_used,
 total_credits_used, last_request_at, rp_verified, rp_bonus_tokens_expires,
 rp_discount_used, created_at`

// CreateUser inserts a new user.
func (s *Store) CreateUser(ctx context.Context, u *gateway.User) error {
	whitelist, err := marshalJSON(u.IPWhitelist)
	if err != nil {
		return err
	}
	_, err = s.write.ExecContext(ctx,
		`INSERT INTO users (`+userCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, string(u.Plan), boolToInt(u.Enabled), u.Credits,
		timeToMs(u.CreditsLastReset), whitelist, u.MaxConcurrentRequests,
		timeToNullMs(u.PlanExpiresAt), u.TotalRequests, u.TotalTokensUsed,
		u.TotalCreditsUsed, timeToNullMs(u.LastRequestAt), boolToInt(u.RPVerified),
		timeToNullMs(u.RPBonusTokensExpires), boolToInt(u.RPDiscountUsed),
		timeToMs(u.CreatedAt),
	)
	return err
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*gateway.User, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// ListUsers returns users ordered by creation time.
func (s *Store) ListUsers(ctx context.Context, offset, limit int) ([]*gateway.User, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT `+userCols+` FROM users ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*gateway.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUser updates mutable user fields.
func (s *Store) UpdateUser(ctx context.Context, u *gateway.User) error {
	whitelist, err := marshalJSON(u.IPWhitelist)
	if err != nil {
		return err
	}
	result, err := s.write.ExecContext(ctx,
		`UPDATE users SET name=?, plan=?, enabled=?, credits=?, credits_last_reset=?,
		 ip_whitelist=?, max_concurrent_requests=?, plan_expires_at=?, rp_verified=?,
		 rp_bonus_tokens_expires=?, rp_discount_used=? WHERE id=?`,
		u.Name, string(u.Plan), boolToInt(u.Enabled), u.Credits,
		timeToMs(u.CreditsLastReset), whitelist, u.MaxConcurrentRequests,
		timeToNullMs(u.PlanExpiresAt), boolToInt(u.RPVerified),
		timeToNullMs(u.RPBonusTokensExpires), boolToInt(u.RPDiscountUsed), u.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "user")
}

// DeleteUser removes a user and, via cascade, its keys, tokens and discounts.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	result, err := s.write.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "user")
}

// DebitCredits decrements the balance and bumps usage totals in one guarded
// UPDATE. The credits >= amount condition makes concurrent debits safe: the
// single-writer connection serializes them and the guard rejects any debit
// that would drive the balance negative.
func (s *Store) DebitCredits(ctx context.Context, userID string, amount int64, tokens int) error {
	now := time.Now().UnixMilli()
	result, err := s.write.ExecContext(ctx,
		`UPDATE users SET credits = credits - ?,
		 total_requests = total_requests + 1,
		 total_tokens_used = total_tokens_used + ?,
		 total_credits_used = total_credits_used + ?,
		 last_request_at = ?
		 WHERE id = ? AND enabled = 1 AND credits >= ?`,
		amount, tokens, amount, now, userID, amount,
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	// Guard failed: distinguish the reason for the caller.
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !u.Enabled {
		return gateway.ErrAccountDisabled
	}
	return gateway.ErrInsufficientCredits
}

// AddCredits increments the balance. Amount must be positive.
func (s *Store) AddCredits(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("add credits: amount must be positive: %w", gateway.ErrBadRequest)
	}
	result, err := s.write.ExecContext(ctx,
		`UPDATE users SET credits = credits + ? WHERE id = ?`, amount, userID)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "user")
}

// ResetCredits sets the balance to the given figure and stamps the reset time.
func (s *Store) ResetCredits(ctx context.Context, userID string, credits int64, at time.Time) error {
	result, err := s.write.ExecContext(ctx,
		`UPDATE users SET credits = ?, credits_last_reset = ? WHERE id = ?`,
		credits, timeToMs(at), userID)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "user")
}

// ListUsersForReset returns users whose last reset is at or before cutoff.
func (s *Store) ListUsersForReset(ctx context.Context, cutoff time.Time) ([]*gateway.User, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT `+userCols+` FROM users WHERE credits_last_reset <= ?`,
		timeToMs(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*gateway.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(sc scanner) (*gateway.User, error) {
	var u gateway.User
	var plan string
	var enabled, rpVerified, rpDiscountUsed int
	var whitelist sql.NullString
	var lastReset, createdAt int64
	var planExpires, lastRequest, rpBonusExpires sql.NullInt64

	err := sc.Scan(
		&u.ID, &u.Name, &plan, &enabled, &u.Credits, &lastReset, &whitelist,
		&u.MaxConcurrentRequests, &planExpires, &u.TotalRequests,
		&u.TotalTokensUsed, &u.TotalCreditsUsed, &lastRequest, &rpVerified,
		&rpBonusExpires, &rpDiscountUsed, &createdAt,
	)
	if err != nil {
		return nil, notFoundErr(err)
	}

	u.Plan = gateway.Plan(plan)
	u.Enabled = enabled != 0
	u.RPVerified = rpVerified != 0
	u.RPDiscountUsed = rpDiscountUsed != 0
	u.CreditsLastReset = msToTime(lastReset)
	u.CreatedAt = msToTime(createdAt)
	u.PlanExpiresAt = nullMsToTime(planExpires)
	u.LastRequestAt = nullMsToTime(lastRequest)
	u.RPBonusTokensExpires = nullMsToTime(rpBonusExpires)

	wl, err := unmarshalStringSlice(whitelist)
	if err != nil {
		return nil, err
	}
	u.IPWhitelist = wl
	return &u, nil
}
