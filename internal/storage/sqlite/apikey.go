package sqlite

import (
	"context"
	"database/sql"
	"time"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

const apiKeyCols = `id, user_id, name, search_hash, encrypted, salt, algorithm,
 is_active, last_used_at, created_at`

// CreateKey inserts a new API key.
func (s *Store) CreateKey(ctx context.Context, key *gateway.APIKey) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO api_keys (`+apiKeyCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID, key.UserID, key.Name, key.SearchHash, key.Encrypted, key.Salt,
		key.Algorithm, boolToInt(key.IsActive), timeToNullMs(key.LastUsedAt),
		timeToMs(key.CreatedAt),
	)
	return err
}

// GetKeyBySearchHash retrieves an API key by its deterministic search hash.
func (s *Store) GetKeyBySearchHash(ctx context.Context, hash string) (*gateway.APIKey, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT `+apiKeyCols+` FROM api_keys WHERE search_hash = ?`, hash)
	return scanKey(row)
}

// ListKeysByUser returns all keys owned by a user.
func (s *Store) ListKeysByUser(ctx context.Context, userID string) ([]*gateway.APIKey, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT `+apiKeyCols+` FROM api_keys WHERE user_id = ? ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*gateway.APIKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// UpdateKey updates an existing API key.
func (s *Store) UpdateKey(ctx context.Context, key *gateway.APIKey) error {
	result, err := s.write.ExecContext(ctx,
		`UPDATE api_keys SET name=?, is_active=? WHERE id=?`,
		key.Name, boolToInt(key.IsActive), key.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "api key")
}

// DeleteKey removes an API key.
func (s *Store) DeleteKey(ctx context.Context, id string) error {
	result, err := s.write.ExecContext(ctx, `DELETE FROM api_keys WHERE id=?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "api key")
}

// TouchKeyUsed updates the last_used_at timestamp.
func (s *Store) TouchKeyUsed(ctx context.Context, id string) error {
	_, err := s.write.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at=? WHERE id=?`,
		time.Now().UnixMilli(), id,
	)
	return err
}

func scanKey(sc scanner) (*gateway.APIKey, error) {
	var k gateway.APIKey
	var isActive int
	var lastUsed sql.NullInt64
	var createdAt int64

	err := sc.Scan(
		&k.ID, &k.UserID, &k.Name, &k.SearchHash, &k.Encrypted, &k.Salt,
		&k.Algorithm, &isActive, &lastUsed, &createdAt,
	)
	if err != nil {
		return nil, notFoundErr(err)
	}

	k.IsActive = isActive != 0
	k.LastUsedAt = nullMsToTime(lastUsed)
	k.CreatedAt = msToTime(createdAt)
	return &k, nil
}
