package sqlite

import (
	"context"
	"database/sql"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

const subProviderCols = `id, provider_id, name, encrypted_api_key, salt, algorithm,
 auth_mode, oauth_token_url, oauth_client_id, base_url, priority, weight,
 is_enabled, rpm, rph, tpm, max_concurrent, model_mapping, created_at`

// CreateSubProvider inserts a sub-provider.
func (s *Store) CreateSubProvider(ctx context.Context, sp *gateway.SubProvider) error {
	mapping, err := marshalJSON(sp.ModelMapping)
	if err != nil {
		return err
	}
	_, err = s.write.ExecContext(ctx,
		`INSERT INTO sub_providers (`+subProviderCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sp.ID, sp.ProviderID, sp.Name, sp.EncryptedAPIKey, sp.Salt, sp.Algorithm,
		sp.AuthMode, nullStr(sp.OAuthTokenURL), nullStr(sp.OAuthClientID),
		nullStr(sp.BaseURL), sp.Priority, sp.Weight, boolToInt(sp.IsEnabled),
		sp.RPM, sp.RPH, sp.TPM, sp.MaxConcurrent, mapping, timeToMs(sp.CreatedAt),
	)
	return err
}

// GetSubProvider retrieves a sub-provider by ID.
func (s *Store) GetSubProvider(ctx context.Context, id string) (*gateway.SubProvider, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT `+subProviderCols+` FROM sub_providers WHERE id = ?`, id)
	return scanSubProvider(row)
}

// ListSubProviders returns the sub-providers under one provider.
func (s *Store) ListSubProviders(ctx context.Context, providerID string) ([]*gateway.SubProvider, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT `+subProviderCols+` FROM sub_providers WHERE provider_id = ?
		 ORDER BY priority, name`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubProviders(rows)
}

// ListAllSubProviders returns every sub-provider across providers.
func (s *Store) ListAllSubProviders(ctx context.Context) ([]*gateway.SubProvider, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT `+subProviderCols+` FROM sub_providers ORDER BY provider_id, priority`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubProviders(rows)
}

// UpdateSubProvider updates a sub-provider.
func (s *Store) UpdateSubProvider(ctx context.Context, sp *gateway.SubProvider) error {
	mapping, err := marshalJSON(sp.ModelMapping)
	if err != nil {
		return err
	}
	result, err := s.write.ExecContext(ctx,
		`UPDATE sub_providers SET name=?, encrypted_api_key=?, salt=?, algorithm=?,
		 auth_mode=?, oauth_token_url=?, oauth_client_id=?, base_url=?, priority=?,
		 weight=?, is_enabled=?, rpm=?, rph=?, tpm=?, max_concurrent=?, model_mapping=?
		 WHERE id=?`,
		sp.Name, sp.EncryptedAPIKey, sp.Salt, sp.Algorithm, sp.AuthMode,
		nullStr(sp.OAuthTokenURL), nullStr(sp.OAuthClientID), nullStr(sp.BaseURL),
		sp.Priority, sp.Weight, boolToInt(sp.IsEnabled), sp.RPM, sp.RPH, sp.TPM,
		sp.MaxConcurrent, mapping, sp.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "sub-provider")
}

// DeleteSubProvider removes a sub-provider.
func (s *Store) DeleteSubProvider(ctx context.Context, id string) error {
	result, err := s.write.ExecContext(ctx, `DELETE FROM sub_providers WHERE id=?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "sub-provider")
}

func collectSubProviders(rows *sql.Rows) ([]*gateway.SubProvider, error) {
	var subs []*gateway.SubProvider
	for rows.Next() {
		sp, err := scanSubProvider(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sp)
	}
	return subs, rows.Err()
}

func scanSubProvider(sc scanner) (*gateway.SubProvider, error) {
	var sp gateway.SubProvider
	var isEnabled int
	var tokenURL, clientID, baseURL, mapping sql.NullString
	var createdAt int64

	err := sc.Scan(
		&sp.ID, &sp.ProviderID, &sp.Name, &sp.EncryptedAPIKey, &sp.Salt,
		&sp.Algorithm, &sp.AuthMode, &tokenURL, &clientID, &baseURL,
		&sp.Priority, &sp.Weight, &isEnabled, &sp.RPM, &sp.RPH, &sp.TPM,
		&sp.MaxConcurrent, &mapping, &createdAt,
	)
	if err != nil {
		return nil, notFoundErr(err)
	}

	sp.IsEnabled = isEnabled != 0
	sp.OAuthTokenURL = tokenURL.String
	sp.OAuthClientID = clientID.String
	sp.BaseURL = baseURL.String
	sp.CreatedAt = msToTime(createdAt)

	m, err := unmarshalStringMap(mapping)
	if err != nil {
		return nil, err
	}
	sp.ModelMapping = m
	return &sp, nil
}
