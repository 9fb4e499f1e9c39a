package sqlite

import (
	"context"
	"database/sql"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

const providerCols = `id, name, base_url, timeout_ms, priority, is_active,
 needs_sub_providers, supported_models, capabilities, created_at`

// CreateProvider inserts a provider configuration.
func (s *Store) CreateProvider(ctx context.Context, p *gateway.Provider) error {
	models, err := marshalJSON(p.SupportedModels)
	if err != nil {
		return err
	}
	caps, err := marshalJSON(p.Capabilities)
	if err != nil {
		return err
	}
	_, err = s.write.ExecContext(ctx,
		`INSERT INTO providers (`+providerCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.BaseURL, p.TimeoutMs, p.Priority, boolToInt(p.IsActive),
		boolToInt(p.NeedsSubProviders), models, caps, timeToMs(p.CreatedAt),
	)
	return err
}

// GetProvider retrieves a provider by ID.
func (s *Store) GetProvider(ctx context.Context, id string) (*gateway.Provider, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT `+providerCols+` FROM providers WHERE id = ?`, id)
	return scanProvider(row)
}

// GetProviderByName retrieves a provider by its unique name.
func (s *Store) GetProviderByName(ctx context.Context, name string) (*gateway.Provider, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT `+providerCols+` FROM providers WHERE name = ?`, name)
	return scanProvider(row)
}

// ListProviders returns all configured providers ordered by priority.
func (s *Store) ListProviders(ctx context.Context) ([]*gateway.Provider, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT `+providerCols+` FROM providers ORDER BY priority, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []*gateway.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// UpdateProvider updates a provider configuration.
func (s *Store) UpdateProvider(ctx context.Context, p *gateway.Provider) error {
	models, err := marshalJSON(p.SupportedModels)
	if err != nil {
		return err
	}
	caps, err := marshalJSON(p.Capabilities)
	if err != nil {
		return err
	}
	result, err := s.write.ExecContext(ctx,
		`UPDATE providers SET name=?, base_url=?, timeout_ms=?, priority=?,
		 is_active=?, needs_sub_providers=?, supported_models=?, capabilities=?
		 WHERE id=?`,
		p.Name, p.BaseURL, p.TimeoutMs, p.Priority, boolToInt(p.IsActive),
		boolToInt(p.NeedsSubProviders), models, caps, p.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "provider")
}

// DeleteProvider removes a provider and, via cascade, its sub-providers.
func (s *Store) DeleteProvider(ctx context.Context, id string) error {
	result, err := s.write.ExecContext(ctx, `DELETE FROM providers WHERE id=?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "provider")
}

func scanProvider(sc scanner) (*gateway.Provider, error) {
	var p gateway.Provider
	var isActive, needsSubs int
	var models, caps sql.NullString
	var createdAt int64

	err := sc.Scan(
		&p.ID, &p.Name, &p.BaseURL, &p.TimeoutMs, &p.Priority, &isActive,
		&needsSubs, &models, &caps, &createdAt,
	)
	if err != nil {
		return nil, notFoundErr(err)
	}

	p.IsActive = isActive != 0
	p.NeedsSubProviders = needsSubs != 0
	p.CreatedAt = msToTime(createdAt)

	m, err := unmarshalStringSlice(models)
	if err != nil {
		return nil, err
	}
	p.SupportedModels = m

	c, err := unmarshalCapabilities(caps)
	if err != nil {
		return nil, err
	}
	p.Capabilities = c
	return &p, nil
}
