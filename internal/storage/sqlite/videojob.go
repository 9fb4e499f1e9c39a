package sqlite

import (
	"context"
	"database/sql"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

// CreateVideoJob binds a provider-assigned video id to its owning upstream.
func (s *Store) CreateVideoJob(ctx context.Context, j *gateway.VideoJob) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO video_jobs (id, user_id, model, provider_name, sub_provider_id,
		 status, size, seconds, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, nullStr(j.UserID), j.Model, j.ProviderName, nullStr(j.SubProviderID),
		j.Status, nullStr(j.Size), nullStr(j.Seconds), timeToMs(j.CreatedAt),
	)
	return err
}

// GetVideoJob retrieves a video job by its provider-assigned id.
func (s *Store) GetVideoJob(ctx context.Context, id string) (*gateway.VideoJob, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT id, user_id, model, provider_name, sub_provider_id, status, size, seconds, created_at
		 FROM video_jobs WHERE id = ?`, id)
	return scanVideoJob(row)
}

// ListVideoJobsByUser returns a user's video jobs, newest first.
func (s *Store) ListVideoJobsByUser(ctx context.Context, userID string) ([]*gateway.VideoJob, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT id, user_id, model, provider_name, sub_provider_id, status, size, seconds, created_at
		 FROM video_jobs WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*gateway.VideoJob
	for rows.Next() {
		j, err := scanVideoJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// UpdateVideoJobStatus records the latest status seen from the upstream.
func (s *Store) UpdateVideoJobStatus(ctx context.Context, id, status string) error {
	result, err := s.write.ExecContext(ctx,
		`UPDATE video_jobs SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "video job")
}

// DeleteVideoJob removes the binding after the upstream deletes the video.
func (s *Store) DeleteVideoJob(ctx context.Context, id string) error {
	result, err := s.write.ExecContext(ctx, `DELETE FROM video_jobs WHERE id=?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "video job")
}

func scanVideoJob(sc scanner) (*gateway.VideoJob, error) {
	var j gateway.VideoJob
	var userID, subProviderID, size, seconds sql.NullString
	var createdAt int64

	err := sc.Scan(&j.ID, &userID, &j.Model, &j.ProviderName, &subProviderID,
		&j.Status, &size, &seconds, &createdAt)
	if err != nil {
		return nil, notFoundErr(err)
	}

	j.UserID = userID.String
	j.SubProviderID = subProviderID.String
	j.Size = size.String
	j.Seconds = seconds.String
	j.CreatedAt = msToTime(createdAt)
	return &j, nil
}
