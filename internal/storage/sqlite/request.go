package sqlite

import (
	"context"
	"database/sql"
	"strings"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/storage"
)

const requestCols = `id, user_id, endpoint, method, model, provider_id, sub_provider_id,
 status, status_code, tokens_used, credits_used, latency_ms, request_size,
 response_size, retry_count, error_message, stream, client_ip, user_agent,
 created_at, updated_at, completed_at`

// CreateRequest inserts a tracked request.
func (s *Store) CreateRequest(ctx context.Context, r *gateway.APIRequest) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO api_requests (`+requestCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, nullStr(r.UserID), r.Endpoint, r.Method, r.Model,
		nullStr(r.ProviderID), nullStr(r.SubProviderID), string(r.Status),
		r.StatusCode, r.TokensUsed, r.CreditsUsed, r.LatencyMs, r.RequestSize,
		r.ResponseSize, r.RetryCount, nullStr(r.ErrorMessage), boolToInt(r.Stream),
		nullStr(r.ClientIP), nullStr(r.UserAgent), timeToMs(r.CreatedAt),
		timeToMs(r.UpdatedAt), timeToNullMs(r.CompletedAt),
	)
	return err
}

// GetRequest retrieves a tracked request by ID.
func (s *Store) GetRequest(ctx context.Context, id string) (*gateway.APIRequest, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT `+requestCols+` FROM api_requests WHERE id = ?`, id)
	return scanRequest(row)
}

// UpdateRequest writes the mutable lifecycle fields back.
func (s *Store) UpdateRequest(ctx context.Context, r *gateway.APIRequest) error {
	result, err := s.write.ExecContext(ctx,
		`UPDATE api_requests SET provider_id=?, sub_provider_id=?, status=?,
		 status_code=?, tokens_used=?, credits_used=?, latency_ms=?, response_size=?,
		 retry_count=?, error_message=?, updated_at=?, completed_at=? WHERE id=?`,
		nullStr(r.ProviderID), nullStr(r.SubProviderID), string(r.Status),
		r.StatusCode, r.TokensUsed, r.CreditsUsed, r.LatencyMs, r.ResponseSize,
		r.RetryCount, nullStr(r.ErrorMessage), timeToMs(r.UpdatedAt),
		timeToNullMs(r.CompletedAt), r.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "api request")
}

// ListRequests returns tracked requests matching the filter, newest first.
func (s *Store) ListRequests(ctx context.Context, f storage.RequestFilter) ([]*gateway.APIRequest, error) {
	where, args := requestWhere(f)
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)

	rows, err := s.read.QueryContext(ctx,
		`SELECT `+requestCols+` FROM api_requests`+where+
			` ORDER BY created_at DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*gateway.APIRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RequestStats aggregates tracked requests matching the filter.
func (s *Store) RequestStats(ctx context.Context, f storage.RequestFilter) (*storage.RequestStats, error) {
	where, args := requestWhere(f)
	row := s.read.QueryRowContext(ctx,
		`SELECT COUNT(*),
		 COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		 COALESCE(SUM(CASE WHEN status IN ('failed','timeout') THEN 1 ELSE 0 END), 0),
		 COALESCE(SUM(CASE WHEN status IN ('pending','processing') THEN 1 ELSE 0 END), 0),
		 COALESCE(AVG(latency_ms), 0),
		 COALESCE(AVG(tokens_used), 0),
		 COALESCE(SUM(credits_used), 0)
		 FROM api_requests`+where, args...)

	var st storage.RequestStats
	if err := row.Scan(&st.Total, &st.Completed, &st.Failed, &st.Pending,
		&st.AvgLatencyMs, &st.AvgTokens, &st.TotalCredits); err != nil {
		return nil, err
	}
	if st.Total > 0 {
		st.SuccessRate = float64(st.Completed) / float64(st.Total)
	}
	return &st, nil
}

func requestWhere(f storage.RequestFilter) (string, []any) {
	var clauses []string
	var args []any
	if f.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Model != "" {
		clauses = append(clauses, "model = ?")
		args = append(args, f.Model)
	}
	if f.ProviderID != "" {
		clauses = append(clauses, "provider_id = ?")
		args = append(args, f.ProviderID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, timeToMs(f.Since))
	}
	if !f.Until.IsZero() {
		clauses = append(clauses, "created_at < ?")
		args = append(args, timeToMs(f.Until))
	}
	if f.MinLatency > 0 {
		clauses = append(clauses, "latency_ms >= ?")
		args = append(args, f.MinLatency)
	}
	if f.MaxLatency > 0 {
		clauses = append(clauses, "latency_ms <= ?")
		args = append(args, f.MaxLatency)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanRequest(sc scanner) (*gateway.APIRequest, error) {
	var r gateway.APIRequest
	var userID, providerID, subProviderID, errMsg, clientIP, userAgent sql.NullString
	var status string
	var stream int
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64

	err := sc.Scan(
		&r.ID, &userID, &r.Endpoint, &r.Method, &r.Model, &providerID,
		&subProviderID, &status, &r.StatusCode, &r.TokensUsed, &r.CreditsUsed,
		&r.LatencyMs, &r.RequestSize, &r.ResponseSize, &r.RetryCount, &errMsg,
		&stream, &clientIP, &userAgent, &createdAt, &updatedAt, &completedAt,
	)
	if err != nil {
		return nil, notFoundErr(err)
	}

	r.UserID = userID.String
	r.ProviderID = providerID.String
	r.SubProviderID = subProviderID.String
	r.Status = gateway.RequestStatus(status)
	r.ErrorMessage = errMsg.String
	r.ClientIP = clientIP.String
	r.UserAgent = userAgent.String
	r.Stream = stream != 0
	r.CreatedAt = msToTime(createdAt)
	r.UpdatedAt = msToTime(updatedAt)
	r.CompletedAt = nullMsToTime(completedAt)
	return &r, nil
}
